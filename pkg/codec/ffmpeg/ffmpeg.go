package ffmpeg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/AlexxIT/framepump/pkg/buffer"
	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/shell"
	"github.com/AlexxIT/framepump/pkg/yuv"
	"github.com/rs/zerolog"
)

type Mode byte

const (
	Decode Mode = iota // JPEG, MJPEG, H264, H265 -> I420
	Encode             // I420 -> JPEG, MJPEG, H264, H265
)

const (
	DefaultBin     = "ffmpeg"
	DefaultGlobal  = "-hide_banner -v error"
	DefaultBuffers = 3

	encodedInputSize = 1 << 20
	encodedMargin    = 1 << 16
)

// Component - ffmpeg process in the role of the hardware.
// Input slots are written to stdin by a writer goroutine, output slots are
// filled from stdout by a reader goroutine, callbacks come from both of them.
// The process starts when both ports are enabled and is killed by Disable.
type Component struct {
	Global string // global ffmpeg args
	Engine string // software, auto or one of the hardware engines
	QScale int    // mjpeg quality 2..31, zero is default

	bin  string
	mode Mode
	log  zerolog.Logger
	rt   *codec.Runtime

	mu      sync.Mutex
	formats [2]codec.Format
	cb      [2]codec.Callback
	enabled [2]bool
	inputs  []*buffer.Slot
	outputs []*buffer.Slot
	proc    *process
	closed  bool

	inWake  chan struct{}
	outWake chan struct{}
}

// New checks the ffmpeg binary once per process and returns the component
func New(mode Mode, bin string, log zerolog.Logger) (*Component, error) {
	if bin == "" {
		bin = DefaultBin
	}

	rt := Runtime(bin)
	if err := rt.Acquire(); err != nil {
		return nil, err
	}

	return &Component{
		Global:  DefaultGlobal,
		bin:     bin,
		mode:    mode,
		log:     log,
		rt:      rt,
		inWake:  make(chan struct{}, 1),
		outWake: make(chan struct{}, 1),
	}, nil
}

func (c *Component) Commit(dir codec.Direction, f codec.Format) (codec.Format, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled[dir] {
		return codec.Format{}, errors.New("ffmpeg: commit on enabled port")
	}

	var err error
	switch {
	case c.mode == Decode && dir == codec.Input:
		f, err = commitEncoded(f, encodedInputSize)
	case c.mode == Decode && dir == codec.Output:
		f, err = c.commitRaw(f, true)
	case c.mode == Encode && dir == codec.Input:
		f, err = c.commitRaw(f, false)
	case c.mode == Encode && dir == codec.Output:
		if f.Width == 0 {
			in := c.formats[codec.Input]
			f.Width, f.Height = in.Width, in.Height
		}
		f, err = commitEncoded(f, yuv.Size(f.Width, f.Height)+encodedMargin)
	}
	if err != nil {
		return codec.Format{}, err
	}

	f.BufferNum = max(f.BufferNum, DefaultBuffers)
	c.formats[dir] = f
	return f, nil
}

func commitEncoded(f codec.Format, size int) (codec.Format, error) {
	if name := codecName(f.Encoding); name == "" || name == "raw" {
		return f, fmt.Errorf("ffmpeg: unsupported encoding %q", f.Encoding)
	}
	f.BufferSize = max(f.BufferSize, size)
	return f, nil
}

func (c *Component) commitRaw(f codec.Format, inherit bool) (codec.Format, error) {
	if f.Encoding != core.CodecI420 {
		return f, fmt.Errorf("ffmpeg: unsupported encoding %q", f.Encoding)
	}

	if f.Width == 0 && inherit {
		in := c.formats[codec.Input]
		f.Width, f.Height = in.Width, in.Height
	}
	if f.Width <= 0 || f.Height <= 0 {
		return f, fmt.Errorf("ffmpeg: wrong geometry %dx%d", f.Width, f.Height)
	}

	f.BufferSize = yuv.Size(f.Width, f.Height)
	return f, nil
}

func (c *Component) Enable(dir codec.Direction, cb codec.Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("ffmpeg: %w", core.ErrClosed)
	}
	if c.formats[dir].Encoding == "" {
		return errors.New("ffmpeg: enable before commit")
	}

	c.cb[dir] = cb
	c.enabled[dir] = true

	if c.enabled[codec.Input] && c.enabled[codec.Output] && c.proc == nil {
		p, err := c.start()
		if err != nil {
			c.enabled[dir] = false
			return err
		}
		c.proc = p
	}
	return nil
}

// Disable kills the process, waits for both goroutines and returns queued slots
func (c *Component) Disable(dir codec.Direction) error {
	c.mu.Lock()
	if !c.enabled[dir] {
		c.mu.Unlock()
		return nil
	}
	c.enabled[dir] = false
	p := c.proc
	c.proc = nil
	c.mu.Unlock()

	if p != nil {
		p.close()
	}

	c.mu.Lock()
	cb := c.cb[dir]
	var slots []*buffer.Slot
	if dir == codec.Input {
		slots, c.inputs = c.inputs, nil
	} else {
		slots, c.outputs = c.outputs, nil
	}
	c.mu.Unlock()

	for _, s := range slots {
		if dir == codec.Output {
			s.Length = 0
		}
		cb(dir, s, nil)
	}
	return nil
}

func (c *Component) Send(dir codec.Direction, s *buffer.Slot) error {
	c.mu.Lock()
	if !c.enabled[dir] {
		c.mu.Unlock()
		return errors.New("ffmpeg: send to disabled port")
	}

	if dir == codec.Input {
		c.inputs = append(c.inputs, s)
	} else {
		c.outputs = append(c.outputs, s)
	}
	c.mu.Unlock()

	if dir == codec.Input {
		signal(c.inWake)
	} else {
		signal(c.outWake)
	}
	return nil
}

func (c *Component) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	p := c.proc
	c.proc = nil
	c.mu.Unlock()

	if p != nil {
		p.close()
	}
	return c.rt.Release()
}

// Args for the committed formats, engine is resolved for auto
func (c *Component) Args() *Args {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.args()
}

func (c *Component) args() *Args {
	in, out := c.formats[codec.Input], c.formats[codec.Output]

	args := &Args{Bin: c.bin, Global: c.Global}

	engine := c.Engine
	if engine == "" {
		engine = EngineSoftware
	}

	if c.mode == Decode {
		name := codecName(in.Encoding)
		args.Input = "-fflags nobuffer -flags low_delay -probesize 32 -analyzeduration 0 -threads 1 " +
			demuxer(name) + " -i -"
		args.AddCodec(presets["raw"])
		args.AddFilter("scale=" + strconv.Itoa(out.Width) + ":" + strconv.Itoa(out.Height))
		args.Output = "-fps_mode passthrough -f rawvideo -"

		if engine == EngineAuto {
			engine = ProbeHardware(c.bin, name)
		}
		MakeHWAccel(args, engine)
		return args
	}

	name := codecName(out.Encoding)
	args.Input = "-f rawvideo -pix_fmt yuv420p -s " + strconv.Itoa(in.Width) + "x" + strconv.Itoa(in.Height) + " -i -"
	args.AddCodec(presets[name])
	if name == "mjpeg" && c.QScale > 0 {
		args.Codecs[0] += " -q:v " + strconv.Itoa(c.QScale)
	}
	if out.Width != in.Width || out.Height != in.Height {
		args.AddFilter("scale=" + strconv.Itoa(out.Width) + ":" + strconv.Itoa(out.Height))
	}
	args.Output = "-fps_mode passthrough -flush_packets 1 " + muxer(name)

	if engine == EngineAuto {
		engine = ProbeHardware(c.bin, name)
	}
	if engine != EngineSoftware {
		MakeHardware(args, name, engine)
	}
	return args
}

func demuxer(name string) string {
	switch name {
	case "h264":
		return "-f h264"
	case "h265":
		return "-f hevc"
	}
	return "-f mjpeg"
}

func muxer(name string) string {
	switch name {
	case "h264":
		return "-bsf:v h264_metadata=aud=insert -f h264 -"
	case "h265":
		return "-bsf:v hevc_metadata=aud=insert -f hevc -"
	}
	return "-f mjpeg -"
}

func (c *Component) splitter() bufio.SplitFunc {
	if c.mode == Decode {
		return splitRaw(c.formats[codec.Output].BufferSize)
	}
	switch codecName(c.formats[codec.Output].Encoding) {
	case "h264":
		return splitAnnexB(isAUDH264)
	case "h265":
		return splitAnnexB(isAUDH265)
	}
	return splitJPEG
}

type process struct {
	cmd  *shell.Command
	stop chan struct{}
	wg   sync.WaitGroup
}

// start runs under c.mu
func (c *Component) start() (*process, error) {
	args := c.args()

	cmd := shell.NewCommand(args.String())
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = &stderrWriter{log: c.log}

	c.log.Debug().Str("args", args.String()).Msg("[ffmpeg] start")

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %w", core.ErrDevice, err)
	}

	p := &process{cmd: cmd, stop: make(chan struct{})}

	size := c.formats[codec.Output].BufferSize

	p.wg.Add(2)
	go c.writer(p, stdin)
	go c.reader(p, stdout, c.splitter(), size)

	return p, nil
}

func (p *process) close() {
	close(p.stop)
	_ = p.cmd.Close()
	p.wg.Wait()
}

func (c *Component) writer(p *process, stdin io.WriteCloser) {
	defer p.wg.Done()
	defer stdin.Close()

	for {
		s := c.next(codec.Input, p.stop)
		if s == nil {
			return
		}

		_, err := stdin.Write(s.Bytes())

		// input fully consumed or never will be
		c.callback(codec.Input)(codec.Input, s, nil)

		if err != nil {
			c.log.Debug().Err(err).Msg("[ffmpeg] write")
			return
		}
	}
}

func (c *Component) reader(p *process, stdout io.Reader, split bufio.SplitFunc, size int) {
	defer p.wg.Done()

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 2*size+encodedMargin)
	sc.Split(split)

	for sc.Scan() {
		frame := sc.Bytes()

		s := c.next(codec.Output, p.stop)
		if s == nil {
			return
		}

		cb := c.callback(codec.Output)

		if len(frame) > len(s.Data) {
			s.Flags = buffer.FlagEvent | buffer.FlagError
			s.Status = codec.StatusNoSpace
			cb(codec.Output, s, &codec.Event{Kind: codec.EventError, Status: codec.StatusNoSpace})
			continue
		}

		s.Length = copy(s.Data, frame)
		cb(codec.Output, s, nil)
	}

	c.mu.Lock()
	stopped := c.proc != p
	c.mu.Unlock()
	if stopped {
		return
	}

	// stdout is broken, the process is useless even if it is still alive
	_ = p.cmd.Close()

	err := core.Any(sc.Err(), p.cmd.Wait(), io.ErrUnexpectedEOF)
	c.log.Warn().Err(err).Msg("[ffmpeg] process exited")

	c.event(&codec.Event{Kind: codec.EventError, Status: codec.StatusIO, Fatal: true})
}

// next waits for a queued slot of an enabled port, nil on stop
func (c *Component) next(dir codec.Direction, stop <-chan struct{}) *buffer.Slot {
	wake := c.inWake
	if dir == codec.Output {
		wake = c.outWake
	}

	for {
		c.mu.Lock()
		if c.enabled[dir] {
			if dir == codec.Input && len(c.inputs) > 0 {
				s := c.inputs[0]
				c.inputs = c.inputs[1:]
				c.mu.Unlock()
				return s
			}
			if dir == codec.Output && len(c.outputs) > 0 {
				s := c.outputs[0]
				c.outputs = c.outputs[1:]
				c.mu.Unlock()
				return s
			}
		}
		c.mu.Unlock()

		select {
		case <-wake:
		case <-stop:
			return nil
		}
	}
}

func (c *Component) callback(dir codec.Direction) codec.Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb[dir]
}

// event goes with a free output slot if there is one
func (c *Component) event(ev *codec.Event) {
	c.mu.Lock()
	var s *buffer.Slot
	if c.enabled[codec.Output] && len(c.outputs) > 0 {
		s = c.outputs[0]
		c.outputs = c.outputs[1:]
	}
	cb := c.cb[codec.Output]
	c.mu.Unlock()

	if cb == nil {
		return
	}

	if s != nil {
		s.Flags = buffer.FlagEvent | buffer.FlagError
		s.Status = ev.Status
	}
	cb(codec.Output, s, ev)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// stderrWriter logs ffmpeg messages line by line
type stderrWriter struct {
	log zerolog.Logger
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte{'\n'}) {
		if len(line) > 0 {
			w.log.Warn().Bytes("stderr", line).Msg("[ffmpeg]")
		}
	}
	return len(p), nil
}
