package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AlexxIT/framepump/pkg/buffer"
	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/mjpeg"
	"github.com/AlexxIT/framepump/pkg/yuv"
	"github.com/rs/zerolog"
)

type Mode byte

const (
	Decode Mode = iota // JPEG, MJPEG -> I420
	Encode             // I420 -> JPEG
)

const (
	DefaultAlign   = 16
	DefaultBuffers = 3

	jpegInputSize = 1 << 20
	jpegMargin    = 1 << 16
)

// Component - CPU codec with its own worker goroutine in the role of the hardware.
// Callbacks are called from the worker, and from Disable for returned slots.
type Component struct {
	Quality int // JPEG quality for Encode, zero is default
	Align   int // decoded geometry alignment

	mode Mode
	log  zerolog.Logger

	work sync.Mutex // held by the worker for one step

	mu      sync.Mutex
	formats [2]codec.Format
	cb      [2]codec.Callback
	enabled [2]bool
	inputs  []*buffer.Slot
	outputs []*buffer.Slot
	pending []byte // converted frame waiting for an output slot
	waitFmt bool   // format changed, output held until the port is committed again
	scratch []byte

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func New(mode Mode, log zerolog.Logger) *Component {
	c := &Component{
		Align: DefaultAlign,
		mode:  mode,
		log:   log,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Component) Commit(dir codec.Direction, f codec.Format) (codec.Format, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled[dir] {
		return codec.Format{}, errors.New("soft: commit on enabled port")
	}

	var err error
	switch {
	case c.mode == Decode && dir == codec.Input:
		f, err = c.commitJPEG(f, jpegInputSize)
	case c.mode == Decode && dir == codec.Output:
		f, err = c.commitI420(f, true)
	case c.mode == Encode && dir == codec.Input:
		f, err = c.commitI420(f, false)
	case c.mode == Encode && dir == codec.Output:
		in := c.formats[codec.Input]
		if f.Width == 0 {
			f.Width, f.Height = in.Width, in.Height
		}
		f, err = c.commitJPEG(f, yuv.Size(f.Width, f.Height)+jpegMargin)
	}
	if err != nil {
		return codec.Format{}, err
	}

	f.BufferNum = max(f.BufferNum, DefaultBuffers)
	c.formats[dir] = f
	if dir == codec.Output {
		c.waitFmt = false
	}
	return f, nil
}

func (c *Component) commitJPEG(f codec.Format, size int) (codec.Format, error) {
	switch f.Encoding {
	case core.CodecJPEG, core.CodecMJPEG:
	default:
		return f, fmt.Errorf("soft: unsupported encoding %q", f.Encoding)
	}
	f.BufferSize = max(f.BufferSize, size)
	return f, nil
}

func (c *Component) commitI420(f codec.Format, align bool) (codec.Format, error) {
	if f.Encoding != core.CodecI420 {
		return f, fmt.Errorf("soft: unsupported encoding %q", f.Encoding)
	}

	if f.Width == 0 && align {
		in := c.formats[codec.Input]
		f.Width, f.Height = in.Width, in.Height
	}
	if f.Width <= 0 || f.Height <= 0 {
		return f, fmt.Errorf("soft: wrong geometry %dx%d", f.Width, f.Height)
	}

	if align {
		f.Width = yuv.Align(f.Width, c.Align)
		f.Height = yuv.Align(f.Height, c.Align)
	}
	f.BufferSize = yuv.Size(f.Width, f.Height)
	return f, nil
}

func (c *Component) Enable(dir codec.Direction, cb codec.Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.formats[dir].Encoding == "" {
		return errors.New("soft: enable before commit")
	}
	c.cb[dir] = cb
	c.enabled[dir] = true
	c.signal()
	return nil
}

// Disable waits for the current worker step and returns queued slots
func (c *Component) Disable(dir codec.Direction) error {
	c.work.Lock()
	defer c.work.Unlock()

	c.mu.Lock()
	if !c.enabled[dir] {
		c.mu.Unlock()
		return nil
	}
	c.enabled[dir] = false

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
	defer c.mu.Unlock()

	if !c.enabled[dir] {
		return errors.New("soft: send to disabled port")
	}

	if dir == codec.Input {
		c.inputs = append(c.inputs, s)
	} else {
		c.outputs = append(c.outputs, s)
	}
	c.signal()
	return nil
}

func (c *Component) Close() error {
	c.once.Do(func() {
		close(c.stop)
	})
	<-c.done
	return nil
}

func (c *Component) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Component) run() {
	defer close(c.done)

	for {
		select {
		case <-c.wake:
		case <-c.stop:
			return
		}

		for c.step() {
		}
	}
}

// step does one unit of work, false if there is nothing to do
func (c *Component) step() bool {
	c.work.Lock()
	defer c.work.Unlock()

	c.mu.Lock()

	if c.pending != nil {
		if c.waitFmt || !c.enabled[codec.Output] || len(c.outputs) == 0 {
			c.mu.Unlock()
			return false
		}

		s := c.outputs[0]
		c.outputs = c.outputs[1:]
		frame := c.pending
		c.pending = nil
		cb := c.cb[codec.Output]
		c.mu.Unlock()

		if len(frame) > len(s.Data) {
			s.Flags = buffer.FlagEvent | buffer.FlagError
			s.Status = codec.StatusNoSpace
			cb(codec.Output, s, &codec.Event{Kind: codec.EventError, Status: codec.StatusNoSpace})
			return true
		}

		s.Length = copy(s.Data, frame)
		cb(codec.Output, s, nil)
		return true
	}

	if !c.enabled[codec.Input] || len(c.inputs) == 0 {
		c.mu.Unlock()
		return false
	}

	s := c.inputs[0]
	c.inputs = c.inputs[1:]
	cb := c.cb[codec.Input]
	in, out := c.formats[codec.Input], c.formats[codec.Output]
	c.mu.Unlock()

	var frame []byte
	var changed *codec.Format
	var err error

	if c.mode == Decode {
		frame, changed, err = c.decode(s.Bytes(), out)
	} else {
		frame, err = c.encode(s.Bytes(), in)
	}

	// input fully consumed
	cb(codec.Input, s, nil)

	if err != nil {
		c.log.Debug().Err(err).Msg("[soft] convert")
		c.event(&codec.Event{Kind: codec.EventError, Status: codec.StatusCorrupt})
		return true
	}

	if changed != nil {
		c.mu.Lock()
		c.formats[codec.Output].Width = changed.Width
		c.formats[codec.Output].Height = changed.Height
		c.formats[codec.Output].BufferSize = changed.BufferSize
		c.waitFmt = true
		c.mu.Unlock()

		c.event(&codec.Event{Kind: codec.EventFormatChanged, Format: *changed})
	}

	c.mu.Lock()
	c.pending = frame
	c.mu.Unlock()
	return true
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
		s.Flags = buffer.FlagEvent
		if ev.Kind == codec.EventError {
			s.Flags |= buffer.FlagError
		}
		s.Status = ev.Status
	}
	cb(codec.Output, s, ev)
}

func (c *Component) decode(b []byte, out codec.Format) ([]byte, *codec.Format, error) {
	img, err := mjpeg.Decode(b)
	if err != nil {
		return nil, nil, err
	}

	rect := img.Bounds()
	w := yuv.Align(rect.Dx(), c.Align)
	h := yuv.Align(rect.Dy(), c.Align)

	var changed *codec.Format
	if w != out.Width || h != out.Height {
		changed = &codec.Format{
			Encoding:   core.CodecI420,
			Width:      w,
			Height:     h,
			BufferSize: yuv.Size(w, h),
			BufferNum:  out.BufferNum,
		}
	}

	size := yuv.Size(w, h)
	if cap(c.scratch) < size {
		c.scratch = make([]byte, size)
	}
	frame := c.scratch[:size]

	if _, err = yuv.FromImage(frame, img, w, h); err != nil {
		return nil, nil, err
	}
	return frame, changed, nil
}

func (c *Component) encode(b []byte, in codec.Format) ([]byte, error) {
	img := yuv.NewImage(b, in.Width, in.Height)
	if img == nil {
		return nil, fmt.Errorf("soft: input %d bytes, want %d", len(b), yuv.Size(in.Width, in.Height))
	}
	frame, err := mjpeg.Encode(c.scratch[:0], img, c.Quality)
	if err != nil {
		return nil, err
	}
	c.scratch = frame
	return frame, nil
}
