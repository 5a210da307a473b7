package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexxIT/framepump/pkg/buffer"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/v4l2/device"
	"github.com/rs/zerolog"
)

// DefaultBuffers - each NextFrame returns its slot to the kernel at once,
// so a small ring keeps latency low
const DefaultBuffers = 4

// DefaultWaitSlice - how long one poll waits before checking for Close
const DefaultWaitSlice = 100 * time.Millisecond

// Device - kernel side of the ring, implemented by device.Device
type Device interface {
	SetFormat(width, height, pixFmt uint32) (*device.PixFormat, error)
	SetParam(fps uint32) (uint32, error)
	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (offset, length uint32, err error)
	Mmap(offset, length uint32) ([]byte, error)
	Munmap(b []byte) error
	Queue(index uint32) error
	Dequeue() (index, bytesused uint32, corrupted bool, err error)
	Wait(timeout time.Duration) (bool, error)
	StreamOn() error
	StreamOff() error
	Close() error
}

// Ring cycles mmap slots between the kernel and the application.
// While streaming every slot not checked out by NextFrame is queued to the kernel.
type Ring struct {
	ID        string
	WaitSlice time.Duration

	dev    Device
	pool   *buffer.Pool
	format device.PixFormat
	fps    uint32
	log    zerolog.Logger

	mu        sync.Mutex // one NextFrame at a time, Close waits for it
	streaming bool
	closed    bool
	closing   atomic.Bool
	err       error // fatal, returned by every next call

	frames    atomic.Uint64
	corrupted atomic.Uint64
}

func New(dev Device, log zerolog.Logger) *Ring {
	id := core.NewID()
	return &Ring{
		ID:        id,
		WaitSlice: DefaultWaitSlice,
		dev:       dev,
		log:       log.With().Str("ring", id).Logger(),
	}
}

// Configure negotiates the capture format. The driver must accept it as is.
func (r *Ring) Configure(width, height, pixFmt uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool != nil {
		return fmt.Errorf("capture: configure after allocate: %w", core.ErrConfig)
	}

	f, err := r.dev.SetFormat(width, height, pixFmt)
	if err != nil {
		return fmt.Errorf("capture: set format: %w: %w", core.ErrFormat, err)
	}

	if f.Width != width || f.Height != height || f.PixelFormat != pixFmt {
		return fmt.Errorf(
			"capture: want %dx%d %s, driver gives %dx%d %s: %w",
			width, height, core.FourCCString(pixFmt),
			f.Width, f.Height, core.FourCCString(f.PixelFormat), core.ErrFormat,
		)
	}

	r.format = *f

	r.log.Debug().Uint32("width", f.Width).Uint32("height", f.Height).
		Str("format", core.FourCCString(f.PixelFormat)).Uint32("size", f.SizeImage).Msg("[capture] configure")

	return nil
}

// SetFrameRate returns the rate accepted by the driver
func (r *Ring) SetFrameRate(fps uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	got, err := r.dev.SetParam(fps)
	if err != nil {
		return 0, fmt.Errorf("capture: set fps: %w: %w", core.ErrConfig, err)
	}
	if got != fps {
		r.log.Warn().Uint32("want", fps).Uint32("got", got).Msg("[capture] frame rate adjusted")
	}
	r.fps = got
	return got, nil
}

// Allocate requests count kernel buffers and maps them into the pool.
// On failure nothing stays mapped and the kernel buffers are freed.
func (r *Ring) Allocate(count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.format.Width == 0 {
		return fmt.Errorf("capture: allocate before configure: %w", core.ErrConfig)
	}
	if r.pool != nil {
		return fmt.Errorf("capture: allocate twice: %w", core.ErrConfig)
	}
	if count <= 0 {
		count = DefaultBuffers
	}

	n, err := r.dev.RequestBuffers(uint32(count))
	if err != nil {
		return fmt.Errorf("capture: request buffers: %w: %w", core.ErrResource, err)
	}
	if n == 0 {
		return fmt.Errorf("capture: driver granted no buffers: %w", core.ErrResource)
	}
	if int(n) != count {
		r.log.Debug().Int("want", count).Uint32("got", n).Msg("[capture] buffers count adjusted")
	}

	pool, err := buffer.New(int(n), &mapper{dev: r.dev})
	if err != nil {
		if _, err2 := r.dev.RequestBuffers(0); err2 != nil {
			r.log.Warn().Err(err2).Msg("[capture] free buffers")
		}
		return fmt.Errorf("capture: %w", err)
	}

	r.pool = pool
	return nil
}

// Start queues every slot to the kernel and turns streaming on
func (r *Ring) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool == nil {
		return fmt.Errorf("capture: start before allocate: %w", core.ErrConfig)
	}
	if r.streaming {
		return nil
	}

	for s := r.pool.Acquire(buffer.Kernel); s != nil; s = r.pool.Acquire(buffer.Kernel) {
		if err := r.dev.Queue(uint32(s.Index)); err != nil {
			return fmt.Errorf("capture: queue slot %d: %w: %w", s.Index, core.ErrDevice, err)
		}
	}

	if err := r.dev.StreamOn(); err != nil {
		return fmt.Errorf("capture: stream on: %w: %w", core.ErrDevice, err)
	}

	r.streaming = true
	return nil
}

// NextFrame blocks until the kernel fills a slot or the ring is closed
func (r *Ring) NextFrame() ([]byte, error) {
	return r.NextFrameTimeout(0)
}

// NextFrameTimeout returns a copy of the next filled slot. The slot is queued
// back to the kernel before return. Zero timeout waits forever.
func (r *Ring) NextFrameTimeout(timeout time.Duration) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	if r.closed || r.closing.Load() {
		return nil, fmt.Errorf("capture: %w", core.ErrClosed)
	}
	if !r.streaming {
		return nil, fmt.Errorf("capture: not streaming: %w", core.ErrConfig)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if r.closing.Load() {
			return nil, fmt.Errorf("capture: %w", core.ErrClosed)
		}

		index, n, corrupted, err := r.dev.Dequeue()
		if errors.Is(err, device.ErrNotReady) {
			wait := r.WaitSlice
			if timeout > 0 {
				left := time.Until(deadline)
				if left <= 0 {
					return nil, fmt.Errorf("capture: %w", core.ErrTimeout)
				}
				if left < wait {
					wait = left
				}
			}
			if _, err = r.dev.Wait(wait); err != nil {
				return nil, r.fail("wait", err)
			}
			continue
		}
		if err != nil {
			return nil, r.fail("dequeue", err)
		}

		b, err := r.copyOut(index, n, corrupted)
		if err != nil {
			return nil, err
		}
		if b != nil {
			r.frames.Add(1)
			return b, nil
		}

		r.corrupted.Add(1)
		r.log.Debug().Uint32("index", index).Msg("[capture] skip corrupted frame")
	}
}

// copyOut returns nil data for a corrupted frame
func (r *Ring) copyOut(index, n uint32, corrupted bool) ([]byte, error) {
	s := r.pool.Slot(int(index))
	if s == nil {
		return nil, r.fail("dequeue", fmt.Errorf("unknown slot %d", index))
	}

	if err := r.pool.Transfer(s, buffer.Kernel, buffer.Application); err != nil {
		return nil, r.fail("dequeue", err)
	}

	var b []byte
	if !corrupted {
		s.Length = min(int(n), len(s.Data))
		b = make([]byte, s.Length)
		copy(b, s.Bytes())
	}

	if err := r.pool.Transfer(s, buffer.Application, buffer.Kernel); err != nil {
		return nil, r.fail("requeue", err)
	}
	if err := r.dev.Queue(index); err != nil {
		return nil, r.fail("requeue", err)
	}

	return b, nil
}

func (r *Ring) fail(op string, err error) error {
	r.err = fmt.Errorf("capture: %s: %w: %w", op, core.ErrDevice, err)
	r.log.Error().Err(err).Str("op", op).Msg("[capture] ring is broken")
	return r.err
}

// Close interrupts a waiting NextFrame, stops streaming and unmaps every slot once
func (r *Ring) Close() error {
	if !r.closing.CompareAndSwap(false, true) {
		return fmt.Errorf("capture: %w", core.ErrClosed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.streaming {
		// best effort, the device may be already gone
		if err := r.dev.StreamOff(); err != nil {
			r.log.Warn().Err(err).Msg("[capture] stream off")
		}
		r.streaming = false
	}

	var errPool error
	if r.pool != nil {
		// after stream off the kernel holds no slots
		if n := r.pool.Reclaim(); n > 0 {
			r.log.Trace().Int("slots", n).Msg("[capture] reclaim")
		}
		errPool = r.pool.Close()

		if _, err := r.dev.RequestBuffers(0); err != nil {
			r.log.Warn().Err(err).Msg("[capture] free buffers")
		}
	}

	r.log.Debug().Uint64("frames", r.frames.Load()).Uint64("corrupted", r.corrupted.Load()).Msg("[capture] close")

	return core.Any(errPool, r.dev.Close())
}

func (r *Ring) Format() device.PixFormat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

// Pool - nil before Allocate
func (r *Ring) Pool() *buffer.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

func (r *Ring) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streaming
}

func (r *Ring) Frames() (frames, corrupted uint64) {
	return r.frames.Load(), r.corrupted.Load()
}

type mapper struct {
	dev Device
}

func (m *mapper) Map(index int) ([]byte, error) {
	offset, length, err := m.dev.QueryBuffer(uint32(index))
	if err != nil {
		return nil, err
	}
	return m.dev.Mmap(offset, length)
}

func (m *mapper) Unmap(_ int, b []byte) error {
	return m.dev.Munmap(b)
}
