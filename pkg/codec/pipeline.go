package codec

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexxIT/framepump/pkg/buffer"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/yuv"
	"github.com/rs/zerolog"
)

type State byte

const (
	Unconfigured State = iota
	Configured
	Running
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// DefaultWaitSlice - how often a waiting NextResult checks for a hardware fault
const DefaultWaitSlice = 100 * time.Millisecond

type Stats struct {
	Submitted     uint64 `json:"submitted"`
	Results       uint64 `json:"results"`
	Events        uint64 `json:"events"`
	Errors        uint64 `json:"errors"`
	FormatChanges uint64 `json:"format_changes"`
	Backpressure  uint64 `json:"backpressure"`
}

type result struct {
	slot   *buffer.Slot
	format Format // output format when the slot was filled
}

// Pipeline feeds a component through two bounded pools.
// Completions come from the component context into a queue read by NextResult.
// A pump goroutine keeps the output port supplied with free slots.
type Pipeline struct {
	ID        string
	WaitSlice time.Duration

	comp  Component
	in    *Port
	out   *Port
	queue *Queue[result]
	log   zerolog.Logger

	submitMu sync.Mutex // Submit against the Running -> Draining switch
	resultMu sync.Mutex // popped result copy against pool teardown in Close

	mu      sync.Mutex
	state   State
	fault   error
	pending *Format
	outFmt  Format
	retired []*buffer.Pool

	formatCh chan struct{}
	stop     chan struct{}
	done     chan struct{}

	submitted     atomic.Uint64
	results       atomic.Uint64
	events        atomic.Uint64
	errorEvents   atomic.Uint64
	formatChanges atomic.Uint64
	backpressure  atomic.Uint64
}

func New(comp Component, log zerolog.Logger) *Pipeline {
	id := core.NewID()
	return &Pipeline{
		ID:        id,
		WaitSlice: DefaultWaitSlice,
		comp:      comp,
		in:        NewPort(comp, Input),
		out:       NewPort(comp, Output),
		queue:     NewQueue[result](),
		log:       log.With().Str("pipeline", id).Logger(),
		formatCh:  make(chan struct{}, 1),
	}
}

// SetMapper replaces slot memory for both ports, only before Configure
func (p *Pipeline) SetMapper(mapper func(size int) buffer.Mapper) {
	p.in.Mapper = mapper
	p.out.Mapper = mapper
}

// Configure commits both formats and allocates both pools.
// BufferNum and BufferSize of the request are raised to the committed minimums.
func (p *Pipeline) Configure(in, out Format) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Unconfigured {
		return fmt.Errorf("codec: configure in state %s: %w", p.state, core.ErrConfig)
	}

	defer func() {
		if err != nil {
			// pools of a failed configure are not referenced by the component
			_ = p.in.Close()
			_ = p.out.Close()
		}
	}()

	for _, port := range []*Port{p.in, p.out} {
		req := in
		if port.Dir == Output {
			req = out
		}

		got, err := port.CommitFormat(req)
		if err != nil {
			return err
		}

		count := max(req.BufferNum, got.BufferNum, 1)
		size := max(req.BufferSize, got.BufferSize)
		if err = port.Allocate(count, size); err != nil {
			return err
		}

		p.log.Debug().Stringer("port", port.Dir).Stringer("format", got).
			Int("buffers", count).Int("size", size).Msg("[codec] configure")
	}

	p.outFmt = p.out.Format()
	p.state = Configured
	return nil
}

// Start enables both ports and runs the pump
func (p *Pipeline) Start() error {
	if state := p.State(); state != Configured {
		return fmt.Errorf("codec: start in state %s: %w", state, core.ErrConfig)
	}

	// the component may call back while ports are enabled
	if err := p.in.Enable(p.callback); err != nil {
		return err
	}
	if err := p.out.Enable(p.callback); err != nil {
		_ = p.in.Disable()
		return err
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.pump()

	p.mu.Lock()
	p.state = Running
	p.mu.Unlock()
	return nil
}

// Submit copies the frame into a free input slot and sends it.
// Returns ErrBackpressure without touching any slot when the input pool is empty.
func (p *Pipeline) Submit(b []byte) error {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if err := p.running(); err != nil {
		return err
	}

	pool := p.in.Pool()
	if len(b) > pool.Size() {
		return fmt.Errorf("codec: frame %d bytes > input buffer %d: %w", len(b), pool.Size(), core.ErrFormat)
	}

	s := pool.Acquire(buffer.Application)
	if s == nil {
		p.backpressure.Add(1)
		return core.ErrBackpressure
	}

	s.Length = copy(s.Data, b)

	if err := pool.Transfer(s, buffer.Application, buffer.Hardware); err != nil {
		_ = pool.Release(s)
		return err
	}

	if err := p.in.Send(s); err != nil {
		_ = pool.Release(s)
		return p.setFault(err)
	}

	p.submitted.Add(1)
	return nil
}

// NextResult blocks until a result is ready or the pipeline is closed
func (p *Pipeline) NextResult() ([]byte, error) {
	return p.NextResultTimeout(0)
}

// NextResultTimeout returns a copy of the next output, the slot goes back to the pool
// before return. Zero timeout waits forever.
func (p *Pipeline) NextResultTimeout(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if err := p.running(); err != nil {
			return nil, err
		}

		wait := p.WaitSlice
		if timeout > 0 {
			left := time.Until(deadline)
			if left <= 0 {
				return nil, fmt.Errorf("codec: %w", core.ErrTimeout)
			}
			wait = min(wait, left)
		}

		b, format, err := p.pop(wait)
		if errors.Is(err, core.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("codec: %w", err)
		}

		if format.Encoding == core.CodecI420 {
			if size := yuv.Size(format.Width, format.Height); len(b) != size {
				return nil, fmt.Errorf(
					"codec: output %d bytes, %s needs %d: %w", len(b), format, size, core.ErrFormat,
				)
			}
		}

		p.results.Add(1)
		return b, nil
	}
}

// pop copies the next result out and releases its slot. Close takes resultMu
// before unmapping pools, so the slot stays mapped until the copy is done.
func (p *Pipeline) pop(wait time.Duration) ([]byte, Format, error) {
	p.resultMu.Lock()
	defer p.resultMu.Unlock()

	r, err := p.queue.Pop(wait)
	if err != nil {
		return nil, Format{}, err
	}

	b := make([]byte, r.slot.Length)
	copy(b, r.slot.Bytes())
	p.release(r.slot)

	return b, r.format, nil
}

// Convert - Submit then NextResult
func (p *Pipeline) Convert(b []byte) ([]byte, error) {
	if err := p.Submit(b); err != nil {
		return nil, err
	}
	return p.NextResult()
}

// callback runs in the component context
func (p *Pipeline) callback(dir Direction, s *buffer.Slot, ev *Event) {
	if ev != nil {
		p.event(dir, s, ev)
		return
	}

	// consumed input or output returned empty by disable
	if dir == Input || s.Length == 0 {
		p.release(s)
		return
	}

	p.mu.Lock()
	state, format := p.state, p.outFmt
	p.mu.Unlock()

	if state != Running {
		p.release(s)
		return
	}

	if err := s.Pool().Transfer(s, buffer.Hardware, buffer.Application); err != nil {
		p.log.Warn().Err(err).Int("index", s.Index).Msg("[codec] output slot")
		return
	}

	if !p.queue.Push(result{slot: s, format: format}) {
		p.release(s)
	}
}

func (p *Pipeline) event(dir Direction, s *buffer.Slot, ev *Event) {
	p.events.Add(1)

	switch ev.Kind {
	case EventFormatChanged:
		p.formatChanges.Add(1)
		p.log.Debug().Stringer("format", ev.Format).Msg("[codec] format changed")

		f := ev.Format
		p.mu.Lock()
		p.pending = &f
		p.mu.Unlock()

		select {
		case p.formatCh <- struct{}{}:
		default:
		}

	case EventError:
		p.errorEvents.Add(1)
		p.log.Warn().Stringer("port", dir).Int32("status", ev.Status).Bool("fatal", ev.Fatal).Msg("[codec] error event")

		if ev.Fatal {
			_ = p.setFault(fmt.Errorf(
				"codec: %s status %d: %w: %w", dir, ev.Status, core.ErrDevice, core.ErrHardwareEvent,
			))
		}

	default:
		p.log.Debug().Stringer("kind", ev.Kind).Msg("[codec] unknown event")
	}

	if s != nil {
		p.release(s)
	}
}

// pump resends free output slots, it sleeps while the pool is empty
func (p *Pipeline) pump() {
	defer close(p.done)

	for {
		select {
		case <-p.formatCh:
			if err := p.reconfigure(); err != nil {
				_ = p.setFault(err)
				return
			}
		default:
		}

		pool := p.out.Pool()
		changed := pool.Changed()

		for s := pool.Acquire(buffer.Hardware); s != nil; s = pool.Acquire(buffer.Hardware) {
			if err := p.out.Send(s); err != nil {
				_ = pool.Release(s)
				if errors.Is(err, core.ErrClosed) {
					// port disabled outside the pump, only Close does it
					<-p.stop
					return
				}
				_ = p.setFault(err)
				return
			}
		}

		select {
		case <-changed:
		case <-p.formatCh:
			if err := p.reconfigure(); err != nil {
				_ = p.setFault(err)
				return
			}
		case <-p.stop:
			return
		}
	}
}

// reconfigure applies the pending output format: disable, commit,
// reallocate if the slot size differs or slots are too few, enable
func (p *Pipeline) reconfigure() error {
	p.mu.Lock()
	f := p.pending
	p.pending = nil
	p.mu.Unlock()

	if f == nil {
		return nil
	}

	if err := p.out.Disable(); err != nil {
		return err
	}

	got, err := p.out.CommitFormat(*f)
	if err != nil {
		return err
	}

	pool := p.out.Pool()
	if got.BufferSize != pool.Size() || got.BufferNum > pool.Len() {
		count := max(got.BufferNum, pool.Len())
		old, err := p.out.Reallocate(count, got.BufferSize)
		if err != nil {
			return err
		}
		p.retire(old)

		p.log.Debug().Int("buffers", count).Int("size", got.BufferSize).Msg("[codec] output reallocated")
	}

	p.mu.Lock()
	p.outFmt = got
	p.mu.Unlock()

	p.log.Info().Stringer("format", got).Msg("[codec] output reconfigured")

	return p.out.Enable(p.callback)
}

// release a slot of any port pool, retired pools are closed when empty
func (p *Pipeline) release(s *buffer.Slot) {
	pool := s.Pool()
	if err := pool.Release(s); err != nil {
		p.log.Warn().Err(err).Int("index", s.Index).Msg("[codec] release")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.Index(p.retired, pool); i >= 0 && pool.Available() == pool.Len() {
		p.retired = slices.Delete(p.retired, i, i+1)
		if err := pool.Close(); err != nil {
			p.log.Warn().Err(err).Msg("[codec] close retired pool")
		}
	}
}

func (p *Pipeline) retire(pool *buffer.Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pool.Available() == pool.Len() {
		if err := pool.Close(); err != nil {
			p.log.Warn().Err(err).Msg("[codec] close retired pool")
		}
		return
	}
	p.retired = append(p.retired, pool)
}

// setFault keeps the first fault, every next caller call returns it
func (p *Pipeline) setFault(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fault == nil {
		if !errors.Is(err, core.ErrDevice) {
			err = fmt.Errorf("codec: %w: %w", core.ErrDevice, err)
		}
		p.fault = err
		p.log.Error().Err(err).Msg("[codec] pipeline is broken")
	}
	return p.fault
}

func (p *Pipeline) running() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fault != nil {
		return p.fault
	}

	switch p.state {
	case Running:
		return nil
	case Draining, Closed:
		return fmt.Errorf("codec: %w", core.ErrClosed)
	}
	return fmt.Errorf("codec: not running, state %s: %w", p.state, core.ErrConfig)
}

// Close stops submits, joins the pump, disables the ports, then frees every slot
// and destroys the pools and the component
func (p *Pipeline) Close() error {
	p.submitMu.Lock()
	p.mu.Lock()
	state := p.state
	if state == Draining || state == Closed {
		p.mu.Unlock()
		p.submitMu.Unlock()
		return fmt.Errorf("codec: %w", core.ErrClosed)
	}
	p.state = Draining
	p.mu.Unlock()
	p.submitMu.Unlock()

	if state == Running {
		close(p.stop)
		<-p.done
	}

	// component stops touching slots only after both ports are disabled
	errIn := p.in.Disable()
	errOut := p.out.Disable()

	p.queue.Close()

	// wait for a consumer that already popped a result
	p.resultMu.Lock()
	defer p.resultMu.Unlock()

	for _, r := range p.queue.Drain() {
		p.release(r.slot)
	}

	errs := []error{errIn, errOut, p.in.Close(), p.out.Close()}

	p.mu.Lock()
	for _, pool := range p.retired {
		pool.Reclaim()
		errs = append(errs, pool.Close())
	}
	p.retired = nil
	p.mu.Unlock()

	errs = append(errs, p.comp.Close())

	p.mu.Lock()
	p.state = Closed
	p.mu.Unlock()

	p.log.Debug().Interface("stats", p.Stats()).Msg("[codec] close")

	return core.Any(errs...)
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// OutputFormat - committed output format, updated by format change events
func (p *Pipeline) OutputFormat() Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outFmt
}

func (p *Pipeline) InputFormat() Format {
	return p.in.Format()
}

// Pools - current input and output pools
func (p *Pipeline) Pools() (in, out *buffer.Pool) {
	return p.in.Pool(), p.out.Pool()
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted:     p.submitted.Load(),
		Results:       p.results.Load(),
		Events:        p.events.Load(),
		Errors:        p.errorEvents.Load(),
		FormatChanges: p.formatChanges.Load(),
		Backpressure:  p.backpressure.Load(),
	}
}
