package codec

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/AlexxIT/framepump/pkg/buffer"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/yuv"
)

// fakeComponent - scriptable accelerator, worker goroutine is the hardware context
type fakeComponent struct {
	work sync.Mutex

	mu      sync.Mutex
	cb      [2]Callback
	enabled [2]bool
	formats [2]Format
	inputs  []*buffer.Slot
	outputs []*buffer.Slot
	events  []Event
	stall   bool
	closed  bool

	// process makes output from input, I420 of the output geometry by default
	process func(in []byte, out Format) []byte

	wake chan struct{}
	done chan struct{}
}

func newFakeComponent() *fakeComponent {
	f := &fakeComponent{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	f.process = func(in []byte, out Format) []byte {
		b := make([]byte, yuv.Size(out.Width, out.Height))
		copy(b, in)
		return b
	}
	go f.run()
	return f
}

func (f *fakeComponent) Commit(dir Direction, req Format) (Format, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.Encoding == "" {
		return Format{}, errors.New("fake: empty encoding")
	}
	if dir == Output && req.Encoding == core.CodecI420 {
		req.BufferSize = yuv.Size(req.Width, req.Height)
	} else {
		req.BufferSize = max(req.BufferSize, 1024)
	}
	req.BufferNum = max(req.BufferNum, 2)
	f.formats[dir] = req
	return req, nil
}

func (f *fakeComponent) Enable(dir Direction, cb Callback) error {
	f.mu.Lock()
	f.cb[dir] = cb
	f.enabled[dir] = true
	f.mu.Unlock()
	f.signal()
	return nil
}

func (f *fakeComponent) Disable(dir Direction) error {
	f.work.Lock()
	defer f.work.Unlock()

	f.mu.Lock()
	f.enabled[dir] = false
	cb := f.cb[dir]
	var slots []*buffer.Slot
	if dir == Input {
		slots, f.inputs = f.inputs, nil
	} else {
		slots, f.outputs = f.outputs, nil
	}
	f.mu.Unlock()

	for _, s := range slots {
		if dir == Output {
			s.Length = 0
		}
		cb(dir, s, nil)
	}
	return nil
}

func (f *fakeComponent) Send(dir Direction, s *buffer.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.enabled[dir] {
		return errors.New("fake: port disabled")
	}
	if s.Owner() != buffer.Hardware {
		return errors.New("fake: slot not owned by hardware")
	}

	if dir == Input {
		f.inputs = append(f.inputs, s)
	} else {
		f.outputs = append(f.outputs, s)
	}
	f.signal()
	return nil
}

func (f *fakeComponent) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("fake: closed twice")
	}
	f.closed = true
	f.mu.Unlock()

	close(f.wake)
	<-f.done
	return nil
}

func (f *fakeComponent) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// inject an event into the output stream
func (f *fakeComponent) inject(ev Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	f.signal()
}

func (f *fakeComponent) setStall(stall bool) {
	f.mu.Lock()
	f.stall = stall
	f.mu.Unlock()
	f.signal()
}

func (f *fakeComponent) queued() (inputs, outputs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs), len(f.outputs)
}

func (f *fakeComponent) run() {
	defer close(f.done)
	for range f.wake {
		for f.step() {
		}
	}
}

func (f *fakeComponent) step() bool {
	f.work.Lock()
	defer f.work.Unlock()

	f.mu.Lock()

	if len(f.events) > 0 {
		ev := f.events[0]
		f.events = f.events[1:]

		var s *buffer.Slot
		if f.enabled[Output] && len(f.outputs) > 0 {
			s = f.outputs[0]
			f.outputs = f.outputs[1:]
			s.Flags = buffer.FlagEvent
		}
		cb := f.cb[Output]
		f.mu.Unlock()

		cb(Output, s, &ev)
		return true
	}

	if f.stall || !f.enabled[Input] || !f.enabled[Output] || len(f.inputs) == 0 || len(f.outputs) == 0 {
		f.mu.Unlock()
		return false
	}

	in, out := f.inputs[0], f.outputs[0]
	f.inputs, f.outputs = f.inputs[1:], f.outputs[1:]
	cbIn, cbOut := f.cb[Input], f.cb[Output]
	format := f.formats[Output]
	f.mu.Unlock()

	b := f.process(in.Bytes(), format)
	cbIn(Input, in, nil)

	out.Length = copy(out.Data, b)
	cbOut(Output, out, nil)
	return true
}

// countMapper checks every mapped region is unmapped exactly once
type countMapper struct {
	mu      sync.Mutex
	regions map[uintptr]int
	mapped  int
	keep    [][]byte // address must not be reused by GC
}

func newCountMapper() *countMapper {
	return &countMapper{regions: map[uintptr]int{}}
}

func (m *countMapper) factory(size int) buffer.Mapper {
	return &sizedMapper{m: m, size: size}
}

func (m *countMapper) check() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.regions) != m.mapped {
		return errors.New("region mapped twice")
	}
	for _, n := range m.regions {
		if n != 1 {
			return errors.New("region not unmapped exactly once")
		}
	}
	return nil
}

type sizedMapper struct {
	m    *countMapper
	size int
}

func (s *sizedMapper) Map(int) ([]byte, error) {
	b := make([]byte, s.size)

	s.m.mu.Lock()
	s.m.regions[uintptr(unsafe.Pointer(&b[0]))] = 0
	s.m.mapped++
	s.m.keep = append(s.m.keep, b)
	s.m.mu.Unlock()

	return b, nil
}

func (s *sizedMapper) Unmap(_ int, b []byte) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	key := uintptr(unsafe.Pointer(&b[0]))
	if _, ok := s.m.regions[key]; !ok {
		return errors.New("unknown region")
	}
	s.m.regions[key]++
	return nil
}
