package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/eapache/queue"
)

var (
	// ErrOwnership - contract violation: wrong owner, double release or foreign slot
	ErrOwnership = errors.New("buffer: ownership violation")

	// ErrLeak - pool destroyed while some slots are still owned
	ErrLeak = fmt.Errorf("buffer: slots not reclaimed: %w", core.ErrConfig)
)

// Mapper provides the memory behind pool slots
type Mapper interface {
	Map(index int) ([]byte, error)
	Unmap(index int, b []byte) error
}

// Pool - fixed arena of slots addressed by index plus a FIFO free list.
// Created once, never resized.
type Pool struct {
	mu      sync.Mutex
	slots   []*Slot
	free    *queue.Queue // slot indexes
	mapper  Mapper
	size    int
	changed chan struct{}
	closed  bool
}

// New maps count slots. If any slot fails, every slot mapped so far is unmapped
// before the error is returned.
func New(count int, mapper Mapper) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("buffer: wrong slots count %d: %w", count, core.ErrConfig)
	}

	p := &Pool{
		slots:   make([]*Slot, 0, count),
		free:    queue.New(),
		mapper:  mapper,
		changed: make(chan struct{}),
	}

	for i := 0; i < count; i++ {
		b, err := mapper.Map(i)
		if err == nil && len(b) == 0 {
			err = errors.New("empty region")
		}
		if err != nil {
			for _, s := range p.slots {
				_ = mapper.Unmap(s.Index, s.Data)
				s.Data = nil
			}
			return nil, fmt.Errorf("buffer: map slot %d: %w: %w", i, core.ErrResource, err)
		}

		p.slots = append(p.slots, &Slot{Index: i, Data: b, pool: p})
		p.free.Add(i)

		if p.size == 0 || len(b) < p.size {
			p.size = len(b)
		}
	}

	return p, nil
}

// Len - total slots count
func (p *Pool) Len() int {
	return len(p.slots)
}

// Size - capacity of the smallest slot
func (p *Pool) Size() int {
	return p.size
}

// Slot by index, nil if out of range
func (p *Pool) Slot(index int) *Slot {
	if index < 0 || index >= len(p.slots) {
		return nil
	}
	return p.slots[index]
}

// Available - free slots count
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Length()
}

// Acquire pops the free list head and gives it to owner.
// Returns nil when the pool is empty: this is backpressure, not a failure.
func (p *Pool) Acquire(owner Owner) *Slot {
	if owner == Free {
		panic("buffer: acquire for free owner")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.acquire(owner)
}

func (p *Pool) acquire(owner Owner) *Slot {
	if p.closed || p.free.Length() == 0 {
		return nil
	}
	s := p.slots[p.free.Remove().(int)]
	s.owner = owner
	return s
}

// AcquireWait blocks until a slot is free or stop is closed.
// Returns nil on stop or when the pool is closed.
func (p *Pool) AcquireWait(owner Owner, stop <-chan struct{}) *Slot {
	if owner == Free {
		panic("buffer: acquire for free owner")
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil
		}
		if s := p.acquire(owner); s != nil {
			p.mu.Unlock()
			return s
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-stop:
			return nil
		}
	}
}

// Changed - closed on next release, reclaim or close
func (p *Pool) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// Transfer moves a slot between two non-free owners
func (p *Pool) Transfer(s *Slot, from, to Owner) error {
	if from == Free || to == Free {
		return fmt.Errorf("buffer: transfer %s -> %s, use acquire or release: %w", from, to, ErrOwnership)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(s); err != nil {
		return err
	}
	if s.owner != from {
		return fmt.Errorf("buffer: slot %d owned by %s, not %s: %w", s.Index, s.owner, from, ErrOwnership)
	}

	s.owner = to
	return nil
}

// Release returns a slot to the free list and clears its metadata
func (p *Pool) Release(s *Slot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(s); err != nil {
		return err
	}
	if s.owner == Free {
		return fmt.Errorf("buffer: slot %d released twice: %w", s.Index, ErrOwnership)
	}

	s.owner = Free
	s.reset()
	p.free.Add(s.Index)
	p.notify()
	return nil
}

// Reclaim forces every slot back to free regardless of owner.
// Only for teardown, after the other side can no longer touch the slots.
func (p *Pool) Reclaim() (n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if s.owner == Free {
			continue
		}
		s.owner = Free
		s.reset()
		p.free.Add(s.Index)
		n++
	}

	if n > 0 {
		p.notify()
	}
	return
}

// Close unmaps every slot exactly once. All slots must be free.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("buffer: pool: %w", core.ErrClosed)
	}

	var owned int
	for _, s := range p.slots {
		if s.owner != Free {
			owned++
		}
	}
	if owned > 0 {
		return fmt.Errorf("buffer: %d of %d slots: %w", owned, len(p.slots), ErrLeak)
	}

	p.closed = true

	var err error
	for _, s := range p.slots {
		if e := p.mapper.Unmap(s.Index, s.Data); e != nil && err == nil {
			err = fmt.Errorf("buffer: unmap slot %d: %w", s.Index, e)
		}
		s.Data = nil
	}

	p.notify()
	return err
}

func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Owners - snapshot of every slot owner
func (p *Pool) Owners() []Owner {
	p.mu.Lock()
	defer p.mu.Unlock()

	owners := make([]Owner, len(p.slots))
	for i, s := range p.slots {
		owners[i] = s.owner
	}
	return owners
}

// Check verifies: free list not bigger than pool, no duplicates,
// slot is in the free list if and only if it is free.
func (p *Pool) Check() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.free.Length()
	if n > len(p.slots) {
		return fmt.Errorf("buffer: free list %d > slots %d", n, len(p.slots))
	}

	listed := make([]bool, len(p.slots))
	for i := 0; i < n; i++ {
		idx := p.free.Get(i).(int)
		if listed[idx] {
			return fmt.Errorf("buffer: slot %d twice in free list", idx)
		}
		listed[idx] = true
	}

	for i, s := range p.slots {
		if (s.owner == Free) != listed[i] {
			return fmt.Errorf("buffer: slot %d owner %s, in free list %t", i, s.owner, listed[i])
		}
	}

	return nil
}

func (p *Pool) check(s *Slot) error {
	if s == nil || s.pool != p {
		return fmt.Errorf("buffer: foreign slot: %w", ErrOwnership)
	}
	if p.closed {
		return fmt.Errorf("buffer: pool: %w", core.ErrClosed)
	}
	return nil
}

func (p *Pool) notify() {
	close(p.changed)
	p.changed = make(chan struct{})
}
