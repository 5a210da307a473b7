package codec

import (
	"fmt"
	"sync"

	"github.com/AlexxIT/framepump/pkg/buffer"
	"github.com/AlexxIT/framepump/pkg/core"
)

// Port - one direction of a component with its own pool.
// Format must be committed before the port is enabled.
type Port struct {
	Dir Direction

	// Mapper gives slot memory, anonymous page-aligned mmap by default
	Mapper func(size int) buffer.Mapper

	comp Component

	mu        sync.Mutex
	format    Format
	committed bool
	pool      *buffer.Pool
	enabled   bool
}

func NewPort(comp Component, dir Direction) *Port {
	return &Port{Dir: dir, Mapper: buffer.Anonymous, comp: comp}
}

// CommitFormat returns the format accepted by the component, it is authoritative
func (p *Port) CommitFormat(f Format) (Format, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled {
		return Format{}, fmt.Errorf("codec: %s: commit on enabled port: %w", p.Dir, core.ErrConfig)
	}

	got, err := p.comp.Commit(p.Dir, f)
	if err != nil {
		return Format{}, fmt.Errorf("codec: %s: commit %s: %w: %w", p.Dir, f, core.ErrFormat, err)
	}
	if got.BufferSize <= 0 {
		return Format{}, fmt.Errorf("codec: %s: commit %s: zero buffer size: %w", p.Dir, f, core.ErrFormat)
	}

	p.format = got
	p.committed = true
	return got, nil
}

// Allocate creates the port pool. Size below the committed minimum is a config error.
func (p *Port) Allocate(count, size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.canAllocate(count, size); err != nil {
		return err
	}
	if p.pool != nil {
		return fmt.Errorf("codec: %s: pool already allocated: %w", p.Dir, core.ErrConfig)
	}

	pool, err := buffer.New(count, p.Mapper(size))
	if err != nil {
		return fmt.Errorf("codec: %s: %w", p.Dir, err)
	}

	p.pool = pool
	return nil
}

// Reallocate swaps the pool of a disabled port, old pool is returned to the caller
// because its slots may still be owned by the application
func (p *Port) Reallocate(count, size int) (*buffer.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled {
		return nil, fmt.Errorf("codec: %s: reallocate enabled port: %w", p.Dir, core.ErrConfig)
	}
	if err := p.canAllocate(count, size); err != nil {
		return nil, err
	}

	pool, err := buffer.New(count, p.Mapper(size))
	if err != nil {
		return nil, fmt.Errorf("codec: %s: %w", p.Dir, err)
	}

	old := p.pool
	p.pool = pool
	return old, nil
}

func (p *Port) canAllocate(count, size int) error {
	if !p.committed {
		return fmt.Errorf("codec: %s: allocate before commit: %w", p.Dir, core.ErrConfig)
	}
	if count <= 0 {
		return fmt.Errorf("codec: %s: wrong buffers count %d: %w", p.Dir, count, core.ErrConfig)
	}
	if size < p.format.BufferSize {
		return fmt.Errorf("codec: %s: buffer size %d < %d: %w", p.Dir, size, p.format.BufferSize, core.ErrConfig)
	}
	return nil
}

// Enable requires a committed format and a matching pool.
// Output port is pre-filled with every free slot, without them it never completes.
func (p *Port) Enable(cb Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled {
		return nil
	}
	if !p.committed || p.pool == nil {
		return fmt.Errorf("codec: %s: enable before commit and allocate: %w", p.Dir, core.ErrConfig)
	}
	if p.pool.Size() < p.format.BufferSize {
		return fmt.Errorf(
			"codec: %s: pool buffer %d does not match format %d: %w",
			p.Dir, p.pool.Size(), p.format.BufferSize, core.ErrConfig,
		)
	}

	if err := p.comp.Enable(p.Dir, cb); err != nil {
		return fmt.Errorf("codec: %s: enable: %w: %w", p.Dir, core.ErrDevice, err)
	}
	p.enabled = true

	if p.Dir == Output {
		for s := p.pool.Acquire(buffer.Hardware); s != nil; s = p.pool.Acquire(buffer.Hardware) {
			if err := p.comp.Send(p.Dir, s); err != nil {
				_ = p.pool.Release(s)
				return fmt.Errorf("codec: %s: prefill slot %d: %w: %w", p.Dir, s.Index, core.ErrDevice, err)
			}
		}
	}

	return nil
}

// Send gives a Hardware owned slot to the component
func (p *Port) Send(s *buffer.Slot) error {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()

	if !enabled {
		return fmt.Errorf("codec: %s: send to disabled port: %w", p.Dir, core.ErrClosed)
	}
	if err := p.comp.Send(p.Dir, s); err != nil {
		return fmt.Errorf("codec: %s: send slot %d: %w: %w", p.Dir, s.Index, core.ErrDevice, err)
	}
	return nil
}

// Disable returns after the component gave back every in-flight slot
func (p *Port) Disable() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		return nil
	}
	p.enabled = false

	if err := p.comp.Disable(p.Dir); err != nil {
		return fmt.Errorf("codec: %s: disable: %w: %w", p.Dir, core.ErrDevice, err)
	}
	return nil
}

// Close reclaims and unmaps the pool, port must be disabled
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled {
		return fmt.Errorf("codec: %s: close enabled port: %w", p.Dir, core.ErrConfig)
	}
	if p.pool == nil {
		return nil
	}

	p.pool.Reclaim()
	err := p.pool.Close()
	p.pool = nil
	return err
}

func (p *Port) Format() Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

func (p *Port) Pool() *buffer.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool
}

func (p *Port) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}
