package codec

import (
	"sync"
)

// Runtime - process wide accelerator init shared by every component.
// First Acquire runs init, last Release runs deinit.
type Runtime struct {
	mu     sync.Mutex
	refs   int
	init   func() error
	deinit func() error
}

func NewRuntime(init, deinit func() error) *Runtime {
	return &Runtime{init: init, deinit: deinit}
}

func (r *Runtime) Acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs == 0 && r.init != nil {
		if err := r.init(); err != nil {
			return err
		}
	}
	r.refs++
	return nil
}

func (r *Runtime) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs == 0 {
		return nil
	}
	if r.refs--; r.refs == 0 && r.deinit != nil {
		return r.deinit()
	}
	return nil
}

func (r *Runtime) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}
