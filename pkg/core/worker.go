package core

import (
	"sync"
	"time"
)

type Worker struct {
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
}

// NewWorker run f after d, and again after every returned duration.
// Zero duration from f stops the worker.
func NewWorker(d time.Duration, f func() time.Duration) *Worker {
	timer := time.NewTimer(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-timer.C:
				if d = f(); d > 0 {
					timer.Reset(d)
					continue
				}
			case <-done:
				timer.Stop()
			}
			break
		}
	}()

	return &Worker{timer: timer, done: done}
}

// Do - instant timer run
func (w *Worker) Do() {
	if w == nil {
		return
	}
	w.timer.Reset(0)
}

func (w *Worker) Stop() {
	if w == nil {
		return
	}

	w.once.Do(func() {
		close(w.done)
	})
}
