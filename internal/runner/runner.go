package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// pollSlice - how often blocked loops check the context
const pollSlice = 100 * time.Millisecond

var errLimit = errors.New("runner: frames limit")

type Source interface {
	NextFrameTimeout(timeout time.Duration) ([]byte, error)
}

type Pipeline interface {
	Submit(b []byte) error
	NextResultTimeout(timeout time.Duration) ([]byte, error)
	Stats() codec.Stats
}

// Runner pumps frames from the source through the pipeline to the sink.
// Capture and results run in separate goroutines, the first error stops both.
type Runner struct {
	Source   Source
	Pipeline Pipeline // nil writes captured frames to the sink as is
	Convert  func(frame []byte) ([]byte, error)
	Sink     io.Writer

	Frames  int           // stop after this many written frames, zero is endless
	Timeout time.Duration // no frame from the source for this long is an error, zero waits forever
	Stats   time.Duration // stats log period, zero disables

	log zerolog.Logger

	captured atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
}

func New(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Run returns nil when ctx is done or the frames limit is reached
func (r *Runner) Run(ctx context.Context) error {
	if r.Stats > 0 {
		w := core.NewWorker(r.Stats, func() time.Duration {
			r.logStats(zerolog.InfoLevel)
			return r.Stats
		})
		defer w.Stop()
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(r.capture)
	if r.Pipeline != nil {
		p.Go(r.results)
	}

	err := p.Wait()

	r.logStats(zerolog.DebugLevel)

	if errors.Is(err, errLimit) {
		return nil
	}
	return err
}

func (r *Runner) capture(ctx context.Context) error {
	last := time.Now()

	for ctx.Err() == nil {
		wait := pollSlice
		if r.Timeout > 0 {
			wait = min(wait, r.Timeout)
		}

		frame, err := r.Source.NextFrameTimeout(wait)
		if err != nil {
			if errors.Is(err, core.ErrTimeout) && (r.Timeout == 0 || time.Since(last) < r.Timeout) {
				continue
			}
			return err
		}

		last = time.Now()
		r.captured.Add(1)

		if r.Convert != nil {
			if frame, err = r.Convert(frame); err != nil {
				return fmt.Errorf("runner: convert: %w", err)
			}
		}

		if r.Pipeline == nil {
			if err = r.write(frame); err != nil {
				return err
			}
			continue
		}

		if err = r.Pipeline.Submit(frame); err != nil {
			// live source never waits for the codec
			if errors.Is(err, core.ErrBackpressure) {
				r.dropped.Add(1)
				r.log.Trace().Msg("[runner] frame dropped")
				continue
			}
			return err
		}
	}

	return nil
}

func (r *Runner) results(ctx context.Context) error {
	for ctx.Err() == nil {
		b, err := r.Pipeline.NextResultTimeout(pollSlice)
		if err != nil {
			if errors.Is(err, core.ErrTimeout) {
				continue
			}
			return err
		}

		if err = r.write(b); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) write(b []byte) error {
	if _, err := r.Sink.Write(b); err != nil {
		return fmt.Errorf("runner: write: %w", err)
	}
	if n := r.written.Add(1); r.Frames > 0 && n >= uint64(r.Frames) {
		return errLimit
	}
	return nil
}

func (r *Runner) logStats(level zerolog.Level) {
	e := r.log.WithLevel(level).
		Uint64("captured", r.captured.Load()).
		Uint64("dropped", r.dropped.Load()).
		Uint64("written", r.written.Load())
	if r.Pipeline != nil {
		e = e.Interface("codec", r.Pipeline.Stats())
	}
	e.Msg("[runner] stats")
}

// Counters - captured, dropped by backpressure and written frames
func (r *Runner) Counters() (captured, dropped, written uint64) {
	return r.captured.Load(), r.dropped.Load(), r.written.Load()
}
