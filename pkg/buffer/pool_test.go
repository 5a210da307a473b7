package buffer

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/stretchr/testify/require"
)

type countMapper struct {
	size    int
	failAt  int // -1 never
	mapped  map[int]int
	unmaped map[int]int
}

func newCountMapper(size, failAt int) *countMapper {
	return &countMapper{size: size, failAt: failAt, mapped: map[int]int{}, unmaped: map[int]int{}}
}

func (m *countMapper) Map(i int) ([]byte, error) {
	if i == m.failAt {
		return nil, errors.New("mmap failed")
	}
	m.mapped[i]++
	return make([]byte, m.size), nil
}

func (m *countMapper) Unmap(i int, b []byte) error {
	if b == nil {
		return errors.New("unmap of nil region")
	}
	m.unmaped[i]++
	return nil
}

func TestPoolFIFO(t *testing.T) {
	p, err := New(3, Heap(16))
	require.Nil(t, err)
	require.Equal(t, 3, p.Len())
	require.Equal(t, 16, p.Size())

	s0 := p.Acquire(Application)
	s1 := p.Acquire(Application)
	require.Equal(t, 0, s0.Index)
	require.Equal(t, 1, s1.Index)

	require.Nil(t, p.Release(s1))
	require.Nil(t, p.Release(s0))

	// free list order: 2, 1, 0
	require.Equal(t, 2, p.Acquire(Kernel).Index)
	require.Equal(t, 1, p.Acquire(Kernel).Index)
	require.Equal(t, 0, p.Acquire(Kernel).Index)
	require.Nil(t, p.Acquire(Kernel))
	require.Nil(t, p.Check())
}

func TestPoolBackpressure(t *testing.T) {
	p, err := New(2, Heap(8))
	require.Nil(t, err)

	require.NotNil(t, p.Acquire(Hardware))
	require.NotNil(t, p.Acquire(Hardware))
	require.Nil(t, p.Acquire(Hardware))
	require.Zero(t, p.Available())
	require.Equal(t, []Owner{Hardware, Hardware}, p.Owners())
}

func TestPoolContract(t *testing.T) {
	p, _ := New(2, Heap(8))
	other, _ := New(1, Heap(8))

	s := p.Acquire(Hardware)
	s.Length = 5
	s.Flags = FlagEvent

	require.ErrorIs(t, p.Transfer(s, Kernel, Application), ErrOwnership)
	require.ErrorIs(t, p.Transfer(s, Hardware, Free), ErrOwnership)
	require.Nil(t, p.Transfer(s, Hardware, Application))
	require.Equal(t, Application, s.Owner())

	require.ErrorIs(t, other.Release(s), ErrOwnership)

	require.Nil(t, p.Release(s))
	require.Zero(t, s.Length)
	require.False(t, s.IsEvent())
	require.ErrorIs(t, p.Release(s), ErrOwnership)

	require.Nil(t, p.Check())
}

func TestPoolMapFailure(t *testing.T) {
	for failAt := 0; failAt < 5; failAt++ {
		m := newCountMapper(32, failAt)
		p, err := New(5, m)
		require.Nil(t, p)
		require.ErrorIs(t, err, core.ErrResource)

		// every mapped slot unmapped exactly once
		require.Len(t, m.mapped, failAt)
		for i := 0; i < failAt; i++ {
			require.Equal(t, 1, m.unmaped[i])
		}
	}

	_, err := New(0, Heap(1))
	require.ErrorIs(t, err, core.ErrConfig)
}

func TestPoolClose(t *testing.T) {
	for n := 1; n <= 8; n++ {
		m := newCountMapper(64, -1)
		p, err := New(n, m)
		require.Nil(t, err)

		s := p.Acquire(Kernel)
		err = p.Close()
		require.ErrorIs(t, err, ErrLeak)
		require.ErrorIs(t, err, core.ErrConfig)
		require.False(t, p.Closed())

		require.Equal(t, 1, p.Reclaim())
		require.Equal(t, Free, s.Owner())
		require.Nil(t, p.Close())
		require.ErrorIs(t, p.Close(), core.ErrClosed)

		require.Len(t, m.unmaped, n)
		for i := 0; i < n; i++ {
			require.Equal(t, 1, m.unmaped[i])
		}

		require.Nil(t, p.Acquire(Kernel))
		require.ErrorIs(t, p.Release(s), core.ErrClosed)
	}
}

// random interleaving of acquire / transfer / release keeps free list and owners in sync
func TestPoolOwnership(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	owners := []Owner{Kernel, Hardware, Application}

	p, err := New(4, Heap(4))
	require.Nil(t, err)

	model := make([]Owner, 4) // expected owner per slot

	for step := 0; step < 10000; step++ {
		switch rnd.Intn(3) {
		case 0:
			owner := owners[rnd.Intn(3)]
			if s := p.Acquire(owner); s != nil {
				require.Equal(t, Free, model[s.Index])
				model[s.Index] = owner
			} else {
				for _, o := range model {
					require.NotEqual(t, Free, o)
				}
			}
		case 1:
			s := p.Slot(rnd.Intn(4))
			to := owners[rnd.Intn(3)]
			from := model[s.Index]
			err = p.Transfer(s, from, to)
			if from == Free {
				require.ErrorIs(t, err, ErrOwnership)
			} else {
				require.Nil(t, err)
				model[s.Index] = to
			}
		case 2:
			s := p.Slot(rnd.Intn(4))
			err = p.Release(s)
			if model[s.Index] == Free {
				require.ErrorIs(t, err, ErrOwnership)
			} else {
				require.Nil(t, err)
				model[s.Index] = Free
			}
		}

		require.Nil(t, p.Check())
		require.Equal(t, model, p.Owners())
	}
}

func TestPoolConcurrent(t *testing.T) {
	p, err := New(3, Heap(4))
	require.Nil(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s := p.AcquireWait(Hardware, stop)
				if s == nil {
					return
				}
				if err := p.Transfer(s, Hardware, Application); err != nil {
					t.Error(err)
					return
				}
				if err := p.Release(s); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	wg.Wait()
	require.Nil(t, p.Check())
	require.Equal(t, 3, p.Available())
}

func TestPoolAcquireWait(t *testing.T) {
	p, _ := New(1, Heap(4))
	s := p.Acquire(Application)

	got := make(chan *Slot)
	go func() {
		got <- p.AcquireWait(Hardware, nil)
	}()

	select {
	case <-got:
		t.Fatal("acquired from empty pool")
	case <-time.After(20 * time.Millisecond):
	}

	require.Nil(t, p.Release(s))
	require.Equal(t, s, <-got)
	require.Equal(t, Hardware, s.Owner())

	// stop unblocks the waiter
	stop := make(chan struct{})
	go func() {
		got <- p.AcquireWait(Hardware, stop)
	}()
	close(stop)
	require.Nil(t, <-got)

	// reclaim wakes the waiter
	go func() {
		got <- p.AcquireWait(Hardware, nil)
	}()
	p.Reclaim()
	<-got // reclaim frees the slot, waiter takes it
	p.Reclaim()
	require.Nil(t, p.Close())
	require.Nil(t, p.AcquireWait(Hardware, nil))
}
