package capture

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"
	"unsafe"

	"github.com/AlexxIT/framepump/pkg/buffer"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/v4l2/device"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeDevice simulates the driver side of the mmap ring
type fakeDevice struct {
	mu sync.Mutex

	adjust    bool // driver changes the requested width
	grant     uint32
	sizeImage uint32
	failMapAt int

	bufs     [][]byte
	regions  map[uintptr]int
	unmapped map[int]int
	reqbufs  []uint32

	queued    []uint32 // owned by the driver, waiting to be filled
	filled    []uint32
	streaming bool
	closed    bool

	seq        int
	frames     int // frames left to produce, -1 unlimited
	corruptSeq int
	dqErr      error
	dqErrAfter int
	streamErr  error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		failMapAt:  -1,
		frames:     -1,
		corruptSeq: -1,
		regions:    map[uintptr]int{},
		unmapped:   map[int]int{},
	}
}

func (d *fakeDevice) SetFormat(width, height, pixFmt uint32) (*device.PixFormat, error) {
	if d.adjust {
		width = width / 32 * 32
	}
	d.sizeImage = width * height
	return &device.PixFormat{Width: width, Height: height, PixelFormat: pixFmt, SizeImage: d.sizeImage}, nil
}

func (d *fakeDevice) SetParam(fps uint32) (uint32, error) {
	return fps, nil
}

func (d *fakeDevice) RequestBuffers(count uint32) (uint32, error) {
	d.reqbufs = append(d.reqbufs, count)
	if count == 0 {
		if len(d.regions) > 0 {
			return 0, syscall.EBUSY
		}
		d.bufs = nil
		return 0, nil
	}
	if d.grant != 0 {
		count = d.grant
	}
	d.bufs = make([][]byte, count)
	return count, nil
}

func (d *fakeDevice) QueryBuffer(index uint32) (offset, length uint32, err error) {
	if int(index) >= len(d.bufs) {
		return 0, 0, syscall.EINVAL
	}
	return index * 4096, d.sizeImage, nil
}

func (d *fakeDevice) Mmap(offset, length uint32) ([]byte, error) {
	index := int(offset / 4096)
	if index == d.failMapAt {
		return nil, syscall.ENOMEM
	}
	b := make([]byte, length)
	d.bufs[index] = b
	d.regions[uintptr(unsafe.Pointer(&b[0]))] = index
	return b, nil
}

func (d *fakeDevice) Munmap(b []byte) error {
	key := uintptr(unsafe.Pointer(&b[0]))
	index, ok := d.regions[key]
	if !ok {
		return syscall.EINVAL
	}
	delete(d.regions, key)
	d.unmapped[index]++
	return nil
}

func (d *fakeDevice) Queue(index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, list := range [][]uint32{d.queued, d.filled} {
		for _, i := range list {
			if i == index {
				return syscall.EINVAL
			}
		}
	}
	d.queued = append(d.queued, index)
	return nil
}

func (d *fakeDevice) Dequeue() (index, bytesused uint32, corrupted bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dqErr != nil && d.seq > d.dqErrAfter {
		return 0, 0, false, d.dqErr
	}
	if len(d.filled) == 0 {
		return 0, 0, false, device.ErrNotReady
	}

	index = d.filled[0]
	d.filled = d.filled[1:]

	b := d.bufs[index]
	return index, uint32(b[0]) + 1, int(b[1]) == 1, nil
}

// Wait fills the oldest queued buffer when a frame is due
func (d *fakeDevice) Wait(timeout time.Duration) (bool, error) {
	d.mu.Lock()
	if !d.streaming || d.frames == 0 || len(d.queued) == 0 {
		d.mu.Unlock()
		time.Sleep(timeout)
		return false, nil
	}
	defer d.mu.Unlock()

	index := d.queued[0]
	d.queued = d.queued[1:]

	d.seq++
	if d.frames > 0 {
		d.frames--
	}

	b := d.bufs[index]
	b[0] = byte(d.seq) // payload length - 1
	if d.seq == d.corruptSeq {
		b[1] = 1
	} else {
		b[1] = 0
	}
	d.filled = append(d.filled, index)
	return true, nil
}

func (d *fakeDevice) StreamOn() error {
	if d.streamErr != nil {
		return d.streamErr
	}
	d.mu.Lock()
	d.streaming = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.mu.Lock()
	d.streaming = false
	d.queued = nil
	d.filled = nil
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Close() error {
	if d.closed {
		return syscall.EBADF
	}
	d.closed = true
	return nil
}

func (d *fakeDevice) inKernel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queued) + len(d.filled)
}

func newRing(t *testing.T, dev *fakeDevice, count int) *Ring {
	r := New(dev, zerolog.Nop())
	r.WaitSlice = 5 * time.Millisecond
	require.Nil(t, r.Configure(1280, 960, device.V4L2_PIX_FMT_MJPEG))
	require.Nil(t, r.Allocate(count))
	return r
}

func requireUnmapped(t *testing.T, dev *fakeDevice, n int) {
	require.Len(t, dev.unmapped, n)
	for i := 0; i < n; i++ {
		require.Equal(t, 1, dev.unmapped[i], "slot %d", i)
	}
	require.Empty(t, dev.regions)
}

func TestRingFrames(t *testing.T) {
	dev := newFakeDevice()
	r := newRing(t, dev, DefaultBuffers)
	require.Equal(t, 4, r.Pool().Len())
	require.Equal(t, 1280*960, r.Pool().Size())

	require.Nil(t, r.Start())
	require.True(t, r.Streaming())

	kernel := []buffer.Owner{buffer.Kernel, buffer.Kernel, buffer.Kernel, buffer.Kernel}

	for i := 1; i <= 10; i++ {
		b, err := r.NextFrame()
		require.Nil(t, err)
		require.Len(t, b, i+1)
		require.LessOrEqual(t, len(b), r.Pool().Size())
		require.Equal(t, byte(i), b[0])

		// slot is back in the kernel before the next call
		require.Equal(t, kernel, r.Pool().Owners())
		require.Equal(t, 4, dev.inKernel())
		require.Nil(t, r.Pool().Check())
	}

	frames, corrupted := r.Frames()
	require.Equal(t, uint64(10), frames)
	require.Zero(t, corrupted)

	require.Nil(t, r.Close())
	requireUnmapped(t, dev, 4)
	require.Equal(t, []uint32{4, 0}, dev.reqbufs)
	require.True(t, dev.closed)

	_, err := r.NextFrame()
	require.ErrorIs(t, err, core.ErrClosed)
	require.ErrorIs(t, r.Close(), core.ErrClosed)
}

func TestRingFormatRejected(t *testing.T) {
	dev := newFakeDevice()
	dev.adjust = true

	r := New(dev, zerolog.Nop())
	err := r.Configure(1290, 960, device.V4L2_PIX_FMT_MJPEG)
	require.ErrorIs(t, err, core.ErrFormat)
	require.ErrorIs(t, err, core.ErrConfig)

	require.ErrorIs(t, r.Allocate(4), core.ErrConfig)
	require.ErrorIs(t, r.Start(), core.ErrConfig)
	require.Nil(t, r.Close())
}

func TestRingMapFailure(t *testing.T) {
	for failAt := 0; failAt < 4; failAt++ {
		dev := newFakeDevice()
		dev.failMapAt = failAt

		r := New(dev, zerolog.Nop())
		require.Nil(t, r.Configure(1280, 960, device.V4L2_PIX_FMT_MJPEG))

		err := r.Allocate(4)
		require.ErrorIs(t, err, core.ErrResource)
		require.Nil(t, r.Pool())

		// every slot mapped in this call is unmapped, kernel buffers freed
		requireUnmapped(t, dev, failAt)
		require.Equal(t, []uint32{4, 0}, dev.reqbufs)

		require.Nil(t, r.Close())
	}
}

func TestRingNoLeak(t *testing.T) {
	for n := 1; n <= 8; n++ {
		dev := newFakeDevice()
		r := newRing(t, dev, n)

		if n%2 == 0 {
			require.Nil(t, r.Start())
			_, err := r.NextFrame()
			require.Nil(t, err)
		}

		require.Nil(t, r.Close())
		requireUnmapped(t, dev, n)
		require.True(t, dev.closed)
	}
}

func TestRingGrant(t *testing.T) {
	dev := newFakeDevice()
	dev.grant = 2

	r := newRing(t, dev, 4)
	require.Equal(t, 2, r.Pool().Len())
	require.Nil(t, r.Close())
	requireUnmapped(t, dev, 2)
}

func TestRingStartRejected(t *testing.T) {
	dev := newFakeDevice()
	dev.streamErr = syscall.EIO

	r := newRing(t, dev, 4)
	require.ErrorIs(t, r.Start(), core.ErrDevice)
	require.False(t, r.Streaming())

	require.Nil(t, r.Close())
	requireUnmapped(t, dev, 4)
}

func TestRingDequeueError(t *testing.T) {
	dev := newFakeDevice()
	dev.dqErr = syscall.ENODEV
	dev.dqErrAfter = 2

	r := newRing(t, dev, 4)
	require.Nil(t, r.Start())

	for i := 0; i < 2; i++ {
		_, err := r.NextFrame()
		require.Nil(t, err)
	}

	_, err := r.NextFrame()
	require.ErrorIs(t, err, core.ErrDevice)
	require.True(t, errors.Is(err, syscall.ENODEV))

	// fatal for the ring
	_, err2 := r.NextFrame()
	require.Equal(t, err, err2)

	require.Nil(t, r.Close())
	requireUnmapped(t, dev, 4)
}

func TestRingCorrupted(t *testing.T) {
	dev := newFakeDevice()
	dev.corruptSeq = 2

	r := newRing(t, dev, 4)
	require.Nil(t, r.Start())

	var got []byte
	for i := 0; i < 3; i++ {
		b, err := r.NextFrame()
		require.Nil(t, err)
		got = append(got, b[0])
	}
	require.Equal(t, []byte{1, 3, 4}, got)

	_, corrupted := r.Frames()
	require.Equal(t, uint64(1), corrupted)
	require.Equal(t, 4, dev.inKernel())

	require.Nil(t, r.Close())
}

func TestRingTimeout(t *testing.T) {
	dev := newFakeDevice()
	dev.frames = 0

	r := newRing(t, dev, 4)
	require.Nil(t, r.Start())

	_, err := r.NextFrameTimeout(20 * time.Millisecond)
	require.ErrorIs(t, err, core.ErrTimeout)

	require.Nil(t, r.Close())
}

func TestRingCloseUnblocks(t *testing.T) {
	dev := newFakeDevice()
	dev.frames = 0

	r := newRing(t, dev, 4)
	require.Nil(t, r.Start())

	done := make(chan error)
	go func() {
		_, err := r.NextFrame()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.Nil(t, r.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, core.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("NextFrame not interrupted by Close")
	}

	requireUnmapped(t, dev, 4)
}

func TestRingOrder(t *testing.T) {
	dev := newFakeDevice()
	r := newRing(t, dev, 3)
	require.Nil(t, r.Start())

	// kernel fills slots in queue order and the ring keeps cycling them
	var order []string
	for i := 0; i < 6; i++ {
		_, err := r.NextFrame()
		require.Nil(t, err)
		order = append(order, fmt.Sprint(dev.queued[len(dev.queued)-1]))
	}
	require.Equal(t, []string{"0", "1", "2", "0", "1", "2"}, order)

	require.Nil(t, r.Close())
}
