package rgbd

import (
	"context"
	"sync"
)

type Sample interface {
	~uint8 | ~uint16
}

type Frame[T Sample] struct {
	Data      []T
	Timestamp Timestamp
}

type SlotStats struct {
	Published uint64    `json:"published"`
	Dropped   uint64    `json:"dropped"`
	Last      Timestamp `json:"last"`
}

// Slot holds the latest frame of one modality. Publishing swaps the frame under the
// write lock, readers copy under the read lock, so a reader never sees a half written frame.
type Slot[T Sample] struct {
	modality Modality
	samples  int

	locker sync.RWMutex
	frame  *Frame[T]
	closed bool
	stats  SlotStats

	readyOnce sync.Once
	ready     chan struct{}
	doneOnce  sync.Once
	done      chan struct{}

	pool sync.Pool
}

func NewSlot[T Sample](m Modality, samples int) *Slot[T] {
	s := &Slot[T]{
		modality: m,
		samples:  samples,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.pool.New = func() any {
		return &Frame[T]{Data: make([]T, samples)}
	}
	return s
}

func (s *Slot[T]) Modality() Modality {
	return s.modality
}

// Samples is the frame size in elements.
func (s *Slot[T]) Samples() int {
	return s.samples
}

// Acquire returns a frame buffer the caller owns until it is published or released.
func (s *Slot[T]) Acquire() *Frame[T] {
	f := s.pool.Get().(*Frame[T])
	f.Timestamp = NoData
	return f
}

// Release hands back a buffer that was acquired but not published.
func (s *Slot[T]) Release(f *Frame[T]) {
	if f == nil || len(f.Data) != s.samples {
		return
	}
	s.pool.Put(f)
}

// Publish replaces the held frame. It returns false if the frame was rejected
// because it is older than the held one or the slot is closed.
func (s *Slot[T]) Publish(f *Frame[T]) bool {
	s.locker.Lock()
	if s.closed {
		s.locker.Unlock()
		s.Release(f)
		return false
	}
	if s.frame != nil && f.Timestamp < s.frame.Timestamp {
		s.stats.Dropped++
		s.locker.Unlock()
		s.Release(f)
		return false
	}
	old := s.frame
	s.frame = f
	s.stats.Published++
	s.stats.Last = f.Timestamp
	s.locker.Unlock()

	// no reader can reach old once the write lock is released
	s.Release(old)
	s.readyOnce.Do(func() {
		close(s.ready)
	})
	return true
}

// CopyOut copies the held frame into dst and reports its timestamp.
// NoData with a nil error means nothing was published yet, dst is untouched.
func (s *Slot[T]) CopyOut(dst []T) (Timestamp, error) {
	s.locker.RLock()
	defer s.locker.RUnlock()
	return s.copyLocked(dst)
}

func (s *Slot[T]) copyLocked(dst []T) (Timestamp, error) {
	if s.closed {
		return NoData, ErrClosed
	}
	if s.frame == nil {
		return NoData, nil
	}
	if len(dst) < s.samples {
		return NoData, ErrShortBuffer
	}
	copy(dst, s.frame.Data)
	return s.frame.Timestamp, nil
}

// current must be called with the read lock held.
func (s *Slot[T]) current() (*Frame[T], error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.frame, nil
}

func (s *Slot[T]) Timestamp() Timestamp {
	s.locker.RLock()
	defer s.locker.RUnlock()
	if s.frame == nil {
		return NoData
	}
	return s.frame.Timestamp
}

func (s *Slot[T]) Stats() SlotStats {
	s.locker.RLock()
	defer s.locker.RUnlock()
	return s.stats
}

// WaitReady blocks until the first frame is published, the slot is closed or ctx ends.
func (s *Slot[T]) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops the held frame. Later reads report ErrClosed.
func (s *Slot[T]) Close() {
	s.locker.Lock()
	s.closed = true
	s.frame = nil
	s.locker.Unlock()
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
