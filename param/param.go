// Package param schedules changes of real-time state at sample times.
//
// Control goroutines schedule mutations with a sample time. The real-time
// goroutine applies them at block boundaries: a mutation scheduled at time
// T is applied right before the block that contains T is processed, or
// before the next block if T is already in the past. Mutations are never
// applied in the middle of a block.
package param

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned when mutation cannot be scheduled because the
// queue holds as many mutations that are not applied yet as its capacity.
var ErrQueueFull = errors.New("param queue is full")

// Time is an absolute position in samples since the audio clock start.
type Time uint64

// At converts duration since clock start to sample time.
func At(d time.Duration, sampleRate float64) Time {
	if d <= 0 {
		return 0
	}
	return Time(d.Seconds() * sampleRate)
}

// Add returns time shifted by n samples.
func (t Time) Add(n int) Time {
	return t + Time(n)
}

// Duration converts sample time to duration.
func (t Time) Duration(sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(t) / sampleRate * float64(time.Second))
}

// Mutation is a change of real-time state.
type Mutation func()

type scheduled struct {
	at Time
	fn Mutation
}

// Queue holds scheduled mutations. Schedule is safe for concurrent use.
// Apply must be called from a single goroutine, it neither locks nor
// allocates.
type Queue struct {
	producer sync.Mutex

	ring  []scheduled
	mask  uint64
	write atomic.Uint64 // free-running, masked only for indexing.
	read  atomic.Uint64

	// pending is owned by the consumer and sorted by time. Its length is
	// published for the producer, it's stored before read advances.
	pending []scheduled
	held    atomic.Int64
}

// DefaultCapacity is used when queue is created with non-positive capacity.
const DefaultCapacity = 256

// NewQueue returns queue that holds up to capacity mutations that are not
// applied yet. Capacity is rounded up to a power of 2.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Queue{
		ring:    make([]scheduled, size),
		mask:    uint64(size - 1),
		pending: make([]scheduled, 0, size),
	}
}

// Schedule adds mutation that should be applied at provided sample time.
// Mutations scheduled for the same time are applied in the order they
// were scheduled.
func (q *Queue) Schedule(at Time, fn Mutation) error {
	if fn == nil {
		return nil
	}
	q.producer.Lock()
	defer q.producer.Unlock()
	r := q.read.Load()
	held := uint64(q.held.Load())
	w := q.write.Load()
	if w-r+held >= uint64(len(q.ring)) {
		return ErrQueueFull
	}
	q.ring[w&q.mask] = scheduled{at: at, fn: fn}
	q.write.Store(w + 1)
	return nil
}

// Apply executes every mutation due before the end of the block that
// starts at provided time and has provided number of frames. It returns
// number of applied mutations.
func (q *Queue) Apply(start Time, frames int) int {
	end := start.Add(frames)
	total := 0
	for {
		q.drain()
		n := 0
		for n < len(q.pending) && q.pending[n].at < end {
			q.pending[n].fn()
			q.pending[n].fn = nil
			n++
		}
		if n == 0 {
			return total
		}
		copy(q.pending, q.pending[n:])
		q.pending = q.pending[:len(q.pending)-n]
		q.held.Store(int64(len(q.pending)))
		total += n
		// applied mutations made room for the ones left in the ring.
		if q.read.Load() == q.write.Load() {
			return total
		}
	}
}

// Len returns number of mutations that are not applied yet. It must be
// called from the goroutine that calls Apply.
func (q *Queue) Len() int {
	return int(q.write.Load()-q.read.Load()) + len(q.pending)
}

// drain moves scheduled mutations from the ring into the sorted pending
// list. Schedule counts pending mutations against the capacity, so all
// of them fit.
func (q *Queue) drain() {
	r, w := q.read.Load(), q.write.Load()
	if r == w {
		return
	}
	for ; r < w && len(q.pending) < cap(q.pending); r++ {
		slot := &q.ring[r&q.mask]
		q.insert(*slot)
		slot.fn = nil
	}
	q.held.Store(int64(len(q.pending)))
	q.read.Store(r)
}

// insert keeps pending sorted by time, then by schedule order.
func (q *Queue) insert(s scheduled) {
	i := len(q.pending)
	q.pending = q.pending[:i+1]
	for i > 0 && q.pending[i-1].at > s.at {
		q.pending[i] = q.pending[i-1]
		i--
	}
	q.pending[i] = s
}
