// Package doublebuffer provides exchange of fixed-size blocks between a
// real-time producer and non real-time consumers.
//
// Producer never blocks: if the guard is taken by a reader, the write is
// dropped and counted. Consumers receive the most recent complete block,
// never partial data.
package doublebuffer

import (
	"sync"
	"sync/atomic"
)

// Buffer is a two-slot exchange cell. Writes alternate between two slots,
// the slot written last is pending until a reader consumes it.
type Buffer[T any] struct {
	mu      sync.Mutex
	slots   [2][]T
	next    int
	pending []T
	last    []T
	dropped atomic.Uint64
	written atomic.Uint64
}

// New returns buffer of provided size.
func New[T any](size int) *Buffer[T] {
	b := &Buffer[T]{}
	b.SetSize(size)
	return b
}

// SetSize allocates slots of provided size. Previously published data is
// discarded. It must not be called while buffer is in use.
func (b *Buffer[T]) SetSize(size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[0] = make([]T, size)
	b.slots[1] = make([]T, size)
	b.last = make([]T, size)
	b.next = 0
	b.pending = nil
}

// Size returns number of values in a single slot.
func (b *Buffer[T]) Size() int {
	return len(b.slots[0])
}

// Write copies src into the next slot and marks it pending. It returns
// false without blocking if the buffer is being read at this moment. src
// longer than the buffer is truncated.
func (b *Buffer[T]) Write(src []T) bool {
	if !b.mu.TryLock() {
		b.dropped.Add(1)
		return false
	}
	slot := b.slots[b.next]
	copy(slot, src)
	b.pending = slot
	b.next = (b.next + 1) % 2
	b.mu.Unlock()
	b.written.Add(1)
	return true
}

// Read copies the most recent block into dst. It returns true if the block
// was written after the previous read. Without new writes, Read keeps
// returning the last published block. Before first write dst is filled
// with zero values.
func (b *Buffer[T]) Read(dst []T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	fresh := b.pending != nil
	if fresh {
		copy(b.last, b.pending)
		b.pending = nil
	}
	copy(dst, b.last)
	return fresh
}

// Pending returns true if there is a block that wasn't read yet.
func (b *Buffer[T]) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// Dropped returns number of writes dropped because of contention.
func (b *Buffer[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Written returns number of successful writes.
func (b *Buffer[T]) Written() uint64 {
	return b.written.Load()
}
