package doublebuffer

// Lock holds the guard to emulate a slow reader.
func (b *Buffer[T]) Lock() { b.mu.Lock() }

// Unlock releases the guard.
func (b *Buffer[T]) Unlock() { b.mu.Unlock() }
