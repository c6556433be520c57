// Package mock provides mocks for domains and devices and allows to execute integration tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"pipelined.dev/domain"
)

// Log records calls of mocked domains in the order they happened. It's
// shared between mocks to verify ordering across the tree.
type Log struct {
	mu      sync.Mutex
	entries []string
}

// Add appends entry to the log.
func (l *Log) Add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of recorded entries.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Reset clears the log.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Hooks allows to mock lifecycle errors.
type Hooks struct {
	ErrorOnInitialize error
	ErrorOnCleanup    error
	ErrorOnTick       error
	ErrorOnStart      error
	ErrorOnStop       error
}

// Synchronous mocks domain.Synchronous. It records "<name>.initialize",
// "<name>.tick" and "<name>.cleanup" into the log.
type Synchronous struct {
	domain.Node
	Name string
	Log  *Log
	Hooks
	counter
}

// NewSynchronous returns bound synchronous mock.
func NewSynchronous(name string, log *Log) *Synchronous {
	s := &Synchronous{Name: name, Log: log}
	s.Bind(s)
	return s
}

// Initialize implements domain.Domain.
func (s *Synchronous) Initialize(ctx context.Context) error {
	return s.InitializeWith(ctx, func(context.Context) error {
		s.Log.Add(s.Name + ".initialize")
		return s.ErrorOnInitialize
	})
}

// Tick implements domain.Synchronous.
func (s *Synchronous) Tick(dt float64) error {
	return s.TickWith(dt, func(dt float64) error {
		s.Log.Add(s.Name + ".tick")
		s.advance(dt)
		return s.ErrorOnTick
	})
}

// Cleanup implements domain.Domain.
func (s *Synchronous) Cleanup(ctx context.Context) error {
	return s.CleanupWith(ctx, func(context.Context) error {
		s.Log.Add(s.Name + ".cleanup")
		return s.ErrorOnCleanup
	})
}

// Asynchronous mocks domain.Asynchronous. Start returns immediately after
// it's recorded, Stop waits until Release is called if Block is set.
type Asynchronous struct {
	domain.Node
	Name string
	Log  *Log
	Hooks
}

// NewAsynchronous returns bound asynchronous mock.
func NewAsynchronous(name string, log *Log) *Asynchronous {
	a := &Asynchronous{Name: name, Log: log}
	a.Bind(a)
	return a
}

// Initialize implements domain.Domain.
func (a *Asynchronous) Initialize(ctx context.Context) error {
	return a.InitializeWith(ctx, func(context.Context) error {
		a.Log.Add(a.Name + ".initialize")
		return a.ErrorOnInitialize
	})
}

// Start implements domain.Asynchronous.
func (a *Asynchronous) Start(ctx context.Context) error {
	return a.StartWith(ctx, func(context.Context) error {
		a.Log.Add(a.Name + ".start")
		return a.ErrorOnStart
	})
}

// Stop implements domain.Asynchronous.
func (a *Asynchronous) Stop(ctx context.Context) error {
	return a.StopWith(ctx, func(context.Context) error {
		a.Log.Add(a.Name + ".stop")
		return a.ErrorOnStop
	})
}

// Cleanup implements domain.Domain.
func (a *Asynchronous) Cleanup(ctx context.Context) error {
	return a.CleanupWith(ctx, func(context.Context) error {
		a.Log.Add(a.Name + ".cleanup")
		return a.ErrorOnCleanup
	})
}

// counter counts ticks and accumulates elapsed time.
type counter struct {
	ticks atomic.Int64
	mu    sync.Mutex
	dt    []float64
}

func (c *counter) advance(dt float64) {
	c.ticks.Add(1)
	c.mu.Lock()
	c.dt = append(c.dt, dt)
	c.mu.Unlock()
}

// Ticks returns number of ticks.
func (c *counter) Ticks() int {
	return int(c.ticks.Load())
}

// Elapsed returns dt values received by ticks.
func (c *counter) Elapsed() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.dt...)
}
