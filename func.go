package domain

import "context"

// Func is a synchronous domain built from functions. Any of functions can
// be nil, then the corresponding step does nothing besides the lifecycle
// bookkeeping of the node.
type Func struct {
	Node
	OnInitialize func(context.Context) error
	OnTick       func(dt float64) error
	OnCleanup    func(context.Context) error
}

// NewFunc returns synchronous domain that calls fn every tick.
func NewFunc(fn func(dt float64) error) *Func {
	f := &Func{OnTick: fn}
	f.Bind(f)
	return f
}

// Initialize implements Domain.
func (f *Func) Initialize(ctx context.Context) error {
	f.bind()
	return f.InitializeWith(ctx, f.OnInitialize)
}

// Tick implements Synchronous.
func (f *Func) Tick(dt float64) error {
	return f.TickWith(dt, f.OnTick)
}

// Cleanup implements Domain.
func (f *Func) Cleanup(ctx context.Context) error {
	f.bind()
	return f.CleanupWith(ctx, f.OnCleanup)
}

// bind makes zero value usable.
func (f *Func) bind() {
	if f.self == nil {
		f.Bind(f)
	}
}
