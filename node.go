package domain

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// Node is the lifecycle core of a domain. Concrete domains embed it, bind
// it to themselves and call the *With methods with their own work. Node
// keeps the ordered list of synchronous sub-domains, guards lifecycle
// transitions and notifies registered listeners.
//
// Tick is safe to call from a real-time goroutine: it doesn't lock and
// doesn't allocate unless a sub-domain fails. Sub-domains can be added
// and removed concurrently with ticks.
type Node struct {
	id        string
	self      Domain
	state     atomic.Int32
	lifecycle sync.Mutex // serializes lifecycle transitions and tree edits.
	tree      atomic.Pointer[[]*subdomain]
	armed     atomic.Bool
	listeners listeners
}

// subdomain is an entry of the tree. Entries are shared between tree
// snapshots, so removal flag and in-flight counter are visible to ticks
// that still use an old snapshot.
type subdomain struct {
	Synchronous
	phase    Phase
	removed  atomic.Bool
	inflight atomic.Int32
}

// Bind sets the domain that owns the node. Listeners receive this domain.
func (n *Node) Bind(self Domain) {
	n.self = self
	if n.id == "" {
		n.id = xid.New().String()
	}
}

// ID returns unique identity of the node.
func (n *Node) ID() string {
	if n.id == "" {
		n.lifecycle.Lock()
		if n.id == "" {
			n.id = xid.New().String()
		}
		n.lifecycle.Unlock()
	}
	return n.id
}

// State returns current lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Listen registers listener for lifecycle event. Listeners are called in
// registration order exactly once per transition.
func (n *Node) Listen(e Event, l Listener) {
	n.listeners.add(e, l)
}

// AddSubdomain appends synchronous sub-domain to the pre or post list. If
// the node is already initialized, the sub-domain is initialized before
// it's attached and the error of that initialization is returned.
func (n *Node) AddSubdomain(ctx context.Context, s Synchronous, p Phase) error {
	if s == nil {
		return ErrNilDomain
	}
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()
	switch n.State() {
	case CleanedUp:
		return ErrInvalidState
	case Initialized, Running, Stopped:
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("error initializing sub-domain: %w", err)
		}
	}
	var tree []*subdomain
	if old := n.tree.Load(); old != nil {
		tree = make([]*subdomain, len(*old), len(*old)+1)
		copy(tree, *old)
	}
	tree = append(tree, &subdomain{Synchronous: s, phase: p})
	n.tree.Store(&tree)
	return nil
}

// AddDomain nests the domain if it has synchronous capability. Otherwise
// ErrNotSynchronous is returned.
func (n *Node) AddDomain(ctx context.Context, d Domain, p Phase) error {
	if d == nil {
		return ErrNilDomain
	}
	s, ok := d.(Synchronous)
	if !ok {
		return ErrNotSynchronous
	}
	return n.AddSubdomain(ctx, s, p)
}

// RemoveSubdomain detaches sub-domain from the tree and cleans it up. When
// it returns, the removed domain is not ticked anymore.
func (n *Node) RemoveSubdomain(ctx context.Context, s Synchronous) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()
	old := n.tree.Load()
	if old == nil {
		return ErrUnknownSubdomain
	}
	var (
		removed *subdomain
		tree    = make([]*subdomain, 0, len(*old))
	)
	for _, e := range *old {
		if removed == nil && e.Synchronous == s {
			removed = e
			continue
		}
		tree = append(tree, e)
	}
	if removed == nil {
		return ErrUnknownSubdomain
	}
	removed.removed.Store(true)
	n.tree.Store(&tree)
	// wait for ticks that started before the removal.
	for removed.inflight.Load() > 0 {
		runtime.Gosched()
	}
	return removed.Cleanup(ctx)
}

// Subdomains returns a snapshot of sub-domains of the provided phase.
func (n *Node) Subdomains(p Phase) []Synchronous {
	tree := n.tree.Load()
	if tree == nil {
		return nil
	}
	var result []Synchronous
	for _, e := range *tree {
		if e.phase == p {
			result = append(result, e.Synchronous)
		}
	}
	return result
}

// InitializeWith initializes pre sub-domains, calls fn and then
// initializes post sub-domains. Every step is executed even if previous
// one failed, all errors are returned together. Node becomes Initialized
// only if all steps succeeded. Initialize of initialized node is no-op.
func (n *Node) InitializeWith(ctx context.Context, fn func(context.Context) error) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()
	switch n.State() {
	case Initialized, Running, Stopped:
		return nil
	case CleanedUp:
		return ErrInvalidState
	}
	var errs Errors
	errs = errs.add(n.eachSubdomain(Pre, func(s Synchronous) error { return s.Initialize(ctx) }))
	errs = errs.add(callHook(ctx, fn))
	errs = errs.add(n.eachSubdomain(Post, func(s Synchronous) error { return s.Initialize(ctx) }))
	if err := errs.ret(); err != nil {
		return err
	}
	n.state.Store(int32(Initialized))
	n.listeners.fire(InitializeEvent, n.self)
	return nil
}

// CleanupWith mirrors InitializeWith: pre sub-domains, fn, post
// sub-domains. Cleanup listeners are notified before any cleanup happens.
// It's allowed after failed or partial initialization, but not while the
// node is running or after it was cleaned up.
func (n *Node) CleanupWith(ctx context.Context, fn func(context.Context) error) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()
	switch n.State() {
	case Running, CleanedUp:
		return ErrInvalidState
	}
	n.listeners.fire(CleanupEvent, n.self)
	var errs Errors
	errs = errs.add(n.eachSubdomain(Pre, func(s Synchronous) error { return s.Cleanup(ctx) }))
	errs = errs.add(callHook(ctx, fn))
	errs = errs.add(n.eachSubdomain(Post, func(s Synchronous) error { return s.Cleanup(ctx) }))
	n.state.Store(int32(CleanedUp))
	return errs.ret()
}

// TickWith ticks pre sub-domains, calls fn and ticks post sub-domains.
// It returns ErrInvalidState unless node is initialized or running, so a
// stopped asynchronous node is never ticked.
func (n *Node) TickWith(dt float64, fn func(float64) error) error {
	switch n.State() {
	case Initialized, Running:
	default:
		return ErrInvalidState
	}
	tree := n.tree.Load()
	var errs Errors
	if tree != nil {
		errs = tickSubdomains(*tree, Pre, dt, errs)
	}
	if fn != nil {
		errs = errs.add(fn(dt))
	}
	if tree != nil {
		errs = tickSubdomains(*tree, Post, dt, errs)
	}
	return errs.ret()
}

// StartWith moves node into Running state and calls fn. Start listeners
// are notified when fn calls Armed or when fn returns without error,
// whatever happens first. If fn fails, node returns to previous state.
// Node must be initialized or stopped.
func (n *Node) StartWith(ctx context.Context, fn func(context.Context) error) error {
	n.lifecycle.Lock()
	prev := n.State()
	switch prev {
	case Initialized, Stopped:
	default:
		n.lifecycle.Unlock()
		return ErrInvalidState
	}
	n.armed.Store(false)
	n.state.Store(int32(Running))
	n.lifecycle.Unlock()

	// fn is not called under the lock, it might block until stop.
	if err := callHook(ctx, fn); err != nil {
		n.lifecycle.Lock()
		n.state.CompareAndSwap(int32(Running), int32(prev))
		n.lifecycle.Unlock()
		return err
	}
	n.Armed()
	return nil
}

// Armed notifies start listeners. Blocking domains call it when they are
// set up and about to enter their loop. Only the first call after start
// has effect.
func (n *Node) Armed() {
	if n.State() != Running {
		return
	}
	if n.armed.CompareAndSwap(false, true) {
		n.listeners.fire(StartEvent, n.self)
	}
}

// StopWith notifies stop listeners, calls fn and moves node into Stopped
// state. Node must be running. The node is Stopped even if fn fails, so
// stop is never executed twice for the same start.
func (n *Node) StopWith(ctx context.Context, fn func(context.Context) error) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()
	if n.State() != Running {
		return ErrInvalidState
	}
	n.listeners.fire(StopEvent, n.self)
	err := callHook(ctx, fn)
	n.state.Store(int32(Stopped))
	return err
}

// eachSubdomain calls fn for every sub-domain of the phase. Must be called
// under lifecycle lock.
func (n *Node) eachSubdomain(p Phase, fn func(Synchronous) error) error {
	tree := n.tree.Load()
	if tree == nil {
		return nil
	}
	var errs Errors
	for _, e := range *tree {
		if e.phase == p {
			errs = errs.add(fn(e.Synchronous))
		}
	}
	return errs.ret()
}

func tickSubdomains(tree []*subdomain, p Phase, dt float64, errs Errors) Errors {
	for _, e := range tree {
		if e.phase != p || e.removed.Load() {
			continue
		}
		e.inflight.Add(1)
		// removal could happen between the check and the increment.
		if !e.removed.Load() {
			errs = errs.add(e.Tick(dt))
		}
		e.inflight.Add(-1)
	}
	return errs
}

func callHook(ctx context.Context, hook func(context.Context) error) error {
	if hook == nil {
		return nil
	}
	return hook(ctx)
}
