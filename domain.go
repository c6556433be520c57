package domain

import (
	"context"
	"errors"
)

type (
	// Domain is a unit of schedulable work with its own lifecycle.
	Domain interface {
		Initialize(context.Context) error
		Cleanup(context.Context) error
	}

	// Synchronous domain is ticked inline by its parent, once per the
	// parent's natural cadence. dt is the time in seconds elapsed since
	// the previous tick of the parent.
	Synchronous interface {
		Domain
		Tick(dt float64) error
	}

	// Asynchronous domain owns its execution context. Start either
	// blocks until the domain is told to quit or returns once the
	// underlying machinery is armed. Stop returns only when the domain is
	// fully halted.
	Asynchronous interface {
		Domain
		Start(context.Context) error
		Stop(context.Context) error
	}
)

// Phase defines if sub-domain is executed before or after the parent.
type Phase int

const (
	// Pre sub-domains are executed before the parent's own work.
	Pre Phase = iota
	// Post sub-domains are executed after the parent's own work.
	Post
)

func (p Phase) String() string {
	switch p {
	case Pre:
		return "pre"
	case Post:
		return "post"
	}
	return "unknown"
}

// State of the domain lifecycle.
type State int32

// States of the domain lifecycle.
const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
	CleanedUp
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case CleanedUp:
		return "cleaned up"
	}
	return "unknown"
}

var (
	// ErrInvalidState is returned if domain method cannot be executed at
	// this moment, e.g. tick before initialize or start after cleanup.
	ErrInvalidState = errors.New("invalid state")
	// ErrNilDomain is returned when nil domain is added to the tree.
	ErrNilDomain = errors.New("nil domain")
	// ErrUnknownSubdomain is returned when removed domain is not in the tree.
	ErrUnknownSubdomain = errors.New("unknown sub-domain")
	// ErrNotSynchronous is returned when domain without tick capability is
	// nested into the tree.
	ErrNotSynchronous = errors.New("domain is not synchronous")
)
