// Package vr provides the Immersive Domain. It's a synchronous domain
// ticked once per rendered frame: it polls the tracker, publishes the
// head pose and draws the scene for it.
package vr

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"pipelined.dev/domain"
	"pipelined.dev/domain/doublebuffer"
	"pipelined.dev/domain/graphics"
	"pipelined.dev/domain/log"
)

// ErrNoTracker is returned by Initialize when domain has no tracker.
var ErrNoTracker = errors.New("no tracker")

// Tracker provides head pose of the headset.
type Tracker interface {
	Init() error
	Update() (graphics.Pose, error)
	Close() error
}

// Domain is synchronous domain that tracks the headset.
type Domain struct {
	domain.Node
	log     *logrus.Entry
	tracker Tracker

	pose      *doublebuffer.Buffer[graphics.Pose]
	current   [1]graphics.Pose
	drawScene domain.Hook[func(graphics.Pose)]
}

// New returns domain that polls provided tracker.
func New(tracker Tracker) *Domain {
	d := &Domain{
		tracker: tracker,
		pose:    doublebuffer.New[graphics.Pose](1),
	}
	d.Bind(d)
	d.log = log.ForDomain("vr", d.ID())
	return d
}

// OnDrawScene sets hook called every tick with the tracked pose.
func (d *Domain) OnDrawScene(fn func(graphics.Pose)) {
	d.drawScene.Set(fn)
}

// Pose returns the last published pose. It's safe to call from any
// goroutine. Before first tick it returns identity pose.
func (d *Domain) Pose() graphics.Pose {
	if d.pose.Written() == 0 {
		return graphics.Identity
	}
	var p [1]graphics.Pose
	d.pose.Read(p[:])
	return p[0]
}

// Initialize implements domain.Domain.
func (d *Domain) Initialize(ctx context.Context) error {
	return d.InitializeWith(ctx, func(context.Context) error {
		if d.tracker == nil {
			return ErrNoTracker
		}
		if err := d.tracker.Init(); err != nil {
			return fmt.Errorf("error initializing tracker: %w", err)
		}
		d.log.Debug("initialized")
		return nil
	})
}

// Tick implements domain.Synchronous.
func (d *Domain) Tick(dt float64) error {
	return d.TickWith(dt, func(float64) error {
		pose, err := d.tracker.Update()
		if err != nil {
			return fmt.Errorf("error updating tracker: %w", err)
		}
		d.current[0] = pose
		d.pose.Write(d.current[:])
		if fn, ok := d.drawScene.Get(); ok {
			fn(pose)
		}
		return nil
	})
}

// Cleanup implements domain.Domain.
func (d *Domain) Cleanup(ctx context.Context) error {
	return d.CleanupWith(ctx, func(context.Context) error {
		if d.tracker == nil {
			return nil
		}
		d.log.Debug("cleaned up")
		return d.tracker.Close()
	})
}

// Fixed is a tracker that always reports the same pose. It stands in for
// a headset when none is attached.
type Fixed struct {
	graphics.Pose
}

// Init implements Tracker.
func (*Fixed) Init() error { return nil }

// Update implements Tracker.
func (f *Fixed) Update() (graphics.Pose, error) { return f.Pose, nil }

// Close implements Tracker.
func (*Fixed) Close() error { return nil }
