package vr_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/domain"
	"pipelined.dev/domain/graphics"
	"pipelined.dev/domain/vr"
)

var errTest = errors.New("test error")

type tracker struct {
	poses  []graphics.Pose
	err    error
	closed bool
}

func (t *tracker) Init() error { return t.err }

func (t *tracker) Update() (graphics.Pose, error) {
	if len(t.poses) == 0 {
		return graphics.Pose{}, errTest
	}
	p := t.poses[0]
	t.poses = t.poses[1:]
	return p, nil
}

func (t *tracker) Close() error {
	t.closed = true
	return nil
}

func pose(x float64) graphics.Pose {
	p := graphics.Identity
	p.Pos[0] = x
	return p
}

func TestTick(t *testing.T) {
	ctx := context.Background()
	tr := &tracker{poses: []graphics.Pose{pose(1), pose(2)}}
	d := vr.New(tr)
	var drawn []graphics.Pose
	d.OnDrawScene(func(p graphics.Pose) { drawn = append(drawn, p) })

	assert.Equal(t, graphics.Identity, d.Pose())
	assert.Nil(t, d.Initialize(ctx))
	assert.Nil(t, d.Tick(0.1))
	assert.Equal(t, pose(1), d.Pose())
	assert.Nil(t, d.Tick(0.1))
	assert.Equal(t, pose(2), d.Pose())
	assert.Equal(t, pose(2), d.Pose())
	assert.Equal(t, []graphics.Pose{pose(1), pose(2)}, drawn)

	assert.ErrorIs(t, d.Tick(0.1), errTest)
	assert.Equal(t, pose(2), d.Pose())

	assert.Nil(t, d.Cleanup(ctx))
	assert.True(t, tr.closed)
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	d := vr.New(nil)
	assert.ErrorIs(t, d.Initialize(ctx), vr.ErrNoTracker)
	assert.Equal(t, domain.Uninitialized, d.State())
	assert.ErrorIs(t, d.Tick(0.1), domain.ErrInvalidState)
	assert.Nil(t, d.Cleanup(ctx))

	d = vr.New(&tracker{err: errTest})
	assert.ErrorIs(t, d.Initialize(ctx), errTest)
}

func TestGraphicsSubdomain(t *testing.T) {
	ctx := context.Background()
	fixed := &vr.Fixed{Pose: pose(3)}
	d := vr.New(fixed)
	g := graphics.New(&graphics.Headless{MaxFrames: 1})
	assert.Nil(t, g.Configure(graphics.Config{Width: 1, Height: 1, FPS: 1000}))
	assert.Nil(t, g.AddSubdomain(ctx, d, domain.Pre))
	assert.Nil(t, g.Initialize(ctx))
	assert.Equal(t, domain.Initialized, d.State())
	assert.Nil(t, g.Start(ctx))
	assert.Nil(t, g.Stop(ctx))
	assert.Nil(t, g.Cleanup(ctx))
	assert.Equal(t, pose(3), d.Pose())
	assert.Equal(t, domain.CleanedUp, d.State())
}
