// Package graphics provides the Graphics Domain: a frame loop clocked by
// a target frame rate that animates, draws and presents into a Window.
package graphics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/domain"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/metric"
)

// Domain is asynchronous domain that owns the frame loop. Start blocks
// until the window quits, Quit is called or the context is done.
// Synchronous sub-domains are ticked every frame: pre ones before the
// animate hook, post ones after the draw.
type Domain struct {
	domain.Node
	log    *logrus.Entry
	window Window

	mu   sync.Mutex
	cfg  Config
	done chan struct{}
	quit atomic.Bool

	onCreate  domain.Hook[func()]
	onAnimate domain.Hook[func(dt float64)]
	onDraw    domain.Hook[func(*Graphics)]
	onExit    domain.Hook[func()]

	// frame loop state.
	nav      *Nav
	g        Graphics
	count    uint64
	fps      float64
	renderFn func(float64) error
	frames   func()

	failures atomic.Uint64
	lastErr  atomic.Pointer[error]
}

// New returns graphics domain that draws into the window. Nil window means
// Headless.
func New(window Window) *Domain {
	if window == nil {
		window = &Headless{}
	}
	d := &Domain{
		window: window,
		cfg: Config{
			Width:  800,
			Height: 600,
			FPS:    60,
		},
		nav:    NewNav(),
		frames: metric.Ticker("graphics.Domain", metric.FrameCounter),
	}
	d.Bind(d)
	d.renderFn = d.render
	d.log = log.ForDomain("graphics", d.ID())
	return d
}

// Configure sets window size and target frame rate. It's not allowed
// while running.
func (d *Domain) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == domain.Running {
		return domain.ErrInvalidState
	}
	d.cfg = cfg
	return nil
}

// Config returns window setup.
func (d *Domain) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Window returns the window of the domain.
func (d *Domain) Window() Window {
	return d.window
}

// Nav returns camera navigation. It must be used only from the hooks.
func (d *Domain) Nav() *Nav {
	return d.nav
}

// OnCreate sets hook called once the window is open.
func (d *Domain) OnCreate(fn func()) {
	d.onCreate.Set(fn)
}

// OnAnimate sets hook called every frame with elapsed seconds.
func (d *Domain) OnAnimate(fn func(dt float64)) {
	d.onAnimate.Set(fn)
}

// OnDraw sets hook called every frame with reset draw context.
func (d *Domain) OnDraw(fn func(*Graphics)) {
	d.onDraw.Set(fn)
}

// OnExit sets hook called on stop before the window is closed.
func (d *Domain) OnExit(fn func()) {
	d.onExit.Set(fn)
}

// Quit requests the frame loop to return after the current frame.
func (d *Domain) Quit() {
	d.quit.Store(true)
}

// LastError returns the last error returned by sub-domains.
func (d *Domain) LastError() error {
	if p := d.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Failures returns number of frames where sub-domains failed.
func (d *Domain) Failures() uint64 {
	return d.failures.Load()
}

// Initialize implements domain.Domain.
func (d *Domain) Initialize(ctx context.Context) error {
	return d.InitializeWith(ctx, func(context.Context) error {
		d.log.Debug("initialized")
		return nil
	})
}

// Cleanup implements domain.Domain.
func (d *Domain) Cleanup(ctx context.Context) error {
	return d.CleanupWith(ctx, func(context.Context) error {
		d.log.Debug("cleaned up")
		return nil
	})
}

// Start opens the window and runs the frame loop.
func (d *Domain) Start(ctx context.Context) error {
	d.mu.Lock()
	switch d.State() {
	case domain.Initialized, domain.Stopped:
		d.quit.Store(false)
		d.done = make(chan struct{})
	}
	done := d.done
	d.mu.Unlock()
	return d.StartWith(ctx, func(ctx context.Context) error {
		return d.run(ctx, done)
	})
}

// Stop ends the frame loop, calls exit hook and closes the window.
func (d *Domain) Stop(ctx context.Context) error {
	return d.StopWith(ctx, func(ctx context.Context) error {
		d.quit.Store(true)
		d.mu.Lock()
		done := d.done
		d.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				return fmt.Errorf("error waiting for frame loop: %w", ctx.Err())
			}
		}
		if fn, ok := d.onExit.Get(); ok {
			fn()
		}
		err := d.window.Close()
		d.log.Debug("stopped")
		return err
	})
}

func (d *Domain) run(ctx context.Context, done chan struct{}) error {
	defer close(done)
	cfg := d.Config()
	if err := d.window.Open(cfg); err != nil {
		return fmt.Errorf("error opening window: %w", err)
	}
	d.fps, d.count = cfg.FPS, 0
	if fn, ok := d.onCreate.Get(); ok {
		fn()
	}
	d.Armed()
	d.log.Debug("started")

	pace := newPacer(cfg.FPS)
	last := time.Now()
	for !d.quit.Load() && !d.window.ShouldQuit() && ctx.Err() == nil {
		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now
		if err := d.frame(dt); err != nil {
			d.failures.Add(1)
			d.lastErr.Store(&err)
			d.log.WithError(err).Debug("frame failed")
		}
		pace.wait()
	}
	return nil
}

// frame executes nav step, pre sub-domains, animate, draw, post
// sub-domains and present.
func (d *Domain) frame(dt float64) error {
	d.nav.animate(dt, d.fps)
	err := d.TickWith(dt, d.renderFn)
	d.count++
	d.frames()
	return domain.Join(err, d.window.Present())
}

func (d *Domain) render(dt float64) error {
	if fn, ok := d.onAnimate.Get(); ok {
		fn(dt)
	}
	d.g.reset(d.window.Surface(), d.nav.Pose, d.count)
	if fn, ok := d.onDraw.Get(); ok {
		fn(&d.g)
	}
	return nil
}
