// Package app provides the Composite Application. It builds network,
// audio and graphics domains from configuration, connects the user hooks
// to them and drives their lifecycle: domains are started in order and
// stopped in reverse order of start.
package app

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/domain"
	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/config"
	"pipelined.dev/domain/graphics"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/network"
	"pipelined.dev/domain/output"
	"pipelined.dev/domain/record"
	"pipelined.dev/domain/vr"
)

// App is the composite application.
type App struct {
	log *logrus.Entry

	// set by options.
	cfg        *config.Config
	cfgPath    string
	device     audio.Device
	processors []audio.Processor
	window     graphics.Window
	tracker    vr.Tracker
	sender     output.Sender
	sink       record.Sink
	custom     []domain.Asynchronous

	audio      *audio.Domain
	graphics   *graphics.Domain
	network    *network.Domain
	stage      *output.Stage
	simulation *domain.Func
	immersive  *vr.Domain
	publisher  *output.Publisher
	recorder   *record.Recorder
	domains    []domain.Asynchronous

	mu      sync.Mutex
	running []domain.Asynchronous
	cancel  context.CancelFunc

	onInit    domain.Hook[func()]
	onCreate  domain.Hook[func()]
	onAnimate domain.Hook[func(dt float64)]
	onDraw    domain.Hook[func(*graphics.Graphics)]
	onSound   domain.Hook[func(*audio.Block)]
	onMessage domain.Hook[func(network.Message)]
	onExit    domain.Hook[func()]
}

// New builds the application. Configuration is validated before any
// domain is created.
func New(options ...Option) (*App, error) {
	a := &App{
		cfg: config.Default(),
		log: log.GetLogger().WithField("app", xid.New().String()),
	}
	for _, option := range options {
		option(a)
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := a.build(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

// build creates enabled domains in start order: network, audio, meter
// publisher, custom domains and graphics. Graphics goes last because its
// start blocks until the window quits.
func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Network.Enabled {
		a.network = network.New()
		if err := a.network.Configure(cfg.Network.Port, cfg.Network.Address); err != nil {
			return fmt.Errorf("error configuring network: %w", err)
		}
		a.network.OnMessage(a.message)
		a.domains = append(a.domains, a.network)
	}
	if cfg.Audio.Enabled {
		if err := a.buildAudio(ctx); err != nil {
			return err
		}
	}
	a.domains = append(a.domains, a.custom...)
	if cfg.Graphics.Enabled {
		if err := a.buildGraphics(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) buildAudio(ctx context.Context) error {
	cfg := a.cfg
	if a.device == nil {
		a.device = &audio.NullDevice{Paced: true}
	}
	a.audio = audio.New(a.device)
	if err := a.audio.Configure(cfg.Audio.SampleRate, cfg.Audio.BlockSize, cfg.Audio.Outputs, cfg.Audio.Inputs, cfg.Audio.Device); err != nil {
		return fmt.Errorf("error configuring audio: %w", err)
	}
	a.audio.OnSound(a.sound)
	a.domains = append(a.domains, a.audio)
	for _, p := range a.processors {
		if err := a.audio.Append(ctx, p); err != nil {
			return err
		}
	}
	if cfg.Audio.Outputs == 0 {
		return nil
	}

	stage, err := output.New(cfg.Audio.Outputs, cfg.Audio.SampleRate, cfg.Output.Stage()...)
	if err != nil {
		return fmt.Errorf("error creating output stage: %w", err)
	}
	a.stage = stage
	if err := a.audio.Append(ctx, stage); err != nil {
		return err
	}
	if a.sink != nil {
		a.recorder = record.New(a.sink, record.DefaultCapacity)
		if err := a.audio.Append(ctx, a.recorder); err != nil {
			return err
		}
	}

	if a.sender == nil && cfg.Output.MeterAddress != "" {
		host, p, err := net.SplitHostPort(cfg.Output.MeterAddress)
		if err != nil {
			return fmt.Errorf("error parsing meter address: %w", err)
		}
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("error parsing meter port: %w", err)
		}
		a.sender = osc.NewClient(host, port)
	}
	if a.sender != nil {
		period := time.Duration(float64(time.Second) / cfg.Output.MeterRate)
		a.publisher = output.NewPublisher(stage, a.sender, period)
		a.domains = append(a.domains, a.publisher)
	}
	return nil
}

func (a *App) buildGraphics(ctx context.Context) error {
	cfg := a.cfg.Graphics
	a.graphics = graphics.New(a.window)
	if err := a.graphics.Configure(graphics.Config{
		Width:  cfg.Width,
		Height: cfg.Height,
		Title:  cfg.Title,
		FPS:    cfg.FPS,
	}); err != nil {
		return fmt.Errorf("error configuring graphics: %w", err)
	}
	a.graphics.OnCreate(a.create)
	a.graphics.OnDraw(a.draw)
	if a.tracker != nil {
		a.immersive = vr.New(a.tracker)
		if err := a.graphics.AddSubdomain(ctx, a.immersive, domain.Pre); err != nil {
			return err
		}
	}
	a.simulation = domain.NewFunc(a.animate)
	if err := a.graphics.AddSubdomain(ctx, a.simulation, domain.Pre); err != nil {
		return err
	}
	a.domains = append(a.domains, a.graphics)
	return nil
}

// Audio returns audio domain or nil if audio is disabled.
func (a *App) Audio() *audio.Domain { return a.audio }

// Graphics returns graphics domain or nil if graphics is disabled.
func (a *App) Graphics() *graphics.Domain { return a.graphics }

// Network returns network domain or nil if network is disabled.
func (a *App) Network() *network.Domain { return a.network }

// Output returns output stage or nil if audio has no outputs.
func (a *App) Output() *output.Stage { return a.stage }

// Simulation returns the sub-domain of graphics that runs the animate
// hook.
func (a *App) Simulation() *domain.Func { return a.simulation }

// Immersive returns immersive domain or nil if no tracker is set.
func (a *App) Immersive() *vr.Domain { return a.immersive }

// Recorder returns recorder or nil if recording is disabled.
func (a *App) Recorder() *record.Recorder { return a.recorder }

// Config returns configuration the application was built with.
func (a *App) Config() *config.Config { return a.cfg }

// OnInit sets hook called after all domains are initialized.
func (a *App) OnInit(fn func()) { a.onInit.Set(fn) }

// OnCreate sets hook called once the window is open.
func (a *App) OnCreate(fn func()) { a.onCreate.Set(fn) }

// OnAnimate sets hook called every frame before draw.
func (a *App) OnAnimate(fn func(dt float64)) { a.onAnimate.Set(fn) }

// OnDraw sets hook called every frame.
func (a *App) OnDraw(fn func(*graphics.Graphics)) { a.onDraw.Set(fn) }

// OnSound sets hook called every audio block on the real-time goroutine.
func (a *App) OnSound(fn func(*audio.Block)) { a.onSound.Set(fn) }

// OnMessage sets hook for control messages not handled by parameters or
// the output stage.
func (a *App) OnMessage(fn func(network.Message)) { a.onMessage.Set(fn) }

// OnExit sets hook called after all domains are cleaned up.
func (a *App) OnExit(fn func()) { a.onExit.Set(fn) }

func (a *App) create() {
	if fn, ok := a.onCreate.Get(); ok {
		fn()
	}
}

func (a *App) animate(dt float64) error {
	if fn, ok := a.onAnimate.Get(); ok {
		fn(dt)
	}
	return nil
}

func (a *App) draw(g *graphics.Graphics) {
	if fn, ok := a.onDraw.Get(); ok {
		fn(g)
	}
}

func (a *App) sound(b *audio.Block) {
	if fn, ok := a.onSound.Get(); ok {
		fn(b)
	}
}

// message routes control message to the output stage first and then to
// the user hook.
func (a *App) message(m network.Message) {
	if a.stage != nil {
		handled, err := a.stage.HandleMessage(m.Message)
		if err != nil {
			a.log.WithError(err).WithField("address", m.Address).Error("invalid output stage message")
		}
		if handled {
			return
		}
	}
	if fn, ok := a.onMessage.Get(); ok {
		fn(m)
	}
}
