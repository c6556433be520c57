// Package audio provides the Audio Domain: it owns the connection to an
// audio device and runs the sound hook, the processors and the
// synchronous sub-domains once per hardware block.
package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"pipelined.dev/domain"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/metric"
	"pipelined.dev/domain/param"
)

// Domain is asynchronous domain driven by the device callback. Start
// returns as soon as the device is running.
type Domain struct {
	domain.Node
	log    *logrus.Entry
	device Device

	mu         sync.Mutex
	cfg        Config
	configured bool

	processors atomic.Pointer[[]Processor]
	sound      domain.Hook[func(*Block)]
	params     *param.Queue
	clock      atomic.Uint64

	// real-time state.
	block    Block
	renderFn func(float64) error
	measure  metric.MeasureFunc
	meter    metric.ResetFunc
	rate     float64

	failures atomic.Uint64
	lastErr  atomic.Pointer[error]
}

// New returns audio domain on top of provided device. Nil device means
// NullDevice.
func New(device Device) *Domain {
	if device == nil {
		device = &NullDevice{}
	}
	d := &Domain{
		device: device,
		params: param.NewQueue(param.DefaultCapacity),
		cfg: Config{
			SampleRate: 44100,
			BlockSize:  512,
			Outputs:    2,
			Device:     DefaultDevice,
		},
	}
	d.Bind(d)
	d.renderFn = d.render
	d.log = log.ForDomain("audio", d.ID())
	return d
}

// Configure sets the stream format. If device differs from the current
// one, channel counts are reset to the device defaults first and then
// provided counts are applied. Configure is not allowed while running.
func (d *Domain) Configure(sampleRate float64, blockSize, outputs, inputs, device int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == domain.Running {
		return domain.ErrInvalidState
	}
	cfg := d.cfg
	if device != cfg.Device || !d.configured {
		info, err := d.device.Info(device)
		if err != nil {
			return err
		}
		cfg.Device = device
		cfg.Outputs, cfg.Inputs = info.MaxOutputs, info.MaxInputs
	}
	cfg.SampleRate = sampleRate
	cfg.BlockSize = blockSize
	cfg.Outputs = outputs
	cfg.Inputs = inputs
	if err := d.validate(cfg); err != nil {
		return err
	}
	d.cfg = cfg
	d.configured = true
	d.log.WithFields(logrus.Fields{
		"sample_rate": cfg.SampleRate,
		"block_size":  cfg.BlockSize,
		"outputs":     cfg.Outputs,
		"inputs":      cfg.Inputs,
		"device":      cfg.Device,
	}).Debug("configured")
	return nil
}

// ConfigureIO configures default device with its default sample rate and
// up to two channels for each used direction.
func (d *Domain) ConfigureIO(io IO) error {
	info, err := d.device.Info(DefaultDevice)
	if err != nil {
		return err
	}
	var outputs, inputs int
	switch io {
	case OutOnly:
		outputs = min(2, info.MaxOutputs)
	case InOnly:
		inputs = min(2, info.MaxInputs)
	case InAndOut:
		outputs = min(2, info.MaxOutputs)
		inputs = min(2, info.MaxInputs)
	default:
		return fmt.Errorf("%w: io %d", ErrInvalidConfig, io)
	}
	d.mu.Lock()
	blockSize := d.cfg.BlockSize
	d.mu.Unlock()
	return d.Configure(info.DefaultSampleRate, blockSize, outputs, inputs, DefaultDevice)
}

// SetDevice selects device and resets channel counts to its defaults.
// Callers must re-apply channel counts after the device change.
func (d *Domain) SetDevice(device int) error {
	info, err := d.device.Info(device)
	if err != nil {
		return err
	}
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()
	return d.Configure(cfg.SampleRate, cfg.BlockSize, info.MaxOutputs, info.MaxInputs, device)
}

func (d *Domain) validate(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	info, err := d.device.Info(cfg.Device)
	if err != nil {
		return err
	}
	if cfg.Outputs > info.MaxOutputs || cfg.Inputs > info.MaxInputs {
		return fmt.Errorf("%w: device %q supports %d outputs and %d inputs", ErrInvalidConfig, info.Name, info.MaxOutputs, info.MaxInputs)
	}
	return nil
}

// Config returns current stream format.
func (d *Domain) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Devices lists devices of the backend.
func (d *Domain) Devices() ([]DeviceInfo, error) {
	return d.device.Devices()
}

// OnSound sets the synthesis hook. It's called first in every block on
// the real-time goroutine, output channels are silent when it's called.
// Nil unsets the hook.
func (d *Domain) OnSound(fn func(*Block)) {
	d.sound.Set(fn)
}

// Append adds processor executed after the sound hook. Processors that
// implement domain.Domain follow the lifecycle of the audio domain.
func (d *Domain) Append(ctx context.Context, p Processor) error {
	if p == nil {
		return domain.ErrNilDomain
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State() {
	case domain.CleanedUp:
		return domain.ErrInvalidState
	case domain.Initialized, domain.Stopped, domain.Running:
		if l, ok := p.(domain.Domain); ok {
			if err := l.Initialize(ctx); err != nil {
				return err
			}
		}
	}
	if d.State() == domain.Running {
		if pr, ok := p.(Preparer); ok {
			if err := pr.Prepare(d.cfg); err != nil {
				return err
			}
		}
	}
	var ps []Processor
	if old := d.processors.Load(); old != nil {
		ps = append(ps, *old...)
	}
	ps = append(ps, p)
	d.processors.Store(&ps)
	return nil
}

// Now returns sample time of the next block.
func (d *Domain) Now() param.Time {
	return param.Time(d.clock.Load())
}

// Schedule applies fn before the block that contains provided time.
func (d *Domain) Schedule(at param.Time, fn param.Mutation) error {
	return d.params.Schedule(at, fn)
}

// LastError returns the last error returned by sub-domains on the
// real-time goroutine.
func (d *Domain) LastError() error {
	if p := d.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Failures returns number of blocks where sub-domains failed.
func (d *Domain) Failures() uint64 {
	return d.failures.Load()
}

// Initialize implements domain.Domain.
func (d *Domain) Initialize(ctx context.Context) error {
	return d.InitializeWith(ctx, func(ctx context.Context) error {
		var errs domain.Errors
		for _, p := range d.lifecycleProcessors() {
			errs = append(errs, p.Initialize(ctx))
		}
		d.log.Debug("initialized")
		return domain.Join(errs...)
	})
}

// Cleanup implements domain.Domain.
func (d *Domain) Cleanup(ctx context.Context) error {
	return d.CleanupWith(ctx, func(ctx context.Context) error {
		var errs domain.Errors
		for _, p := range d.lifecycleProcessors() {
			errs = append(errs, p.Cleanup(ctx))
		}
		d.log.Debug("cleaned up")
		return domain.Join(errs...)
	})
}

// Start opens and starts the device. It returns once the callback is
// armed.
func (d *Domain) Start(ctx context.Context) error {
	return d.StartWith(ctx, d.start)
}

func (d *Domain) start(ctx context.Context) error {
	d.mu.Lock()
	cfg, configured := d.cfg, d.configured
	d.mu.Unlock()
	if !configured {
		return ErrNotConfigured
	}
	if ps := d.processors.Load(); ps != nil {
		for _, p := range *ps {
			if pr, ok := p.(Preparer); ok {
				if err := pr.Prepare(cfg); err != nil {
					return fmt.Errorf("error preparing processor: %w", err)
				}
			}
		}
	}
	if d.meter == nil || d.rate != cfg.SampleRate {
		d.meter, d.rate = metric.Meter(d, cfg.SampleRate), cfg.SampleRate
	}
	d.measure = d.meter()
	d.block = Block{SampleRate: cfg.SampleRate}

	if err := d.device.Open(cfg, d.process); err != nil {
		return fmt.Errorf("error opening audio device: %w", err)
	}
	if err := d.device.Start(); err != nil {
		return domain.Join(
			fmt.Errorf("error starting audio device: %w", err),
			d.device.Close(),
		)
	}
	d.log.Debug("started")
	return nil
}

// Stop halts the device and closes it. Both steps are attempted.
func (d *Domain) Stop(ctx context.Context) error {
	return d.StopWith(ctx, func(context.Context) error {
		err := domain.Join(d.device.Stop(), d.device.Close())
		d.log.Debug("stopped")
		return err
	})
}

// process is the device callback.
func (d *Domain) process(in, out [][]float32) {
	b := &d.block
	b.In, b.Out = in, out
	b.Frames = frames(in, out)
	b.Time = param.Time(d.clock.Load())
	silence(out)
	d.params.Apply(b.Time, b.Frames)
	if err := d.TickWith(b.Duration(), d.renderFn); err != nil {
		d.failures.Add(1)
		d.lastErr.Store(&err)
	}
	d.clock.Add(uint64(b.Frames))
	if d.measure != nil {
		d.measure(int64(b.Frames))
	}
}

// render runs between pre and post sub-domains.
func (d *Domain) render(float64) error {
	if fn, ok := d.sound.Get(); ok {
		fn(&d.block)
	}
	if ps := d.processors.Load(); ps != nil {
		for _, p := range *ps {
			p.Process(&d.block)
		}
	}
	return nil
}

func (d *Domain) lifecycleProcessors() []domain.Domain {
	ps := d.processors.Load()
	if ps == nil {
		return nil
	}
	var result []domain.Domain
	for _, p := range *ps {
		if l, ok := p.(domain.Domain); ok {
			result = append(result, l)
		}
	}
	return result
}

func frames(in, out [][]float32) int {
	if len(out) > 0 {
		return len(out[0])
	}
	if len(in) > 0 {
		return len(in[0])
	}
	return 0
}
