package app

import (
	"context"

	"pipelined.dev/domain"
	"pipelined.dev/domain/config"
	"pipelined.dev/domain/output"
)

// Run initializes and starts all domains and blocks until the graphics
// frame loop ends. Without graphics it blocks until ctx is done or Quit
// is called. Then running domains are stopped in reverse order of start,
// all domains are cleaned up and the exit hook is called.
//
// If any domain fails to initialize, nothing is started. Failures of
// start, stop and cleanup are logged and returned together, siblings of a
// failed domain still get their calls.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	// lifecycle calls after the run context is done must still succeed.
	bg := context.WithoutCancel(ctx)

	var errs domain.Errors
	for _, d := range a.domains {
		if err := d.Initialize(ctx); err != nil {
			a.log.WithError(err).Error("error initializing domain")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		errs = append(errs, a.cleanup(bg))
		return domain.Join(errs...)
	}
	if fn, ok := a.onInit.Get(); ok {
		fn()
	}

	if a.cfgPath != "" {
		w, err := config.Watch(a.cfgPath, 0, func(cfg *config.Config) { a.Reload(cfg) })
		if err != nil {
			a.log.WithError(err).Error("error watching config")
			errs = append(errs, err)
		} else {
			defer w.Close()
		}
	}

	for _, d := range a.domains {
		a.push(d)
		if err := d.Start(ctx); err != nil {
			a.pop()
			a.log.WithError(err).Error("error starting domain")
			errs = append(errs, err)
		}
	}
	if a.graphics == nil {
		<-ctx.Done()
	}

	for d := a.pop(); d != nil; d = a.pop() {
		if err := d.Stop(bg); err != nil {
			a.log.WithError(err).Error("error stopping domain")
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.cleanup(bg))
	if fn, ok := a.onExit.Get(); ok {
		fn()
	}
	return domain.Join(errs...)
}

// Quit ends Run: graphics frame loop is asked to return and the run
// context is cancelled.
func (a *App) Quit() {
	if a.graphics != nil {
		a.graphics.Quit()
	}
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Running returns domains that are running, in start order.
func (a *App) Running() []domain.Asynchronous {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Asynchronous(nil), a.running...)
}

// push is called before start, so a domain that started its goroutines
// and then failed still sees them stopped.
func (a *App) push(d domain.Asynchronous) {
	a.mu.Lock()
	a.running = append(a.running, d)
	a.mu.Unlock()
}

// pop removes the last started domain. It returns nil if none is running.
func (a *App) pop() domain.Asynchronous {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.running) == 0 {
		return nil
	}
	d := a.running[len(a.running)-1]
	a.running = a.running[:len(a.running)-1]
	return d
}

func (a *App) cleanup(ctx context.Context) error {
	var errs domain.Errors
	for _, d := range a.domains {
		if err := d.Cleanup(ctx); err != nil {
			a.log.WithError(err).Error("error cleaning up domain")
			errs = append(errs, err)
		}
	}
	return domain.Join(errs...)
}

// Reload applies output section of the configuration to the output
// stage. Changes are scheduled at the next block. Invalid modes leave the
// stage untouched.
func (a *App) Reload(cfg *config.Config) error {
	if a.stage == nil {
		return nil
	}
	err := a.reload(cfg.Output)
	if err != nil {
		a.log.WithError(err).Error("error applying config")
		return err
	}
	a.log.Debug("config applied")
	return nil
}

func (a *App) reload(o config.Output) error {
	mode, err := output.ParseBassMode(o.BassMode)
	if err != nil {
		return err
	}
	mix, err := output.ParseSubMix(o.SubMix)
	if err != nil {
		return err
	}
	s := a.stage
	at := s.NextBlock()
	var errs domain.Errors
	errs = append(errs,
		s.SetMasterGainAt(at, o.MasterGain),
		s.SetMuteAt(at, o.Mute),
		s.SetClipperAt(at, o.Clipper),
		s.SetBassManagementFreqAt(at, o.Crossover),
		s.SetBassManagementModeAt(at, mode),
		s.SetSubwoofersAt(at, o.Subwoofers...),
		s.SetSubMixAt(at, mix),
		s.SetMeterAt(at, o.Meter),
		s.SetMeterPeriodAt(at, o.MeterPeriod),
	)
	for ch, g := range o.Gains {
		errs = append(errs, s.SetGainAt(at, ch, g))
	}
	s.SetPrefix(o.OSCPrefix)
	s.SetMeterAddrHasChannel(o.MeterAddrHasChannel)
	return domain.Join(errs...)
}
