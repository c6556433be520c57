package app

import (
	"pipelined.dev/domain"
	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/config"
	"pipelined.dev/domain/graphics"
	"pipelined.dev/domain/output"
	"pipelined.dev/domain/record"
	"pipelined.dev/domain/vr"
)

// Option configures the application before domains are built.
type Option func(*App)

// WithConfig replaces default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.cfg = cfg
	}
}

// WithConfigFile reloads output section of the configuration when the
// file changes.
func WithConfigFile(path string) Option {
	return func(a *App) {
		a.cfgPath = path
	}
}

// WithAudioDevice sets the audio backend. Default is audio.NullDevice.
func WithAudioDevice(d audio.Device) Option {
	return func(a *App) {
		a.device = d
	}
}

// WithWindow sets the window of graphics domain. Default is
// graphics.Headless.
func WithWindow(w graphics.Window) Option {
	return func(a *App) {
		a.window = w
	}
}

// WithTracker enables immersive domain with provided tracker. It's ticked
// every frame before the animation.
func WithTracker(t vr.Tracker) Option {
	return func(a *App) {
		a.tracker = t
	}
}

// WithMeterSender enables meter publishing with provided sender. Without
// this option meters are published only if meter address is configured.
func WithMeterSender(s output.Sender) Option {
	return func(a *App) {
		a.sender = s
	}
}

// WithProcessor appends audio processor that runs after the sound hook
// and before the output stage.
func WithProcessor(p audio.Processor) Option {
	return func(a *App) {
		a.processors = append(a.processors, p)
	}
}

// WithRecorder captures the output of the audio domain into sink.
func WithRecorder(sink record.Sink) Option {
	return func(a *App) {
		a.sink = sink
	}
}

// WithDomains appends custom asynchronous domains. They are started after
// built-in non-blocking domains and before graphics.
func WithDomains(domains ...domain.Asynchronous) Option {
	return func(a *App) {
		a.custom = append(a.custom, domains...)
	}
}
