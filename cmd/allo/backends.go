package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/config"
	"pipelined.dev/domain/graphics"
	"pipelined.dev/domain/record"
)

// Hardware backends need cgo libraries, so they are registered by files
// built with the matching tags: portaudio, oto, ebiten and lame.
var (
	devices = map[string]func() audio.Device{
		config.BackendNull: func() audio.Device { return &audio.NullDevice{Paced: true} },
	}
	sinks = map[string]func(path string, cfg config.Record) (record.Sink, error){
		".wav": func(path string, cfg config.Record) (record.Sink, error) {
			return record.NewWav(path, cfg.BitDepth)
		},
	}
	// newWindow is nil without the ebiten tag.
	newWindow func() graphics.Window
)

func device(backend string) (audio.Device, error) {
	fn, ok := devices[backend]
	if !ok {
		return nil, fmt.Errorf("audio backend %q is not built in, available: %s", backend, available(devices))
	}
	return fn(), nil
}

func window(cfg config.Graphics) (graphics.Window, error) {
	if !cfg.Window {
		return &graphics.Headless{}, nil
	}
	if newWindow == nil {
		return nil, fmt.Errorf("window is not built in, rebuild with ebiten tag or disable graphics.window")
	}
	return newWindow(), nil
}

func sink(path string, cfg config.Record) (record.Sink, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := sinks[ext]
	if !ok {
		return nil, fmt.Errorf("recording into %q is not supported, available: %s", ext, available(sinks))
	}
	return fn(path, cfg)
}

func available[V any](m map[string]V) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
