//go:build portaudio

package main

import (
	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/audio/portaudio"
	"pipelined.dev/domain/config"
)

func init() {
	devices[config.BackendPortaudio] = func() audio.Device { return &portaudio.Device{} }
}
