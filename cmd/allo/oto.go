//go:build oto

package main

import (
	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/audio/oto"
	"pipelined.dev/domain/config"
)

func init() {
	devices[config.BackendOto] = func() audio.Device { return &oto.Device{} }
}
