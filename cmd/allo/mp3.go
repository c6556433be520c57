//go:build lame

package main

import (
	"pipelined.dev/domain/config"
	"pipelined.dev/domain/record"
	"pipelined.dev/domain/record/mp3"
)

func init() {
	sinks[".mp3"] = func(path string, cfg config.Record) (record.Sink, error) {
		return mp3.NewSink(path, cfg.BitRate, cfg.Quality), nil
	}
}
