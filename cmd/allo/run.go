package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/sirupsen/logrus"

	"pipelined.dev/domain/app"
	"pipelined.dev/domain/config"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/metric"
	"pipelined.dev/domain/sample"
)

func handleRun(ctx *orpheus.Context) error {
	if ctx.GetFlagBool("verbose") {
		log.SetDebug(true)
	}
	path := ctx.GetFlagString("config")
	cfg, err := load(path)
	if err != nil {
		return err
	}
	if r := ctx.GetFlagString("record"); r != "" {
		cfg.Record.Path = r
	}
	options, err := appOptions(cfg)
	if err != nil {
		return err
	}
	if clip := ctx.GetFlagString("play"); clip != "" {
		c, err := sample.Load(clip)
		if err != nil {
			return err
		}
		player := sample.NewPlayer(c, true)
		player.Play()
		options = append(options, app.WithProcessor(player))
	}
	if path != "" {
		options = append(options, app.WithConfigFile(path))
	}
	a, err := app.New(options...)
	if err != nil {
		return describe(err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := ctx.GetFlagString("duration"); d != "" {
		duration, err := time.ParseDuration(d)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, duration)
		defer cancel()
	}

	l := log.GetLogger()
	a.OnInit(func() {
		entry := l.WithField("backend", cfg.Audio.Backend)
		if cfg.Network.Enabled {
			entry = entry.WithField("control", net.JoinHostPort(cfg.Network.Address, strconv.Itoa(cfg.Network.Port)))
		}
		entry.Info("running")
	})
	a.OnExit(func() {
		for component, counters := range metric.GetAll() {
			fields := logrus.Fields{"component": component}
			for name, value := range counters {
				fields[name] = value
			}
			l.WithFields(fields).Info("metrics")
		}
		l.Info("exited")
	})
	return a.Run(runCtx)
}

// appOptions builds backends selected by the configuration.
func appOptions(cfg *config.Config) ([]app.Option, error) {
	options := []app.Option{app.WithConfig(cfg)}
	if cfg.Audio.Enabled {
		d, err := device(cfg.Audio.Backend)
		if err != nil {
			return nil, err
		}
		options = append(options, app.WithAudioDevice(d))
		if cfg.Record.Path != "" {
			s, err := sink(cfg.Record.Path, cfg.Record)
			if err != nil {
				return nil, err
			}
			options = append(options, app.WithRecorder(s))
		}
	}
	if cfg.Graphics.Enabled {
		w, err := window(cfg.Graphics)
		if err != nil {
			return nil, err
		}
		options = append(options, app.WithWindow(w))
	}
	return options, nil
}

func load(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, describe(err)
	}
	return cfg, nil
}

// describe prefixes configuration errors with their code.
func describe(err error) error {
	if code := config.Code(err); code != "" {
		return fmt.Errorf("%s: %w", code, err)
	}
	return err
}
