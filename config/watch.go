package config

import (
	"time"

	"github.com/agilira/argus"
	"github.com/sirupsen/logrus"

	"pipelined.dev/domain/log"
)

// DefaultPollInterval is how often watched file is checked for changes.
const DefaultPollInterval = time.Second

// Watcher reloads configuration file when it changes.
type Watcher struct {
	path    string
	watcher *argus.Watcher
	log     *logrus.Entry
}

// Watch starts watching the file. Every change that parses and validates
// is passed to fn, invalid changes are logged and skipped. Interval below
// or equal to zero means DefaultPollInterval.
func Watch(path string, interval time.Duration, fn func(*Config)) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w := &Watcher{
		path: path,
		watcher: argus.New(argus.Config{
			PollInterval: interval,
			// non-zero audit config keeps audit disabled.
			Audit: argus.AuditConfig{Enabled: false, BufferSize: 1},
		}),
		log: log.GetLogger().WithField("config", path),
	}
	err := w.watcher.Watch(path, func(e argus.ChangeEvent) {
		if e.IsDelete {
			w.log.Info("config file deleted")
			return
		}
		cfg, err := Load(e.Path)
		if err != nil {
			w.log.WithError(err).WithField("code", Code(err)).Error("config reload failed")
			return
		}
		w.log.Debug("config reloaded")
		fn(cfg)
	})
	if err != nil {
		return nil, err
	}
	if err := w.watcher.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Stop()
}
