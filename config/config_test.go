package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/domain/config"
	"pipelined.dev/domain/output"
)

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(`
audio:
  sample_rate: 48000
  outputs: 4
network:
  port: 9999
output:
  bass_mode: full
  subwoofers: [3]
  gains: [1, 1, 0.5]
`))
	assert.Nil(t, err)
	assert.Equal(t, 48000.0, cfg.Audio.SampleRate)
	assert.Equal(t, 512, cfg.Audio.BlockSize)
	assert.Equal(t, 4, cfg.Audio.Outputs)
	assert.Equal(t, config.BackendNull, cfg.Audio.Backend)
	assert.Equal(t, 9999, cfg.Network.Port)
	assert.Equal(t, "0.0.0.0", cfg.Network.Address)
	assert.Equal(t, "full", cfg.Output.BassMode)
	assert.Equal(t, []int{3}, cfg.Output.Subwoofers)
	assert.Equal(t, output.DefaultPrefix, cfg.Output.OSCPrefix)

	s, err := output.New(cfg.Audio.Outputs, cfg.Audio.SampleRate, cfg.Output.Stage()...)
	assert.Nil(t, err)
	settings := s.Settings()
	assert.Equal(t, output.BassFull, settings.BassMode)
	assert.Equal(t, []float64{1, 1, 0.5, 1}, settings.Gains)
}

func TestDefault(t *testing.T) {
	cfg, err := config.Parse(nil)
	assert.Nil(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		code   string
	}{
		{"sample rate", func(c *config.Config) { c.Audio.SampleRate = 0 }, config.ErrCodeSampleRate},
		{"block size", func(c *config.Config) { c.Audio.BlockSize = -1 }, config.ErrCodeBlockSize},
		{"no channels", func(c *config.Config) { c.Audio.Outputs = 0 }, config.ErrCodeChannels},
		{"backend", func(c *config.Config) { c.Audio.Backend = "jack" }, config.ErrCodeBackend},
		{"window", func(c *config.Config) { c.Graphics.Width = 0 }, config.ErrCodeWindow},
		{"fps", func(c *config.Config) { c.Graphics.FPS = 0 }, config.ErrCodeFPS},
		{"port", func(c *config.Config) { c.Network.Port = 70000 }, config.ErrCodePort},
		{"master gain", func(c *config.Config) { c.Output.MasterGain = -1 }, config.ErrCodeGain},
		{"gains", func(c *config.Config) { c.Output.Gains = []float64{1, 1, 1} }, config.ErrCodeGain},
		{"bass mode", func(c *config.Config) { c.Output.BassMode = "loud" }, config.ErrCodeBassMode},
		{"sub mix", func(c *config.Config) { c.Output.SubMix = "maybe" }, config.ErrCodeSubMix},
		{"crossover", func(c *config.Config) { c.Output.Crossover = 0 }, config.ErrCodeCrossover},
		{"too many subwoofers", func(c *config.Config) {
			c.Audio.Outputs = 8
			c.Output.Subwoofers = []int{1, 2, 3, 4, 5}
		}, config.ErrCodeTooManySubwoofer},
		{"subwoofer", func(c *config.Config) { c.Output.Subwoofers = []int{2} }, config.ErrCodeSubwoofer},
		{"meter period", func(c *config.Config) { c.Output.MeterPeriod = 0 }, config.ErrCodeMeterPeriod},
		{"meter rate", func(c *config.Config) {
			c.Output.MeterAddress = "127.0.0.1:9011"
			c.Output.MeterRate = 0
		}, config.ErrCodePublish},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := config.Default()
			test.modify(cfg)
			err := cfg.Validate()
			assert.NotNil(t, err)
			assert.Equal(t, test.code, config.Code(err))
		})
	}
}

func TestLoad(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, config.ErrCodeRead, config.Code(err))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	assert.Nil(t, os.WriteFile(path, []byte("audio: [1, 2"), 0o600))
	_, err = config.Load(path)
	assert.Equal(t, config.ErrCodeParse, config.Code(err))
	assert.Equal(t, "", config.Code(nil))
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.Nil(t, os.WriteFile(path, []byte("output:\n  master_gain: 1\n"), 0o600))

	var (
		mu      sync.Mutex
		reloads []*config.Config
	)
	w, err := config.Watch(path, 20*time.Millisecond, func(c *config.Config) {
		mu.Lock()
		reloads = append(reloads, c)
		mu.Unlock()
	})
	assert.Nil(t, err)
	defer func() { assert.Nil(t, w.Close()) }()

	// invalid change is skipped.
	write := func(content string, shift time.Duration) {
		assert.Nil(t, os.WriteFile(path, []byte(content), 0o600))
		at := time.Now().Add(shift)
		assert.Nil(t, os.Chtimes(path, at, at))
	}
	write("output:\n  master_gain: -5\n", time.Second)
	time.Sleep(100 * time.Millisecond)
	write("output:\n  master_gain: 0.5\n", 2*time.Second)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloads) > 0 && reloads[len(reloads)-1].Output.MasterGain == 0.5
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	for _, c := range reloads {
		assert.NotEqual(t, -5.0, c.Output.MasterGain)
	}
	mu.Unlock()
}
