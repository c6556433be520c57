// Package config loads the application configuration from YAML and
// validates it. Validation errors carry codes, so callers can tell which
// section is wrong without parsing messages.
package config

import (
	goerrors "errors"
	"os"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"

	"pipelined.dev/domain/output"
)

// Error codes of configuration errors.
const (
	ErrCodeRead             = "DOMAIN_CONFIG_READ"
	ErrCodeParse            = "DOMAIN_CONFIG_PARSE"
	ErrCodeSampleRate       = "DOMAIN_INVALID_SAMPLE_RATE"
	ErrCodeBlockSize        = "DOMAIN_INVALID_BLOCK_SIZE"
	ErrCodeChannels         = "DOMAIN_INVALID_CHANNELS"
	ErrCodeBackend          = "DOMAIN_INVALID_BACKEND"
	ErrCodeWindow           = "DOMAIN_INVALID_WINDOW"
	ErrCodeFPS              = "DOMAIN_INVALID_FPS"
	ErrCodePort             = "DOMAIN_INVALID_PORT"
	ErrCodeGain             = "DOMAIN_INVALID_GAIN"
	ErrCodeBassMode         = "DOMAIN_INVALID_BASS_MODE"
	ErrCodeSubMix           = "DOMAIN_INVALID_SUB_MIX"
	ErrCodeCrossover        = "DOMAIN_INVALID_CROSSOVER"
	ErrCodeTooManySubwoofer = "DOMAIN_TOO_MANY_SUBWOOFERS"
	ErrCodeSubwoofer        = "DOMAIN_INVALID_SUBWOOFER"
	ErrCodeMeterPeriod      = "DOMAIN_INVALID_METER_PERIOD"
	ErrCodePublish          = "DOMAIN_INVALID_PUBLISH"
)

// Audio backends.
const (
	BackendNull      = "null"
	BackendPortaudio = "portaudio"
	BackendOto       = "oto"
)

type (
	// Config is the complete application configuration.
	Config struct {
		Audio    Audio    `yaml:"audio"`
		Graphics Graphics `yaml:"graphics"`
		Network  Network  `yaml:"network"`
		Output   Output   `yaml:"output"`
		Record   Record   `yaml:"record"`
	}

	// Audio is the audio stream format.
	Audio struct {
		Enabled    bool    `yaml:"enabled"`
		Backend    string  `yaml:"backend"`
		SampleRate float64 `yaml:"sample_rate"`
		BlockSize  int     `yaml:"block_size"`
		Outputs    int     `yaml:"outputs"`
		Inputs     int     `yaml:"inputs"`
		Device     int     `yaml:"device"`
	}

	// Graphics is the window setup.
	Graphics struct {
		Enabled bool    `yaml:"enabled"`
		Window  bool    `yaml:"window"` // false runs headless
		FPS     float64 `yaml:"fps"`
		Width   int     `yaml:"width"`
		Height  int     `yaml:"height"`
		Title   string  `yaml:"title"`
	}

	// Network is the control listener address.
	Network struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	}

	// Output is the output stage setup.
	Output struct {
		MasterGain          float64   `yaml:"master_gain"`
		Gains               []float64 `yaml:"gains"`
		Mute                bool      `yaml:"mute"`
		Clipper             bool      `yaml:"clipper"`
		BassMode            string    `yaml:"bass_mode"`
		Crossover           float64   `yaml:"crossover"`
		Subwoofers          []int     `yaml:"subwoofers"`
		SubMix              string    `yaml:"sub_mix"`
		Meter               bool      `yaml:"meter"`
		MeterPeriod         int       `yaml:"meter_period"`
		OSCPrefix           string    `yaml:"osc_prefix"`
		MeterAddress        string    `yaml:"meter_address"` // host:port, empty disables publishing
		MeterAddrHasChannel bool      `yaml:"meter_addr_has_channel"`
		MeterRate           float64   `yaml:"meter_rate"` // publications per second
	}

	// Record is the capture setup. Empty path disables recording.
	Record struct {
		Path     string `yaml:"path"`
		BitDepth int    `yaml:"bit_depth"`
		BitRate  int    `yaml:"bit_rate"` // mp3 only
		Quality  int    `yaml:"quality"`  // mp3 only
	}
)

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Audio: Audio{
			Enabled:    true,
			Backend:    BackendNull,
			SampleRate: 44100,
			BlockSize:  512,
			Outputs:    2,
			Device:     -1,
		},
		Graphics: Graphics{
			Enabled: true,
			FPS:     60,
			Width:   800,
			Height:  600,
			Title:   "allo",
		},
		Network: Network{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    9010,
		},
		Output: Output{
			MasterGain:  1,
			Clipper:     true,
			BassMode:    output.BassNone.String(),
			Crossover:   output.DefaultCrossover,
			SubMix:      output.SubMixAdditive.String(),
			Meter:       true,
			MeterPeriod: output.DefaultMeterPeriod,
			OSCPrefix:   output.DefaultPrefix,
			MeterRate:   10,
		},
		Record: Record{
			BitDepth: 16,
			BitRate:  192,
			Quality:  2,
		},
	}
}

// Load reads, parses and validates configuration file. Values missing in
// the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeRead, "failed to read config file").
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse decodes and validates configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, ErrCodeParse, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks all sections and returns the first invalid value.
func (c *Config) Validate() error {
	if err := c.Audio.validate(); err != nil {
		return err
	}
	if err := c.Graphics.validate(); err != nil {
		return err
	}
	if err := c.Network.validate(); err != nil {
		return err
	}
	return c.Output.validate(c.Audio.Outputs)
}

func (a Audio) validate() error {
	switch {
	case a.SampleRate <= 0:
		return errors.New(ErrCodeSampleRate, "sample rate must be positive").
			WithContext("sample_rate", a.SampleRate)
	case a.BlockSize <= 0:
		return errors.New(ErrCodeBlockSize, "block size must be positive").
			WithContext("block_size", a.BlockSize)
	case a.Outputs < 0 || a.Inputs < 0 || a.Outputs+a.Inputs == 0:
		return errors.New(ErrCodeChannels, "at least one channel is required").
			WithContext("outputs", a.Outputs).
			WithContext("inputs", a.Inputs)
	}
	switch a.Backend {
	case BackendNull, BackendPortaudio, BackendOto:
	default:
		return errors.New(ErrCodeBackend, "unknown audio backend").
			WithContext("backend", a.Backend)
	}
	return nil
}

func (g Graphics) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return errors.New(ErrCodeWindow, "window size must be positive").
			WithContext("width", g.Width).
			WithContext("height", g.Height)
	}
	if g.FPS <= 0 {
		return errors.New(ErrCodeFPS, "fps must be positive").
			WithContext("fps", g.FPS)
	}
	return nil
}

func (n Network) validate() error {
	if n.Port < 0 || n.Port > 65535 {
		return errors.New(ErrCodePort, "port must fit 16 bits").
			WithContext("port", n.Port)
	}
	return nil
}

func (o Output) validate(channels int) error {
	if o.MasterGain < 0 {
		return errors.New(ErrCodeGain, "master gain must not be negative").
			WithContext("master_gain", o.MasterGain)
	}
	if len(o.Gains) > channels {
		return errors.New(ErrCodeGain, "more gains than output channels").
			WithContext("gains", len(o.Gains)).
			WithContext("channels", channels)
	}
	for i, g := range o.Gains {
		if g < 0 {
			return errors.New(ErrCodeGain, "channel gain must not be negative").
				WithContext("channel", i).
				WithContext("gain", g)
		}
	}
	if _, err := output.ParseBassMode(o.BassMode); err != nil {
		return errors.Wrap(err, ErrCodeBassMode, "unknown bass management mode").
			WithContext("bass_mode", o.BassMode)
	}
	if _, err := output.ParseSubMix(o.SubMix); err != nil {
		return errors.Wrap(err, ErrCodeSubMix, "unknown sub mix").
			WithContext("sub_mix", o.SubMix)
	}
	if o.Crossover <= 0 {
		return errors.New(ErrCodeCrossover, "crossover frequency must be positive").
			WithContext("crossover", o.Crossover)
	}
	if len(o.Subwoofers) > output.MaxSubwoofers {
		return errors.New(ErrCodeTooManySubwoofer, "too many subwoofers").
			WithContext("subwoofers", len(o.Subwoofers))
	}
	for _, sub := range o.Subwoofers {
		if sub < 0 || sub >= channels {
			return errors.New(ErrCodeSubwoofer, "subwoofer channel out of range").
				WithContext("subwoofer", sub).
				WithContext("channels", channels)
		}
	}
	if o.MeterPeriod <= 0 {
		return errors.New(ErrCodeMeterPeriod, "meter period must be positive").
			WithContext("meter_period", o.MeterPeriod)
	}
	if o.MeterAddress != "" && o.MeterRate <= 0 {
		return errors.New(ErrCodePublish, "meter rate must be positive").
			WithContext("meter_rate", o.MeterRate)
	}
	return nil
}

// Code returns error code of configuration error or empty string. Wrapped
// errors are unwrapped until a coded one is found.
func Code(err error) string {
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return string(coder.ErrorCode())
	}
	return ""
}

// Stage returns output stage options of the section.
func (o Output) Stage() []output.Option {
	mode, _ := output.ParseBassMode(o.BassMode)
	mix, _ := output.ParseSubMix(o.SubMix)
	options := []output.Option{
		output.WithMasterGain(o.MasterGain),
		output.WithMute(o.Mute),
		output.WithClipper(o.Clipper),
		output.WithBassManagement(mode, o.Crossover, o.Subwoofers...),
		output.WithSubMix(mix),
		output.WithMeter(o.Meter, o.MeterPeriod),
		output.WithPrefix(o.OSCPrefix),
		output.WithMeterAddrHasChannel(o.MeterAddrHasChannel),
	}
	if len(o.Gains) > 0 {
		options = append(options, output.WithGains(o.Gains...))
	}
	return options
}
