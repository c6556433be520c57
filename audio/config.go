package audio

import (
	"errors"
	"fmt"
)

// DefaultDevice selects the default device of the backend.
const DefaultDevice = -1

var (
	// ErrNotConfigured is returned when domain is started before it's
	// configured.
	ErrNotConfigured = errors.New("audio domain is not configured")
	// ErrInvalidConfig is returned when configuration values are out of
	// range.
	ErrInvalidConfig = errors.New("invalid audio config")
	// ErrUnknownDevice is returned when device index doesn't exist.
	ErrUnknownDevice = errors.New("unknown audio device")
)

// Config defines the stream format.
type Config struct {
	SampleRate float64
	BlockSize  int
	Outputs    int
	Inputs     int
	Device     int
}

// Validate checks that stream can be opened with this config.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %v", ErrInvalidConfig, c.SampleRate)
	case c.BlockSize <= 0:
		return fmt.Errorf("%w: block size %d", ErrInvalidConfig, c.BlockSize)
	case c.Outputs < 0 || c.Inputs < 0:
		return fmt.Errorf("%w: channels %d/%d", ErrInvalidConfig, c.Outputs, c.Inputs)
	case c.Outputs == 0 && c.Inputs == 0:
		return fmt.Errorf("%w: no channels", ErrInvalidConfig)
	case c.Device < DefaultDevice:
		return fmt.Errorf("%w: device %d", ErrInvalidConfig, c.Device)
	}
	return nil
}

// BlockDuration returns duration of a single block in seconds.
func (c Config) BlockDuration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.BlockSize) / c.SampleRate
}

// IO selects which directions of the device are used.
type IO int

// IO presets.
const (
	OutOnly IO = iota
	InOnly
	InAndOut
)

func (io IO) String() string {
	switch io {
	case OutOnly:
		return "out only"
	case InOnly:
		return "in only"
	case InAndOut:
		return "in and out"
	}
	return "unknown"
}
