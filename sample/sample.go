// Package sample plays preloaded wav clips inside the audio domain.
package sample

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

var (
	// ErrInvalidFile is returned when file is not a PCM wav file.
	ErrInvalidFile = errors.New("invalid wav file")
	// ErrSampleRate is returned when clip and stream sample rates differ.
	ErrSampleRate = errors.New("sample rate mismatch")
)

// Clip is a decoded non-interleaved sound. It's immutable after Load.
type Clip struct {
	SampleRate float64
	Channels   [][]float32
}

// Load decodes the whole wav file into memory.
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	numChannels := buf.Format.NumChannels
	if numChannels <= 0 || d.BitDepth == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	scale := float32(int64(1) << (d.BitDepth - 1))
	frames := len(buf.Data) / numChannels
	c := &Clip{
		SampleRate: float64(buf.Format.SampleRate),
		Channels:   make([][]float32, numChannels),
	}
	for ch := range c.Channels {
		c.Channels[ch] = make([]float32, frames)
		for i := range frames {
			c.Channels[ch][i] = float32(buf.Data[i*numChannels+ch]) / scale
		}
	}
	return c, nil
}

// Frames returns length of the clip in frames.
func (c *Clip) Frames() int {
	if len(c.Channels) == 0 {
		return 0
	}
	return len(c.Channels[0])
}
