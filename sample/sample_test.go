package sample_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aud "pipelined.dev/domain/audio"
	"pipelined.dev/domain/sample"
)

// clip writes 16 bit stereo wav with 6 frames: left counts up in steps of
// 0.125, right is the negated left.
func clip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	e := wav.NewEncoder(f, 8000, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		SourceBitDepth: 16,
	}
	for i := range 6 {
		v := i * 4096
		buf.Data = append(buf.Data, v, -v)
	}
	require.NoError(t, e.Write(buf))
	require.NoError(t, e.Close())
	require.NoError(t, f.Close())
	return path
}

func block(frames int) *aud.Block {
	return &aud.Block{
		Out:        [][]float32{make([]float32, frames), make([]float32, frames)},
		Frames:     frames,
		SampleRate: 8000,
	}
}

func TestLoad(t *testing.T) {
	c, err := sample.Load(clip(t))
	require.NoError(t, err)
	assert.Equal(t, 8000.0, c.SampleRate)
	assert.Equal(t, 6, c.Frames())
	assert.Equal(t, []float32{0, 0.125, 0.25, 0.375, 0.5, 0.625}, c.Channels[0])
	assert.Equal(t, float32(-0.25), c.Channels[1][2])

	empty := filepath.Join(t.TempDir(), "empty.wav")
	require.NoError(t, os.WriteFile(empty, []byte("not a wav"), 0o644))
	_, err = sample.Load(empty)
	assert.ErrorIs(t, err, sample.ErrInvalidFile)
}

func TestPlayer(t *testing.T) {
	c, err := sample.Load(clip(t))
	require.NoError(t, err)
	p := sample.NewPlayer(c, false)
	assert.ErrorIs(t, p.Prepare(aud.Config{SampleRate: 44100}), sample.ErrSampleRate)
	assert.Nil(t, p.Prepare(aud.Config{SampleRate: 8000}))

	b := block(4)
	p.Process(b)
	assert.False(t, p.Playing())
	assert.Equal(t, []float32{0, 0, 0, 0}, b.Out[0])

	p.Play()
	p.SetGain(2)
	p.Process(b)
	assert.True(t, p.Playing())
	assert.Equal(t, []float32{0, 0.25, 0.5, 0.75}, b.Out[0])
	assert.Equal(t, []float32{0, -0.25, -0.5, -0.75}, b.Out[1])

	b = block(4)
	p.Process(b)
	assert.Equal(t, []float32{1, 1.25, 0, 0}, b.Out[0])

	p.Process(block(4))
	assert.False(t, p.Playing())
}

func TestLoop(t *testing.T) {
	c, err := sample.Load(clip(t))
	require.NoError(t, err)
	p := sample.NewPlayer(c, true)
	p.Play()
	b := block(8)
	p.Process(b)
	assert.Equal(t, []float32{0, 0.125, 0.25, 0.375, 0.5, 0.625, 0, 0.125}, b.Out[0])

	p.Stop()
	b = block(4)
	p.Process(b)
	assert.False(t, p.Playing())
	assert.Equal(t, []float32{0, 0, 0, 0}, b.Out[0])
}

func TestMonoClip(t *testing.T) {
	c := &sample.Clip{SampleRate: 8000, Channels: [][]float32{{0.5, 0.5}}}
	p := sample.NewPlayer(c, false)
	p.Play()
	b := block(2)
	p.Process(b)
	assert.Equal(t, b.Out[0], b.Out[1])
	assert.Equal(t, []float32{0.5, 0.5}, b.Out[1])
}
