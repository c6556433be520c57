//go:build portaudio

package portaudio_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/audio/portaudio"
)

func TestDevices(t *testing.T) {
	devices, err := (&portaudio.Device{}).Devices()
	assert.Nil(t, err)
	assert.NotEmpty(t, devices)
}

func TestPlayback(t *testing.T) {
	ctx := context.Background()
	d := audio.New(&portaudio.Device{})
	err := d.ConfigureIO(audio.OutOnly)
	assert.Nil(t, err)

	blocks := 0
	d.OnSound(func(b *audio.Block) {
		blocks++
	})
	assert.Nil(t, d.Initialize(ctx))
	assert.Nil(t, d.Start(ctx))
	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, d.Stop(ctx))
	assert.Nil(t, d.Cleanup(ctx))
	assert.NotZero(t, blocks)
}
