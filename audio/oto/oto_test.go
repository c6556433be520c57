//go:build oto

package oto_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/audio/oto"
)

func TestPlayback(t *testing.T) {
	ctx := context.Background()
	d := audio.New(&oto.Device{})
	assert.Nil(t, d.Configure(48000, 512, 2, 0, audio.DefaultDevice))

	phase := 0.0
	d.OnSound(func(b *audio.Block) {
		for i := 0; i < b.Frames; i++ {
			v := float32(0.1 * math.Sin(phase))
			phase += 2 * math.Pi * 440 / b.SampleRate
			for c := range b.Out {
				b.Out[c][i] = v
			}
		}
	})
	assert.Nil(t, d.Initialize(ctx))
	assert.Nil(t, d.Start(ctx))
	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, d.Stop(ctx))
	assert.Nil(t, d.Cleanup(ctx))
	assert.NotZero(t, d.Now())
}
