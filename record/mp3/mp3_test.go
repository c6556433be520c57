//go:build lame

package mp3_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/internal/mock"
	"pipelined.dev/domain/record"
	"pipelined.dev/domain/record/mp3"
)

func TestMp3(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.mp3")
	dev := &mock.Device{}
	d := audio.New(dev)
	assert.Nil(t, d.Configure(44100, 512, 2, 0, audio.DefaultDevice))
	assert.Nil(t, d.Append(ctx, record.New(mp3.NewSink(path, 192, 2), 0)))
	d.OnSound(func(b *audio.Block) {
		for i := 0; i < b.Frames; i++ {
			b.Out[0][i], b.Out[1][i] = 0.25, -0.25
		}
	})
	assert.Nil(t, d.Initialize(ctx))
	assert.Nil(t, d.Start(ctx))
	for i := 0; i < 100; i++ {
		dev.Process()
	}
	assert.Nil(t, d.Stop(ctx))
	assert.Nil(t, d.Cleanup(ctx))

	info, err := os.Stat(path)
	assert.Nil(t, err)
	assert.NotZero(t, info.Size())
}
