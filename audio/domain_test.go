package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"pipelined.dev/domain"
	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/internal/mock"
	"pipelined.dev/domain/param"
)

var errTest = errors.New("test error")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func running(t *testing.T, dev *mock.Device) *audio.Domain {
	t.Helper()
	d := audio.New(dev)
	assert.NoError(t, d.Configure(48000, 4, 2, 1, audio.DefaultDevice))
	assert.NoError(t, d.Initialize(context.Background()))
	assert.NoError(t, d.Start(context.Background()))
	return d
}

func TestConfigure(t *testing.T) {
	dev := &mock.Device{Infos: []audio.DeviceInfo{
		{Index: 0, Name: "first", MaxOutputs: 2, MaxInputs: 2, DefaultSampleRate: 44100},
		{Index: 1, Name: "second", MaxOutputs: 8, MaxInputs: 0, DefaultSampleRate: 96000},
	}}
	tests := []struct {
		name       string
		sampleRate float64
		blockSize  int
		outputs    int
		inputs     int
		device     int
		err        error
	}{
		{name: "ok", sampleRate: 44100, blockSize: 256, outputs: 2, inputs: 1, device: 0},
		{name: "default device", sampleRate: 44100, blockSize: 256, outputs: 2, device: audio.DefaultDevice},
		{name: "zero sample rate", blockSize: 256, outputs: 2, err: audio.ErrInvalidConfig},
		{name: "zero block size", sampleRate: 44100, outputs: 2, err: audio.ErrInvalidConfig},
		{name: "no channels", sampleRate: 44100, blockSize: 256, err: audio.ErrInvalidConfig},
		{name: "too many outputs", sampleRate: 44100, blockSize: 256, outputs: 4, device: 0, err: audio.ErrInvalidConfig},
		{name: "unknown device", sampleRate: 44100, blockSize: 256, outputs: 2, device: 5, err: audio.ErrUnknownDevice},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d := audio.New(dev)
			err := d.Configure(test.sampleRate, test.blockSize, test.outputs, test.inputs, test.device)
			assert.ErrorIs(t, err, test.err)
			if test.err == nil {
				cfg := d.Config()
				assert.Equal(t, test.sampleRate, cfg.SampleRate)
				assert.Equal(t, test.blockSize, cfg.BlockSize)
				assert.Equal(t, test.outputs, cfg.Outputs)
				assert.Equal(t, test.inputs, cfg.Inputs)
			}
		})
	}

	t.Run("device change resets channels", func(t *testing.T) {
		d := audio.New(dev)
		assert.NoError(t, d.Configure(44100, 256, 1, 1, 0))
		assert.NoError(t, d.SetDevice(1))
		cfg := d.Config()
		assert.Equal(t, 8, cfg.Outputs)
		assert.Equal(t, 0, cfg.Inputs)
		assert.Equal(t, 1, cfg.Device)
	})
	t.Run("io presets", func(t *testing.T) {
		d := audio.New(dev)
		assert.NoError(t, d.ConfigureIO(audio.InAndOut))
		cfg := d.Config()
		assert.Equal(t, 44100.0, cfg.SampleRate)
		assert.Equal(t, 2, cfg.Outputs)
		assert.Equal(t, 2, cfg.Inputs)
		assert.NoError(t, d.ConfigureIO(audio.OutOnly))
		assert.Equal(t, 0, d.Config().Inputs)
	})
}

func TestStartNotConfigured(t *testing.T) {
	ctx := context.Background()
	d := audio.New(&mock.Device{})
	assert.NoError(t, d.Initialize(ctx))
	assert.ErrorIs(t, d.Start(ctx), audio.ErrNotConfigured)
	assert.Equal(t, domain.Initialized, d.State())
	assert.NoError(t, d.Cleanup(ctx))
}

func TestStartFailure(t *testing.T) {
	ctx := context.Background()
	t.Run("open", func(t *testing.T) {
		dev := &mock.Device{ErrorOnOpen: errTest}
		d := audio.New(dev)
		assert.NoError(t, d.Configure(44100, 64, 2, 0, audio.DefaultDevice))
		assert.NoError(t, d.Initialize(ctx))
		assert.ErrorIs(t, d.Start(ctx), errTest)
		assert.Equal(t, 0, dev.Closed)
		assert.Equal(t, domain.Initialized, d.State())
	})
	t.Run("start closes device", func(t *testing.T) {
		log := &mock.Log{}
		dev := &mock.Device{ErrorOnStart: errTest, Log: log}
		d := audio.New(dev)
		assert.NoError(t, d.Configure(44100, 64, 2, 0, audio.DefaultDevice))
		assert.NoError(t, d.Initialize(ctx))
		assert.ErrorIs(t, d.Start(ctx), errTest)
		assert.Equal(t, []string{"device.open", "device.start", "device.close"}, log.Entries())
	})
}

func TestStopAttemptsBoth(t *testing.T) {
	ctx := context.Background()
	errClose := errors.New("close error")
	dev := &mock.Device{ErrorOnStop: errTest, ErrorOnClose: errClose}
	d := running(t, dev)
	err := d.Stop(ctx)
	assert.ErrorIs(t, err, errTest)
	assert.ErrorIs(t, err, errClose)
	assert.Equal(t, 1, dev.Stopped)
	assert.Equal(t, 1, dev.Closed)
	assert.Equal(t, domain.Stopped, d.State())
	assert.NoError(t, d.Cleanup(ctx))
}

func TestCallbackOrder(t *testing.T) {
	ctx := context.Background()
	log := &mock.Log{}
	dev := &mock.Device{}
	d := audio.New(dev)
	assert.NoError(t, d.Configure(48000, 4, 2, 1, audio.DefaultDevice))
	assert.NoError(t, d.AddSubdomain(ctx, mock.NewSynchronous("post", log), domain.Post))
	pre := mock.NewSynchronous("pre", log)
	assert.NoError(t, d.AddSubdomain(ctx, pre, domain.Pre))
	d.OnSound(func(b *audio.Block) {
		log.Add("sound")
		for c := range b.Out {
			for i := range b.Out[c] {
				b.Out[c][i] = b.In[0][i]
			}
		}
	})
	assert.NoError(t, d.Append(ctx, audio.ProcessorFunc(func(b *audio.Block) {
		log.Add("processor")
		for i := range b.Out[1] {
			b.Out[1][i] *= 2
		}
	})))
	assert.NoError(t, d.Initialize(ctx))
	assert.NoError(t, d.Start(ctx))
	log.Reset()

	out, ok := dev.Process([]float32{1, 2, 3, 4})
	assert.True(t, ok)
	assert.Equal(t, []string{"pre.tick", "sound", "processor", "post.tick"}, log.Entries())
	assert.Equal(t, [][]float32{{1, 2, 3, 4}, {2, 4, 6, 8}}, out)
	assert.Equal(t, []float64{4.0 / 48000}, pre.Elapsed())
	assert.Equal(t, param.Time(4), d.Now())

	// output is silent without sound hook.
	d.OnSound(nil)
	out, _ = dev.Process([]float32{1, 2, 3, 4})
	assert.Equal(t, [][]float32{{0, 0, 0, 0}, {0, 0, 0, 0}}, out)

	assert.NoError(t, d.Stop(ctx))
	_, ok = dev.Process()
	assert.False(t, ok)
	assert.NoError(t, d.Cleanup(ctx))
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	dev := &mock.Device{}
	d := running(t, dev)
	value := float32(1)
	d.OnSound(func(b *audio.Block) {
		for i := range b.Out[0] {
			b.Out[0][i] = value
		}
	})
	// block size is 4, time 9 falls into the third block.
	assert.NoError(t, d.Schedule(9, func() { value = 2 }))
	var firsts []float32
	for i := 0; i < 4; i++ {
		out, _ := dev.Process()
		firsts = append(firsts, out[0][0])
	}
	assert.Equal(t, []float32{1, 1, 2, 2}, firsts)
	assert.NoError(t, d.Stop(ctx))
	assert.NoError(t, d.Cleanup(ctx))
}

func TestSubdomainFailure(t *testing.T) {
	ctx := context.Background()
	dev := &mock.Device{}
	d := running(t, dev)
	failing := mock.NewSynchronous("failing", nil)
	failing.ErrorOnTick = errTest
	assert.NoError(t, d.AddSubdomain(ctx, failing, domain.Pre))
	dev.Process()
	dev.Process()
	assert.ErrorIs(t, d.LastError(), errTest)
	assert.Equal(t, uint64(2), d.Failures())
	assert.NoError(t, d.Stop(ctx))
	assert.NoError(t, d.Cleanup(ctx))
}

type lifecycleProcessor struct {
	*mock.Synchronous
	prepared audio.Config
}

func (p *lifecycleProcessor) Process(*audio.Block) {}

func (p *lifecycleProcessor) Prepare(cfg audio.Config) error {
	p.prepared = cfg
	return nil
}

func TestProcessorLifecycle(t *testing.T) {
	ctx := context.Background()
	log := &mock.Log{}
	p := &lifecycleProcessor{Synchronous: mock.NewSynchronous("processor", log)}
	d := audio.New(&mock.Device{})
	assert.NoError(t, d.Configure(48000, 4, 2, 0, audio.DefaultDevice))
	assert.NoError(t, d.Append(ctx, p))
	assert.NoError(t, d.Initialize(ctx))
	assert.NoError(t, d.Start(ctx))
	assert.Equal(t, 48000.0, p.prepared.SampleRate)
	assert.NoError(t, d.Stop(ctx))
	assert.NoError(t, d.Cleanup(ctx))
	assert.Equal(t, []string{"processor.initialize", "processor.cleanup"}, log.Entries())
}

func TestNullDevice(t *testing.T) {
	ctx := context.Background()
	d := audio.New(nil)
	assert.NoError(t, d.Configure(44100, 64, 2, 0, audio.DefaultDevice))
	blocks := make(chan struct{}, 1)
	d.OnSound(func(*audio.Block) {
		select {
		case blocks <- struct{}{}:
		default:
		}
	})
	var started bool
	d.Listen(domain.StartEvent, func(domain.Domain) { started = true })
	assert.NoError(t, d.Initialize(ctx))
	assert.NoError(t, d.Start(ctx))
	assert.True(t, started)
	select {
	case <-blocks:
	case <-time.After(time.Second):
		t.Fatal("no blocks processed")
	}
	assert.NoError(t, d.Stop(ctx))
	assert.NoError(t, d.Cleanup(ctx))
	assert.Greater(t, uint64(d.Now()), uint64(0))
}
