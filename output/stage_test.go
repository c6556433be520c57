package output_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/output"
	"pipelined.dev/domain/param"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	sampleRate = 48000
	blockSize  = 64
)

// processor feeds constant blocks into the stage and keeps the clock.
type processor struct {
	stage *output.Stage
	time  param.Time
}

func newStage(t *testing.T, channels int, options ...output.Option) *processor {
	t.Helper()
	s, err := output.New(channels, sampleRate, options...)
	assert.NoError(t, err)
	assert.NoError(t, s.Prepare(audio.Config{SampleRate: sampleRate, BlockSize: blockSize, Outputs: channels}))
	return &processor{stage: s}
}

// block processes a block where every channel has constant value.
func (p *processor) block(values ...float32) [][]float32 {
	out := make([][]float32, len(values))
	for c, v := range values {
		out[c] = make([]float32, blockSize)
		for i := range out[c] {
			out[c][i] = v
		}
	}
	return p.process(out)
}

func (p *processor) process(out [][]float32) [][]float32 {
	b := &audio.Block{
		Out:        out,
		Frames:     len(out[0]),
		Time:       p.time,
		SampleRate: sampleRate,
	}
	p.stage.Process(b)
	p.time = b.End()
	return out
}

func TestGain(t *testing.T) {
	p := newStage(t, 2)
	assert.NoError(t, p.stage.SetMasterGain(0.5))
	assert.NoError(t, p.stage.SetGain(1, 0.5))
	out := p.block(1, 1)
	assert.Equal(t, float32(0.5), out[0][0])
	assert.Equal(t, float32(0.25), out[1][blockSize-1])

	assert.ErrorIs(t, p.stage.SetGain(2, 1), output.ErrChannel)
	assert.ErrorIs(t, p.stage.SetGain(0, -1), output.ErrInvalidValue)
	assert.Equal(t, []float64{1, 0.5}, p.stage.Settings().Gains)
}

func TestMute(t *testing.T) {
	p := newStage(t, 2, output.WithGains(0.5, 0.8))
	assert.NoError(t, p.stage.SetMute(true))
	out := p.block(1, 1)
	assert.Equal(t, float32(0), out[0][0])
	assert.Equal(t, float32(0), out[1][0])
	// gains can change while muted.
	assert.NoError(t, p.stage.SetGain(0, 0.25))
	out = p.block(1, 1)
	assert.Equal(t, float32(0), out[0][0])

	assert.NoError(t, p.stage.SetMute(false))
	out = p.block(1, 1)
	assert.Equal(t, float32(0.25), out[0][0])
	assert.Equal(t, float32(0.8), out[1][0])
}

func TestClipper(t *testing.T) {
	p := newStage(t, 2, output.WithMasterGain(2))
	out := p.block(0.75, -0.75)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(-1), out[1][0])

	assert.NoError(t, p.stage.SetClipper(false))
	out = p.block(0.75, -0.75)
	assert.Equal(t, float32(1.5), out[0][0])
	assert.Equal(t, float32(-1.5), out[1][0])
}

func TestTimestamped(t *testing.T) {
	p := newStage(t, 1)
	// requested during block 0, due inside block 2.
	p.block(1)
	assert.NoError(t, p.stage.SetGainAt(2*blockSize+10, 0, 0.5))
	var firsts, lasts []float32
	for block := 1; block < 4; block++ {
		out := p.block(1)
		firsts = append(firsts, out[0][0])
		lasts = append(lasts, out[0][blockSize-1])
	}
	// block 2 is processed with the new gain from its first frame.
	assert.Equal(t, []float32{1, 0.5, 0.5}, firsts)
	assert.Equal(t, []float32{1, 0.5, 0.5}, lasts)
}

func TestMeter(t *testing.T) {
	p := newStage(t, 2, output.WithMeter(true, 4), output.WithClipper(false))
	values := make([]float32, 2)
	assert.False(t, p.stage.MaximumValues(values))
	assert.Equal(t, []float32{0, 0}, values)

	p.process([][]float32{
		{0.5, -0.25, 0.75, 0.1},
		{-0.5, -0.25, -0.75, -0.1},
	})
	assert.True(t, p.stage.MaximumValues(values))
	assert.Equal(t, []float32{0.75, -0.1}, values)
	assert.True(t, p.stage.MinimumValues(values))
	assert.Equal(t, []float32{-0.25, -0.75}, values)
	p.stage.CurrentValues(values)
	assert.Equal(t, []float32{0.75, 0.75}, values)

	// incomplete period doesn't publish.
	p.process([][]float32{{0.9, 0.9}, {0.9, 0.9}})
	assert.False(t, p.stage.MaximumValues(values))
	assert.Equal(t, []float32{0.75, -0.1}, values)
	v, err := p.stage.CurrentChannelValue(0)
	assert.NoError(t, err)
	assert.Equal(t, float32(0.75), v)
	_, err = p.stage.CurrentChannelValue(2)
	assert.ErrorIs(t, err, output.ErrChannel)

	// the rest of the period completes it.
	p.process([][]float32{{0.2, 0.3}, {0.2, 0.3}})
	assert.True(t, p.stage.MaximumValues(values))
	assert.Equal(t, []float32{0.9, 0.9}, values)

	// disabled meter doesn't publish.
	assert.NoError(t, p.stage.SetMeter(false))
	p.block(1, 1)
	assert.False(t, p.stage.MaximumValues(values))
}

func TestCurrentValuesOfSinglePeriod(t *testing.T) {
	p := newStage(t, 1, output.WithMeter(true, blockSize), output.WithClipper(false))
	// halves give periods with peaks 0.6 and 0.4, extrema of different
	// periods would give 0.1.
	half := func(hi, lo float32) [][]float32 {
		out := make([]float32, blockSize)
		for i := range out {
			if i < blockSize/2 {
				out[i] = hi
			} else {
				out[i] = lo
			}
		}
		return [][]float32{out}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				p.process(half(0.6, -0.1))
			} else {
				p.process(half(0.1, -0.4))
			}
		}
	}()
	values := make([]float32, 1)
	for {
		p.stage.CurrentValues(values)
		assert.Contains(t, []float32{0, 0.6, 0.4}, values[0])
		select {
		case <-done:
			return
		default:
		}
	}
}

func TestSubMixAt(t *testing.T) {
	p := newStage(t, 2)
	at := p.stage.NextBlock()
	assert.NoError(t, p.stage.SetSubMixAt(at, output.SubMixReplace))
	assert.Equal(t, output.SubMixReplace, p.stage.Settings().SubMix)
}

func TestMeterUpdateFreq(t *testing.T) {
	p := newStage(t, 1)
	assert.NoError(t, p.stage.SetMeterUpdateFreq(sampleRate/blockSize))
	assert.Equal(t, blockSize, p.stage.Settings().MeterPeriod)
	assert.ErrorIs(t, p.stage.SetMeterUpdateFreq(0), output.ErrInvalidValue)
	p.block(0.5)
	values := make([]float32, 1)
	assert.True(t, p.stage.MaximumValues(values))
}

func TestBassManagement(t *testing.T) {
	// two mains and a subwoofer on channel 2, DC input settles through
	// the crossover: low band of DC is DC, high band of DC is silence.
	tests := []struct {
		name     string
		mode     output.BassMode
		mix      output.SubMix
		expected []float32
	}{
		{name: "none", mode: output.BassNone, expected: []float32{1, 1, 0.5}},
		{name: "mix additive", mode: output.BassMix, expected: []float32{1, 1, 2.5}},
		{name: "mix replace", mode: output.BassMix, mix: output.SubMixReplace, expected: []float32{1, 1, 2}},
		{name: "lowpass", mode: output.BassLowpass, expected: []float32{1, 1, 2.5}},
		{name: "highpass", mode: output.BassHighpass, expected: []float32{0, 0, 0.5}},
		{name: "full", mode: output.BassFull, expected: []float32{0, 0, 2.5}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := newStage(t, 3,
				output.WithClipper(false),
				output.WithBassManagement(test.mode, 150, 2),
				output.WithSubMix(test.mix),
			)
			var out [][]float32
			for i := 0; i < sampleRate/blockSize; i++ {
				out = p.block(1, 1, 0.5)
			}
			for c, expected := range test.expected {
				assert.InDelta(t, expected, out[c][blockSize-1], 1e-3, "channel %d", c)
			}
		})
	}
}

func TestBassManagementValidation(t *testing.T) {
	_, err := output.New(2, sampleRate, output.WithBassManagement(output.BassMix, 150, 2))
	assert.ErrorIs(t, err, output.ErrChannel)
	_, err = output.New(8, sampleRate, output.WithBassManagement(output.BassMix, 150, 1, 2, 3, 4, 5))
	assert.ErrorIs(t, err, output.ErrTooManySubwoofers)
	_, err = output.New(2, sampleRate, output.WithBassManagement(output.BassMix, 0))
	assert.ErrorIs(t, err, output.ErrInvalidValue)

	p := newStage(t, 4)
	assert.NoError(t, p.stage.SetSubwoofers(3, -1))
	assert.Equal(t, []int{3}, p.stage.Settings().Subwoofers)
	assert.ErrorIs(t, p.stage.SetSubwoofers(4), output.ErrChannel)
	assert.ErrorIs(t, p.stage.SetBassManagementMode(output.BassMode(7)), output.ErrInvalidValue)

	mode, err := output.ParseBassMode("full")
	assert.NoError(t, err)
	assert.Equal(t, output.BassFull, mode)
	_, err = output.ParseBassMode("loud")
	assert.ErrorIs(t, err, output.ErrInvalidValue)
}

func TestPrepare(t *testing.T) {
	p := newStage(t, 2, output.WithGains(0.5, 0.5), output.WithBassManagement(output.BassMix, 100, 1))
	assert.NoError(t, p.stage.Prepare(audio.Config{SampleRate: 44100, BlockSize: 32, Outputs: 3}))
	assert.Equal(t, 3, p.stage.Channels())
	settings := p.stage.Settings()
	assert.Equal(t, []float64{0.5, 0.5, 1}, settings.Gains)
	assert.Equal(t, []int{1}, settings.Subwoofers)

	assert.NoError(t, p.stage.Prepare(audio.Config{SampleRate: 44100, BlockSize: 32, Outputs: 1}))
	settings = p.stage.Settings()
	assert.Equal(t, []float64{0.5}, settings.Gains)
	assert.Empty(t, settings.Subwoofers)
}

func TestHandleMessage(t *testing.T) {
	p := newStage(t, 4)
	p.block(1, 1, 1, 1)
	handle := func(addr string, args ...interface{}) (bool, error) {
		return p.stage.HandleMessage(osc.NewMessage(addr, args...))
	}
	tests := []struct {
		addr string
		args []interface{}
	}{
		{"/Alloaudio/gain", []interface{}{int32(1), float32(0.5)}},
		{"/Alloaudio/global_gain", []interface{}{float32(0.75)}},
		{"/Alloaudio/mute_all", []interface{}{int32(1)}},
		{"/Alloaudio/clipper_on", []interface{}{int32(0)}},
		{"/Alloaudio/meter_on", []interface{}{false}},
		{"/Alloaudio/meter_update_freq", []interface{}{float32(10)}},
		{"/Alloaudio/bass_management_freq", []interface{}{float32(80)}},
		{"/Alloaudio/bass_management_mode", []interface{}{int32(4)}},
		{"/Alloaudio/sw_indeces", []interface{}{int32(3), int32(-1), int32(-1), int32(-1)}},
	}
	for _, test := range tests {
		handled, err := handle(test.addr, test.args...)
		assert.True(t, handled, test.addr)
		assert.NoError(t, err, test.addr)
	}
	settings := p.stage.Settings()
	assert.Equal(t, []float64{1, 0.5, 1, 1}, settings.Gains)
	assert.Equal(t, 0.75, settings.MasterGain)
	assert.True(t, settings.Mute)
	assert.False(t, settings.Clipper)
	assert.False(t, settings.Meter)
	assert.Equal(t, sampleRate/10, settings.MeterPeriod)
	assert.Equal(t, 80.0, settings.Crossover)
	assert.Equal(t, output.BassFull, settings.BassMode)
	assert.Equal(t, []int{3}, settings.Subwoofers)

	handled, err := handle("/other/gain", int32(0), float32(1))
	assert.False(t, handled)
	assert.NoError(t, err)
	handled, err = handle("/Alloaudio/unknown")
	assert.False(t, handled)
	assert.NoError(t, err)
	handled, err = handle("/Alloaudio/gain", "one", float32(1))
	assert.True(t, handled)
	assert.ErrorIs(t, err, output.ErrInvalidValue)

	// changes take effect one block after the next one.
	out := p.block(1, 1, 1, 1)
	assert.Equal(t, float32(1), out[1][0])
	out = p.block(1, 1, 1, 1)
	assert.Equal(t, float32(0), out[1][0])
}

func TestMeterMessages(t *testing.T) {
	p := newStage(t, 2, output.WithMeter(true, blockSize), output.WithPrefix("/out"))
	p.block(0.5, 0)
	msgs := p.stage.MeterMessages()
	assert.Len(t, msgs, 1)
	assert.Equal(t, "/out/meterdb", msgs[0].Address)
	assert.InDelta(t, -6.02, msgs[0].Arguments[0], 0.01)
	assert.Equal(t, float32(output.MinDB), msgs[0].Arguments[1])

	p.stage.SetMeterAddrHasChannel(true)
	msgs = p.stage.MeterMessages()
	assert.Len(t, msgs, 2)
	assert.Equal(t, "/out/meterdb/1", msgs[0].Address)
	assert.Equal(t, "/out/meterdb/2", msgs[1].Address)
}

type sender struct {
	mu   sync.Mutex
	msgs []string
	sent chan struct{}
}

func (s *sender) Send(p osc.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, p.(*osc.Message).Address)
	select {
	case s.sent <- struct{}{}:
	default:
	}
	return nil
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()
	p := newStage(t, 2)
	s := &sender{sent: make(chan struct{}, 1)}
	pub := output.NewPublisher(p.stage, s, time.Millisecond)
	assert.NoError(t, pub.Initialize(ctx))
	assert.NoError(t, pub.Start(ctx))
	select {
	case <-s.sent:
	case <-time.After(time.Second):
		t.Fatal("meters are not published")
	}
	assert.NoError(t, pub.Stop(ctx))
	assert.NoError(t, pub.Cleanup(ctx))
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Contains(t, s.msgs, "/Alloaudio/meterdb")
}
