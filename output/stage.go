// Package output provides the Output Stage: the last processor of the
// audio domain. It applies channel and master gains, mute, clipping and
// bass management, and meters the resulting signal.
//
// Setters are called from control goroutines. Every change is scheduled
// at a sample time and applied by the real-time goroutine at the block
// boundary, so a block is always processed with a consistent set of
// parameters. Meter values are published through double buffers.
package output

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/domain/audio"
	"pipelined.dev/domain/doublebuffer"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/param"
)

// MaxSubwoofers is the number of subwoofer channels supported by bass
// management.
const MaxSubwoofers = 4

var (
	// ErrChannel is returned when channel index is out of range.
	ErrChannel = errors.New("channel index out of range")
	// ErrTooManySubwoofers is returned when more than MaxSubwoofers are set.
	ErrTooManySubwoofers = errors.New("too many subwoofers")
	// ErrInvalidValue is returned when parameter value is out of range.
	ErrInvalidValue = errors.New("invalid parameter value")
)

// BassMode defines how low frequencies are redirected.
type BassMode int

// Bass management modes.
const (
	// BassNone bypasses bass management.
	BassNone BassMode = iota
	// BassMix adds low band of main channels to subwoofers. Main channels
	// keep the full band.
	BassMix
	// BassLowpass makes subwoofers carry only low band: their own low band
	// and the low band of main channels.
	BassLowpass
	// BassHighpass makes main channels carry only high band.
	BassHighpass
	// BassFull combines BassLowpass and BassHighpass.
	BassFull
	numBassModes
)

func (m BassMode) String() string {
	switch m {
	case BassNone:
		return "none"
	case BassMix:
		return "mix"
	case BassLowpass:
		return "lowpass"
	case BassHighpass:
		return "highpass"
	case BassFull:
		return "full"
	}
	return "unknown"
}

// ParseBassMode returns mode by its name.
func ParseBassMode(s string) (BassMode, error) {
	for m := BassNone; m < numBassModes; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return BassNone, fmt.Errorf("%w: bass mode %q", ErrInvalidValue, s)
}

// SubMix defines how low band is routed into subwoofers in BassMix mode.
type SubMix int

const (
	// SubMixAdditive adds low band to the subwoofer signal.
	SubMixAdditive SubMix = iota
	// SubMixReplace replaces subwoofer signal with low band.
	SubMixReplace
)

func (m SubMix) String() string {
	switch m {
	case SubMixAdditive:
		return "additive"
	case SubMixReplace:
		return "replace"
	}
	return "unknown"
}

// ParseSubMix returns sub mix policy by its name.
func ParseSubMix(s string) (SubMix, error) {
	switch s {
	case "additive", "":
		return SubMixAdditive, nil
	case "replace":
		return SubMixReplace, nil
	}
	return SubMixAdditive, fmt.Errorf("%w: sub mix %q", ErrInvalidValue, s)
}

// Settings is a snapshot of stage parameters.
type Settings struct {
	Gains       []float64
	MasterGain  float64
	Mute        bool
	Clipper     bool
	BassMode    BassMode
	Crossover   float64
	Subwoofers  []int
	SubMix      SubMix
	Meter       bool
	MeterPeriod int
}

func (s Settings) clone() Settings {
	s.Gains = append([]float64(nil), s.Gains...)
	s.Subwoofers = append([]int(nil), s.Subwoofers...)
	return s
}

// state is owned by the real-time goroutine.
type state struct {
	channels   int
	sampleRate float64
	gains      []float64
	master     float64
	mute       bool
	clipper    bool
	mode       BassMode
	freq       float64
	subs       [MaxSubwoofers]int
	numSubs    int
	subMix     SubMix
	meter      bool
	period     int

	filters  []crossover
	lowSum   []float64
	meterMax  []float32
	meterMin  []float32
	meterPeak []float32
	counted  int
}

// Stage is the output stage processor. It implements audio.Processor and
// audio.Preparer.
type Stage struct {
	id  string
	log *logrus.Entry

	// control side.
	mu                  sync.Mutex
	settings            Settings
	channels            int
	sampleRate          float64
	prefix              string
	meterAddrHasChannel bool

	params *param.Queue
	next   atomic.Uint64
	frames atomic.Int64

	rt state

	maxBuf *doublebuffer.Buffer[float32]
	minBuf *doublebuffer.Buffer[float32]

	// peakBuf holds max(|max|, |min|) of one period, so a reader never
	// pairs extrema of different periods.
	peakBuf *doublebuffer.Buffer[float32]
}

// Option configures stage at creation.
type Option func(*Stage) error

// New returns output stage for provided number of channels and sample
// rate. Stream format is updated when stage is prepared by audio domain.
func New(channels int, sampleRate float64, options ...Option) (*Stage, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidValue, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidValue, sampleRate)
	}
	s := &Stage{
		id:         xid.New().String(),
		channels:   channels,
		sampleRate: sampleRate,
		prefix:     DefaultPrefix,
		params:     param.NewQueue(param.DefaultCapacity),
		maxBuf:     doublebuffer.New[float32](channels),
		minBuf:     doublebuffer.New[float32](channels),
		peakBuf:    doublebuffer.New[float32](channels),
		settings: Settings{
			MasterGain:  1,
			Clipper:     true,
			Crossover:   DefaultCrossover,
			Meter:       true,
			MeterPeriod: DefaultMeterPeriod,
		},
	}
	s.log = log.ForDomain("output", s.id)
	s.settings.Gains = unity(channels)
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	s.reset(audio.Config{SampleRate: sampleRate, Outputs: channels, BlockSize: 0})
	return s, nil
}

const (
	// DefaultCrossover is the default bass management frequency in Hz.
	DefaultCrossover = 150
	// DefaultMeterPeriod is the default meter update period in samples.
	DefaultMeterPeriod = 1024

	// block size used before the stage is prepared for a stream.
	maxBlockSize = 4096
)

// WithMasterGain sets initial master gain.
func WithMasterGain(g float64) Option {
	return func(s *Stage) error {
		if err := validGain(g); err != nil {
			return err
		}
		s.settings.MasterGain = g
		return nil
	}
}

// WithGains sets initial gains of the first channels.
func WithGains(gains ...float64) Option {
	return func(s *Stage) error {
		if len(gains) > s.channels {
			return fmt.Errorf("%w: %d gains for %d channels", ErrChannel, len(gains), s.channels)
		}
		for i, g := range gains {
			if err := validGain(g); err != nil {
				return err
			}
			s.settings.Gains[i] = g
		}
		return nil
	}
}

// WithMute sets initial mute.
func WithMute(mute bool) Option {
	return func(s *Stage) error {
		s.settings.Mute = mute
		return nil
	}
}

// WithClipper enables or disables clipper.
func WithClipper(on bool) Option {
	return func(s *Stage) error {
		s.settings.Clipper = on
		return nil
	}
}

// WithBassManagement sets bass mode, crossover frequency and subwoofer
// channels.
func WithBassManagement(mode BassMode, freq float64, subwoofers ...int) Option {
	return func(s *Stage) error {
		if mode < BassNone || mode >= numBassModes {
			return fmt.Errorf("%w: bass mode %d", ErrInvalidValue, mode)
		}
		if err := validFreq(freq); err != nil {
			return err
		}
		if err := s.validSubwoofers(subwoofers); err != nil {
			return err
		}
		s.settings.BassMode = mode
		s.settings.Crossover = freq
		s.settings.Subwoofers = append([]int(nil), subwoofers...)
		return nil
	}
}

// WithSubMix sets sub mix policy of BassMix mode.
func WithSubMix(mix SubMix) Option {
	return func(s *Stage) error {
		s.settings.SubMix = mix
		return nil
	}
}

// WithMeter enables metering with provided update period in samples.
func WithMeter(on bool, period int) Option {
	return func(s *Stage) error {
		if period <= 0 {
			return fmt.Errorf("%w: meter period %d", ErrInvalidValue, period)
		}
		s.settings.Meter = on
		s.settings.MeterPeriod = period
		return nil
	}
}

// WithPrefix sets prefix of OSC addresses.
func WithPrefix(prefix string) Option {
	return func(s *Stage) error {
		s.prefix = prefix
		return nil
	}
}

// WithMeterAddrHasChannel makes meter publisher send each channel to its
// own address.
func WithMeterAddrHasChannel(on bool) Option {
	return func(s *Stage) error {
		s.meterAddrHasChannel = on
		return nil
	}
}

// Prepare implements audio.Preparer. It resizes the stage for the stream
// format and resets filters and meters. Settings are kept, gains of new
// channels are unity.
func (s *Stage) Prepare(cfg audio.Config) error {
	if cfg.Outputs <= 0 {
		return fmt.Errorf("%w: %d channels", ErrInvalidValue, cfg.Outputs)
	}
	s.mu.Lock()
	if cfg.Outputs != s.channels {
		gains := unity(cfg.Outputs)
		copy(gains, s.settings.Gains)
		s.settings.Gains = gains
		subs := s.settings.Subwoofers[:0:0]
		for _, sw := range s.settings.Subwoofers {
			if sw < cfg.Outputs {
				subs = append(subs, sw)
			}
		}
		s.settings.Subwoofers = subs
	}
	s.channels = cfg.Outputs
	s.sampleRate = cfg.SampleRate
	s.mu.Unlock()
	s.reset(cfg)
	s.log.WithFields(logrus.Fields{
		"channels":    cfg.Outputs,
		"sample_rate": cfg.SampleRate,
		"block_size":  cfg.BlockSize,
	}).Debug("prepared")
	return nil
}

// reset builds real-time state from settings. Must not be called
// concurrently with Process.
func (s *Stage) reset(cfg audio.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.settings
	rt := &s.rt
	rt.channels = s.channels
	rt.sampleRate = cfg.SampleRate
	rt.gains = append(rt.gains[:0], st.Gains...)
	rt.master = st.MasterGain
	rt.mute = st.Mute
	rt.clipper = st.Clipper
	rt.mode = st.BassMode
	rt.freq = st.Crossover
	rt.setSubwoofers(st.Subwoofers)
	rt.subMix = st.SubMix
	rt.meter = st.Meter
	rt.period = st.MeterPeriod
	rt.filters = make([]crossover, s.channels)
	for i := range rt.filters {
		rt.filters[i].tune(rt.freq, rt.sampleRate)
	}
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = maxBlockSize
	}
	rt.lowSum = make([]float64, blockSize)
	rt.meterMax = make([]float32, s.channels)
	rt.meterMin = make([]float32, s.channels)
	rt.meterPeak = make([]float32, s.channels)
	rt.resetMeter()
	s.maxBuf.SetSize(s.channels)
	s.minBuf.SetSize(s.channels)
	s.peakBuf.SetSize(s.channels)
}

// Process implements audio.Processor.
func (s *Stage) Process(b *audio.Block) {
	s.params.Apply(b.Time, b.Frames)
	s.next.Store(uint64(b.End()))
	s.frames.Store(int64(b.Frames))

	rt := &s.rt
	out := b.Out
	if len(out) > rt.channels {
		out = out[:rt.channels]
	}
	frames := b.Frames
	if rt.mode != BassNone && rt.numSubs > 0 && len(rt.lowSum) >= frames {
		rt.manageBass(out, frames)
	}
	for c := range out {
		g := rt.gains[c] * rt.master
		if rt.mute {
			g = 0
		}
		samples := out[c][:frames]
		for i, v := range samples {
			v *= float32(g)
			if rt.clipper {
				if v > 1 {
					v = 1
				} else if v < -1 {
					v = -1
				}
			}
			samples[i] = v
		}
	}
	if rt.meter {
		s.measure(out, frames)
	}
}

func (rt *state) manageBass(out [][]float32, frames int) {
	low := rt.lowSum[:frames]
	for i := range low {
		low[i] = 0
	}
	routeLow := rt.mode != BassHighpass
	cutLow := rt.mode == BassHighpass || rt.mode == BassFull
	for c := range out {
		if rt.isSubwoofer(c) {
			continue
		}
		f := &rt.filters[c]
		samples := out[c][:frames]
		for i, v := range samples {
			x := float64(v)
			if routeLow {
				low[i] += f.low(x)
			}
			if cutLow {
				samples[i] = float32(f.high(x))
			}
		}
	}
	if !routeLow {
		return
	}
	for k := 0; k < rt.numSubs; k++ {
		c := rt.subs[k]
		if c >= len(out) {
			continue
		}
		f := &rt.filters[c]
		samples := out[c][:frames]
		for i, v := range samples {
			switch {
			case rt.mode == BassLowpass || rt.mode == BassFull:
				samples[i] = float32(f.low(float64(v)) + low[i])
			case rt.subMix == SubMixReplace:
				samples[i] = float32(low[i])
			default:
				samples[i] = v + float32(low[i])
			}
		}
	}
}

func (rt *state) isSubwoofer(c int) bool {
	for k := 0; k < rt.numSubs; k++ {
		if rt.subs[k] == c {
			return true
		}
	}
	return false
}

func (rt *state) setSubwoofers(subs []int) {
	rt.numSubs = 0
	for _, sw := range subs {
		if rt.numSubs == MaxSubwoofers {
			break
		}
		if sw >= 0 {
			rt.subs[rt.numSubs] = sw
			rt.numSubs++
		}
	}
}

func (rt *state) resetFilters() {
	for i := range rt.filters {
		rt.filters[i].reset()
	}
}

// Now returns sample time of the next block the stage will process.
func (s *Stage) Now() param.Time {
	return param.Time(s.next.Load())
}

// NextBlock returns time one block after the next block start. Control
// messages are scheduled at this time.
func (s *Stage) NextBlock() param.Time {
	return s.Now().Add(int(s.frames.Load()))
}

// Channels returns number of processed channels.
func (s *Stage) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels
}

// Settings returns requested parameters. Changes scheduled for the future
// are included.
func (s *Stage) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.clone()
}

// Prefix returns prefix of OSC addresses.
func (s *Stage) Prefix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefix
}

// SetPrefix sets prefix of OSC addresses.
func (s *Stage) SetPrefix(prefix string) {
	s.mu.Lock()
	s.prefix = prefix
	s.mu.Unlock()
}

// MeterAddrHasChannel returns true if meters are published per channel.
func (s *Stage) MeterAddrHasChannel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meterAddrHasChannel
}

// SetMeterAddrHasChannel sets meter address format.
func (s *Stage) SetMeterAddrHasChannel(on bool) {
	s.mu.Lock()
	s.meterAddrHasChannel = on
	s.mu.Unlock()
}

// SetGain sets gain of the channel starting from the next block.
func (s *Stage) SetGain(channel int, g float64) error {
	return s.SetGainAt(s.Now(), channel, g)
}

// SetGainAt sets gain of the channel at provided time.
func (s *Stage) SetGainAt(at param.Time, channel int, g float64) error {
	if err := validGain(g); err != nil {
		return err
	}
	return s.schedule(at, func(st *Settings) error {
		if channel < 0 || channel >= len(st.Gains) {
			return fmt.Errorf("%w: %d", ErrChannel, channel)
		}
		st.Gains[channel] = g
		return nil
	}, func(rt *state) {
		if channel < len(rt.gains) {
			rt.gains[channel] = g
		}
	})
}

// SetMasterGain sets gain applied after channel gains.
func (s *Stage) SetMasterGain(g float64) error {
	return s.SetMasterGainAt(s.Now(), g)
}

// SetMasterGainAt sets master gain at provided time.
func (s *Stage) SetMasterGainAt(at param.Time, g float64) error {
	if err := validGain(g); err != nil {
		return err
	}
	return s.schedule(at, func(st *Settings) error {
		st.MasterGain = g
		return nil
	}, func(rt *state) {
		rt.master = g
	})
}

// SetMute silences output. Gains are preserved and restored on unmute.
func (s *Stage) SetMute(mute bool) error {
	return s.SetMuteAt(s.Now(), mute)
}

// SetMuteAt sets mute at provided time.
func (s *Stage) SetMuteAt(at param.Time, mute bool) error {
	return s.schedule(at, func(st *Settings) error {
		st.Mute = mute
		return nil
	}, func(rt *state) {
		rt.mute = mute
	})
}

// SetClipper enables hard clipping to unit range.
func (s *Stage) SetClipper(on bool) error {
	return s.SetClipperAt(s.Now(), on)
}

// SetClipperAt enables clipper at provided time.
func (s *Stage) SetClipperAt(at param.Time, on bool) error {
	return s.schedule(at, func(st *Settings) error {
		st.Clipper = on
		return nil
	}, func(rt *state) {
		rt.clipper = on
	})
}

// SetMeter enables metering.
func (s *Stage) SetMeter(on bool) error {
	return s.SetMeterAt(s.Now(), on)
}

// SetMeterAt enables metering at provided time. Accumulated values are
// discarded.
func (s *Stage) SetMeterAt(at param.Time, on bool) error {
	return s.schedule(at, func(st *Settings) error {
		st.Meter = on
		return nil
	}, func(rt *state) {
		rt.meter = on
		rt.resetMeter()
	})
}

// SetMeterPeriod sets meter update period in samples.
func (s *Stage) SetMeterPeriod(period int) error {
	return s.SetMeterPeriodAt(s.Now(), period)
}

// SetMeterPeriodAt sets meter update period at provided time.
func (s *Stage) SetMeterPeriodAt(at param.Time, period int) error {
	if period <= 0 {
		return fmt.Errorf("%w: meter period %d", ErrInvalidValue, period)
	}
	return s.schedule(at, func(st *Settings) error {
		st.MeterPeriod = period
		return nil
	}, func(rt *state) {
		rt.period = period
		rt.resetMeter()
	})
}

// SetMeterUpdateFreq sets how many times per second meters are published.
func (s *Stage) SetMeterUpdateFreq(hz float64) error {
	return s.SetMeterUpdateFreqAt(s.Now(), hz)
}

// SetMeterUpdateFreqAt sets meter update frequency at provided time.
func (s *Stage) SetMeterUpdateFreqAt(at param.Time, hz float64) error {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("%w: meter frequency %v", ErrInvalidValue, hz)
	}
	s.mu.Lock()
	period := int(s.sampleRate / hz)
	s.mu.Unlock()
	if period < 1 {
		period = 1
	}
	return s.SetMeterPeriodAt(at, period)
}

// SetBassManagementFreq sets crossover frequency.
func (s *Stage) SetBassManagementFreq(freq float64) error {
	return s.SetBassManagementFreqAt(s.Now(), freq)
}

// SetBassManagementFreqAt sets crossover frequency at provided time.
func (s *Stage) SetBassManagementFreqAt(at param.Time, freq float64) error {
	if err := validFreq(freq); err != nil {
		return err
	}
	return s.schedule(at, func(st *Settings) error {
		st.Crossover = freq
		return nil
	}, func(rt *state) {
		rt.freq = freq
		for i := range rt.filters {
			rt.filters[i].tune(freq, rt.sampleRate)
		}
	})
}

// SetBassManagementMode sets bass mode.
func (s *Stage) SetBassManagementMode(mode BassMode) error {
	return s.SetBassManagementModeAt(s.Now(), mode)
}

// SetBassManagementModeAt sets bass mode at provided time. Filters are
// reset on mode change.
func (s *Stage) SetBassManagementModeAt(at param.Time, mode BassMode) error {
	if mode < BassNone || mode >= numBassModes {
		return fmt.Errorf("%w: bass mode %d", ErrInvalidValue, mode)
	}
	return s.schedule(at, func(st *Settings) error {
		st.BassMode = mode
		return nil
	}, func(rt *state) {
		if rt.mode != mode {
			rt.resetFilters()
		}
		rt.mode = mode
	})
}

// SetSubMix sets sub mix policy of BassMix mode.
func (s *Stage) SetSubMix(mix SubMix) error {
	return s.SetSubMixAt(s.Now(), mix)
}

// SetSubMixAt sets sub mix policy at provided time.
func (s *Stage) SetSubMixAt(at param.Time, mix SubMix) error {
	return s.schedule(at, func(st *Settings) error {
		st.SubMix = mix
		return nil
	}, func(rt *state) {
		rt.subMix = mix
	})
}

// SetSubwoofers sets up to MaxSubwoofers subwoofer channels. Negative
// indices are ignored.
func (s *Stage) SetSubwoofers(channels ...int) error {
	return s.SetSubwoofersAt(s.Now(), channels...)
}

// SetSubwoofersAt sets subwoofer channels at provided time.
func (s *Stage) SetSubwoofersAt(at param.Time, channels ...int) error {
	if len(channels) > MaxSubwoofers {
		return fmt.Errorf("%w: %d", ErrTooManySubwoofers, len(channels))
	}
	var subs [MaxSubwoofers]int
	n := copy(subs[:], channels)
	return s.schedule(at, func(st *Settings) error {
		if err := s.validSubwoofers(channels); err != nil {
			return err
		}
		st.Subwoofers = st.Subwoofers[:0]
		for _, sw := range subs[:n] {
			if sw >= 0 {
				st.Subwoofers = append(st.Subwoofers, sw)
			}
		}
		return nil
	}, func(rt *state) {
		rt.setSubwoofers(subs[:n])
		rt.resetFilters()
	})
}

// schedule updates requested settings and schedules the real-time change.
func (s *Stage) schedule(at param.Time, update func(*Settings) error, apply func(*state)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.settings.clone()
	if err := update(&st); err != nil {
		return err
	}
	if err := s.params.Schedule(at, func() { apply(&s.rt) }); err != nil {
		return err
	}
	s.settings = st
	return nil
}

func (s *Stage) validSubwoofers(subs []int) error {
	if len(subs) > MaxSubwoofers {
		return fmt.Errorf("%w: %d", ErrTooManySubwoofers, len(subs))
	}
	for _, sw := range subs {
		if sw >= s.channels {
			return fmt.Errorf("%w: subwoofer %d", ErrChannel, sw)
		}
	}
	return nil
}

func validGain(g float64) error {
	if g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
		return fmt.Errorf("%w: gain %v", ErrInvalidValue, g)
	}
	return nil
}

func validFreq(f float64) error {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: frequency %v", ErrInvalidValue, f)
	}
	return nil
}

func unity(channels int) []float64 {
	gains := make([]float64, channels)
	for i := range gains {
		gains[i] = 1
	}
	return gains
}
