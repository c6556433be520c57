package sample

import (
	"fmt"
	"math"
	"sync/atomic"

	"pipelined.dev/domain/audio"
)

const (
	cmdNone int32 = iota
	cmdPlay
	cmdStop
)

// Player mixes the clip into the output of the audio domain. It
// implements audio.Processor and audio.Preparer. Control methods are safe
// to call from any goroutine, they take effect at the next block.
type Player struct {
	clip   *Clip
	loop   bool
	gain   atomic.Uint64
	cmd    atomic.Int32
	active atomic.Bool

	// owned by the real-time goroutine.
	playing bool
	pos     int
}

// NewPlayer returns stopped player of the clip.
func NewPlayer(clip *Clip, loop bool) *Player {
	p := &Player{clip: clip, loop: loop}
	p.SetGain(1)
	return p
}

// Prepare implements audio.Preparer. Clips are not resampled.
func (p *Player) Prepare(cfg audio.Config) error {
	if cfg.SampleRate != p.clip.SampleRate {
		return fmt.Errorf("%w: clip %v, stream %v", ErrSampleRate, p.clip.SampleRate, cfg.SampleRate)
	}
	return nil
}

// Play starts playback from the beginning.
func (p *Player) Play() {
	p.cmd.Store(cmdPlay)
}

// Stop halts playback.
func (p *Player) Stop() {
	p.cmd.Store(cmdStop)
}

// Playing reports if the clip was audible in the last block.
func (p *Player) Playing() bool {
	return p.active.Load()
}

// SetGain sets linear gain of the clip.
func (p *Player) SetGain(g float64) {
	p.gain.Store(math.Float64bits(g))
}

// Process implements audio.Processor. Clip channels are mapped onto
// output channels round-robin.
func (p *Player) Process(b *audio.Block) {
	switch p.cmd.Swap(cmdNone) {
	case cmdPlay:
		p.playing, p.pos = true, 0
	case cmdStop:
		p.playing = false
	}
	frames := p.clip.Frames()
	if !p.playing || frames == 0 || len(b.Out) == 0 {
		p.active.Store(false)
		return
	}
	gain := float32(math.Float64frombits(p.gain.Load()))
	n := len(p.clip.Channels)
	for i := 0; i < b.Frames; i++ {
		if p.pos == frames {
			if !p.loop {
				p.playing = false
				break
			}
			p.pos = 0
		}
		for c, out := range b.Out {
			out[i] += gain * p.clip.Channels[c%n][p.pos]
		}
		p.pos++
	}
	p.active.Store(true)
}
