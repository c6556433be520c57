// Package oto provides output-only audio device backed by oto. Oto pulls
// samples from a reader, so the device runs the callback whenever the
// player needs the next block.
package oto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"

	"pipelined.dev/domain/audio"
)

// ErrContextFormat is returned when device is opened with format different
// from the one oto context was created with. Oto allows single context per
// process.
var ErrContextFormat = errors.New("oto context already exists with different format")

var shared struct {
	sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

// BufferSize is the size of the oto buffer in blocks.
const BufferSize = 2

// Device is an oto output device.
type Device struct {
	mu     sync.Mutex
	player *oto.Player
	reader *reader
}

var info = audio.DeviceInfo{
	Index:             0,
	Name:              "oto",
	MaxOutputs:        2,
	DefaultSampleRate: 48000,
}

// Devices implements audio.Device.
func (d *Device) Devices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{info}, nil
}

// Info implements audio.Device.
func (d *Device) Info(index int) (audio.DeviceInfo, error) {
	if index != audio.DefaultDevice && index != info.Index {
		return audio.DeviceInfo{}, fmt.Errorf("%w: %d", audio.ErrUnknownDevice, index)
	}
	return info, nil
}

// Open creates the oto context on first use and a player that pulls
// blocks from the callback.
func (d *Device) Open(cfg audio.Config, cb audio.Callback) error {
	if cfg.Inputs > 0 {
		return fmt.Errorf("%w: oto doesn't support inputs", audio.ErrInvalidConfig)
	}
	ctx, err := otoContext(int(cfg.SampleRate), cfg.Outputs)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reader = newReader(cfg, cb)
	d.player = ctx.NewPlayer(d.reader)
	d.player.SetBufferSize(BufferSize * cfg.BlockSize * cfg.Outputs * 4)
	return nil
}

// Start starts playback.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return fmt.Errorf("oto player is not open")
	}
	d.reader.stopped.Store(false)
	d.player.Play()
	return nil
}

// Stop pauses playback. Reader stops calling the callback before Stop
// returns.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	d.reader.stop()
	return nil
}

// Close releases the player.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player, d.reader = nil, nil
	return err
}

func otoContext(sampleRate, channels int) (*oto.Context, error) {
	shared.Lock()
	defer shared.Unlock()
	if shared.ctx != nil {
		if shared.sampleRate != sampleRate || shared.channels != channels {
			return nil, ErrContextFormat
		}
		return shared.ctx, nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	shared.ctx, shared.sampleRate, shared.channels = ctx, sampleRate, channels
	return ctx, nil
}

// reader interleaves blocks produced by the callback into the byte stream
// requested by the player.
type reader struct {
	mu       sync.Mutex // held while callback runs, so stop can wait for it.
	callback audio.Callback
	out      [][]float32
	pending  []byte
	pos      int
	stopped  atomic.Bool
}

func newReader(cfg audio.Config, cb audio.Callback) *reader {
	out := make([][]float32, cfg.Outputs)
	for i := range out {
		out[i] = make([]float32, cfg.BlockSize)
	}
	pending := make([]byte, cfg.BlockSize*cfg.Outputs*4)
	return &reader{
		callback: cb,
		out:      out,
		pending:  pending,
		pos:      len(pending),
	}
}

// Read implements io.Reader.
func (r *reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for n < len(p) {
		if r.pos == len(r.pending) {
			if r.stopped.Load() {
				for i := n; i < len(p); i++ {
					p[i] = 0
				}
				return len(p), nil
			}
			r.render()
		}
		c := copy(p[n:], r.pending[r.pos:])
		n += c
		r.pos += c
	}
	return n, nil
}

func (r *reader) render() {
	r.callback(nil, r.out)
	channels := len(r.out)
	for c := range r.out {
		for i, v := range r.out[c] {
			offset := (i*channels + c) * 4
			binary.LittleEndian.PutUint32(r.pending[offset:], math.Float32bits(v))
		}
	}
	r.pos = 0
}

func (r *reader) stop() {
	r.stopped.Store(true)
	// wait for the running callback.
	r.mu.Lock()
	r.mu.Unlock()
}
