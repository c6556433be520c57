// Package record captures the output of the audio domain. Blocks are
// copied on the real-time goroutine and encoded by a writer goroutine.
package record

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/sirupsen/logrus"

	"pipelined.dev/domain"
	aud "pipelined.dev/domain/audio"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/metric"
)

// DefaultCapacity is the number of blocks queued for the writer.
const DefaultCapacity = 64

// ErrFormatChanged is returned when recorder is prepared with a different
// format than the open sink has.
var ErrFormatChanged = errors.New("stream format changed while recording")

// Sink encodes interleaved integer samples.
type Sink interface {
	BitDepth() int
	Open(sampleRate, channels int) error
	Write(*audio.IntBuffer) error
	Close() error
}

// chunk is interleaved copy of a block.
type chunk struct {
	data    []float32
	samples int
}

// Recorder is an audio processor that follows the lifecycle of the audio
// domain. The sink is opened on first prepare and closed on cleanup.
// When the writer falls behind, blocks are dropped and counted.
type Recorder struct {
	domain.Node
	log      *logrus.Entry
	sink     Sink
	capacity int

	// set by prepare.
	channels   int
	sampleRate int
	open       atomic.Bool
	free       chan *chunk
	full       chan *chunk
	quit       chan struct{}
	wg         sync.WaitGroup

	paused  atomic.Bool
	dropped atomic.Uint64
	frames  atomic.Uint64
	drops   func(int64)
	werr    atomic.Pointer[error]
}

// New returns recorder that writes into sink. Capacity is the number of
// blocks that can wait for the writer, DefaultCapacity is used if it's
// not positive.
func New(sink Sink, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Recorder{
		sink:     sink,
		capacity: capacity,
		drops:    metric.Counter("record.Recorder", metric.DropCounter),
	}
	r.Bind(r)
	r.log = log.ForDomain("recorder", r.ID())
	return r
}

// Initialize implements domain.Domain.
func (r *Recorder) Initialize(ctx context.Context) error {
	return r.InitializeWith(ctx, nil)
}

// Prepare implements audio.Preparer. It opens the sink and starts the
// writer on first call.
func (r *Recorder) Prepare(cfg aud.Config) error {
	if r.open.Load() {
		if cfg.Outputs != r.channels || int(cfg.SampleRate) != r.sampleRate {
			return ErrFormatChanged
		}
		return nil
	}
	if err := r.sink.Open(int(cfg.SampleRate), cfg.Outputs); err != nil {
		return fmt.Errorf("error opening sink: %w", err)
	}
	r.channels, r.sampleRate = cfg.Outputs, int(cfg.SampleRate)
	r.free = make(chan *chunk, r.capacity)
	r.full = make(chan *chunk, r.capacity)
	r.quit = make(chan struct{})
	for i := 0; i < r.capacity; i++ {
		r.free <- &chunk{data: make([]float32, cfg.BlockSize*cfg.Outputs)}
	}
	r.open.Store(true)
	r.wg.Add(1)
	go r.write(cfg.BlockSize * cfg.Outputs)
	r.log.WithFields(logrus.Fields{
		"sample_rate": r.sampleRate,
		"channels":    r.channels,
	}).Debug("recording")
	return nil
}

// Process implements audio.Processor.
func (r *Recorder) Process(b *aud.Block) {
	if !r.open.Load() || r.paused.Load() || len(b.Out) == 0 {
		return
	}
	var c *chunk
	select {
	case c = <-r.free:
	default:
		r.drop()
		return
	}
	n := b.Frames * len(b.Out)
	if n > len(c.data) {
		r.free <- c
		r.drop()
		return
	}
	channels := len(b.Out)
	for ch, out := range b.Out {
		for i := 0; i < b.Frames; i++ {
			c.data[i*channels+ch] = out[i]
		}
	}
	c.samples = n
	r.full <- c
	r.frames.Add(uint64(b.Frames))
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	r.drops(1)
}

// write encodes chunks until quit, then drains the queue.
func (r *Recorder) write(size int) {
	defer r.wg.Done()
	ib := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.channels,
			SampleRate:  r.sampleRate,
		},
		Data:           make([]int, size),
		SourceBitDepth: r.sink.BitDepth(),
	}
	scale := float64(int(1)<<(r.sink.BitDepth()-1) - 1)
	for {
		select {
		case c := <-r.full:
			r.encode(ib, c, scale)
		case <-r.quit:
			for {
				select {
				case c := <-r.full:
					r.encode(ib, c, scale)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) encode(ib *audio.IntBuffer, c *chunk, scale float64) {
	ib.Data = ib.Data[:c.samples]
	for i, v := range c.data[:c.samples] {
		ib.Data[i] = int(math.Max(-1, math.Min(1, float64(v))) * scale)
	}
	r.free <- c
	if err := r.sink.Write(ib); err != nil {
		r.werr.Store(&err)
		r.log.WithError(err).Error("write failed")
	}
}

// Pause stops capturing blocks.
func (r *Recorder) Pause() {
	r.paused.Store(true)
}

// Resume continues capturing blocks.
func (r *Recorder) Resume() {
	r.paused.Store(false)
}

// Recording returns true if blocks are captured.
func (r *Recorder) Recording() bool {
	return r.open.Load() && !r.paused.Load()
}

// Dropped returns number of blocks dropped because the writer was behind.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Frames returns number of captured frames.
func (r *Recorder) Frames() uint64 {
	return r.frames.Load()
}

// Err returns the last write error.
func (r *Recorder) Err() error {
	if p := r.werr.Load(); p != nil {
		return *p
	}
	return nil
}

// Cleanup implements domain.Domain. It waits for queued blocks to be
// written and closes the sink.
func (r *Recorder) Cleanup(ctx context.Context) error {
	return r.CleanupWith(ctx, func(context.Context) error {
		if !r.open.Load() {
			return nil
		}
		close(r.quit)
		r.wg.Wait()
		r.open.Store(false)
		r.log.WithField("frames", r.frames.Load()).Debug("recorded")
		return r.sink.Close()
	})
}
