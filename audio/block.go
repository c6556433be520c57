package audio

import "pipelined.dev/domain/param"

type (
	// Block is a single invocation of the real-time callback. Channel
	// slices are owned by the device and valid only during the call.
	Block struct {
		In, Out    [][]float32
		Frames     int
		Time       param.Time
		SampleRate float64
	}

	// Processor is executed on the real-time goroutine once per block,
	// after the sound hook. This is the hot path: Process must not block,
	// allocate or perform I/O.
	Processor interface {
		Process(*Block)
	}

	// Preparer is implemented by processors that allocate their state for
	// the stream format. Prepare is called before the device is opened.
	Preparer interface {
		Prepare(Config) error
	}

	// ProcessorFunc allows to use ordinary functions as processors.
	ProcessorFunc func(*Block)
)

// Process implements Processor.
func (fn ProcessorFunc) Process(b *Block) {
	fn(b)
}

// Duration returns duration of the block in seconds.
func (b *Block) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames) / b.SampleRate
}

// End returns time of the first frame after the block.
func (b *Block) End() param.Time {
	return b.Time.Add(b.Frames)
}

func silence(channels [][]float32) {
	for _, c := range channels {
		for i := range c {
			c[i] = 0
		}
	}
}
