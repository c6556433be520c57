package audio

import (
	"fmt"
	"sync"
	"time"
)

type (
	// Callback is invoked by the device on its real-time goroutine with
	// non-interleaved channel slices. Every slice has exactly BlockSize
	// frames. Output slices must be filled before the callback returns.
	Callback func(in, out [][]float32)

	// Device is an audio backend. Successful Open is always followed by
	// Close, even if Start failed.
	Device interface {
		Devices() ([]DeviceInfo, error)
		Info(index int) (DeviceInfo, error)
		Open(Config, Callback) error
		Start() error
		Stop() error
		Close() error
	}

	// DeviceInfo describes device capabilities.
	DeviceInfo struct {
		Index             int
		Name              string
		MaxOutputs        int
		MaxInputs         int
		DefaultSampleRate float64
	}
)

// NullDevice is a device without hardware. It calls the callback from its
// own goroutine, either paced in real time or as fast as possible.
type NullDevice struct {
	// Paced makes device wait for the block duration between callbacks.
	Paced bool

	mu       sync.Mutex
	cfg      Config
	callback Callback
	in, out  [][]float32
	stop     chan struct{}
	done     chan struct{}
}

var nullInfo = DeviceInfo{
	Index:             0,
	Name:              "null",
	MaxOutputs:        64,
	MaxInputs:         64,
	DefaultSampleRate: 44100,
}

// Devices implements Device.
func (d *NullDevice) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{nullInfo}, nil
}

// Info implements Device.
func (d *NullDevice) Info(index int) (DeviceInfo, error) {
	if index != DefaultDevice && index != nullInfo.Index {
		return DeviceInfo{}, fmt.Errorf("%w: %d", ErrUnknownDevice, index)
	}
	return nullInfo, nil
}

// Open allocates channel buffers.
func (d *NullDevice) Open(cfg Config, cb Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.callback = cb
	d.in = channels(cfg.Inputs, cfg.BlockSize)
	d.out = channels(cfg.Outputs, cfg.BlockSize)
	return nil
}

// Start runs callback goroutine.
func (d *NullDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.callback == nil {
		return fmt.Errorf("null device is not open")
	}
	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
	return nil
}

func (d *NullDevice) run(stop, done chan struct{}) {
	defer close(done)
	var ticker *time.Ticker
	if d.Paced {
		period := time.Duration(d.cfg.BlockDuration() * float64(time.Second))
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}
	for {
		if ticker != nil {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		d.callback(d.in, d.out)
	}
}

// Stop halts callback goroutine and waits until the last callback returns.
func (d *NullDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	<-d.done
	d.stop, d.done = nil, nil
	return nil
}

// Close releases channel buffers.
func (d *NullDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = nil
	d.in, d.out = nil, nil
	return nil
}

func channels(n, frames int) [][]float32 {
	if n == 0 {
		return nil
	}
	data := make([]float32, n*frames)
	result := make([][]float32, n)
	for i := range result {
		result[i] = data[i*frames : (i+1)*frames]
	}
	return result
}
