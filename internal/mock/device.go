package mock

import (
	"fmt"
	"sync"

	"pipelined.dev/domain/audio"
)

// Device mocks audio.Device. Callback is executed only when the test calls
// Process, so blocks are driven manually.
type Device struct {
	mu       sync.Mutex
	Infos    []audio.DeviceInfo
	Log      *Log
	callback audio.Callback
	cfg      audio.Config
	in, out  [][]float32
	running  bool

	ErrorOnOpen  error
	ErrorOnStart error
	ErrorOnStop  error
	ErrorOnClose error

	Opened, Started, Stopped, Closed int
}

// Devices implements audio.Device.
func (d *Device) Devices() ([]audio.DeviceInfo, error) {
	return d.infos(), nil
}

// Info implements audio.Device.
func (d *Device) Info(index int) (audio.DeviceInfo, error) {
	infos := d.infos()
	if index == audio.DefaultDevice {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Index == index {
			return info, nil
		}
	}
	return audio.DeviceInfo{}, fmt.Errorf("%w: %d", audio.ErrUnknownDevice, index)
}

func (d *Device) infos() []audio.DeviceInfo {
	if len(d.Infos) == 0 {
		return []audio.DeviceInfo{{Name: "mock", MaxOutputs: 8, MaxInputs: 2, DefaultSampleRate: 48000}}
	}
	return d.Infos
}

// Open implements audio.Device.
func (d *Device) Open(cfg audio.Config, cb audio.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Log.Add("device.open")
	d.Opened++
	if d.ErrorOnOpen != nil {
		return d.ErrorOnOpen
	}
	d.cfg = cfg
	d.callback = cb
	d.in = make([][]float32, cfg.Inputs)
	for i := range d.in {
		d.in[i] = make([]float32, cfg.BlockSize)
	}
	d.out = make([][]float32, cfg.Outputs)
	for i := range d.out {
		d.out[i] = make([]float32, cfg.BlockSize)
	}
	return nil
}

// Start implements audio.Device.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Log.Add("device.start")
	d.Started++
	if d.ErrorOnStart != nil {
		return d.ErrorOnStart
	}
	d.running = true
	return nil
}

// Stop implements audio.Device.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Log.Add("device.stop")
	d.Stopped++
	d.running = false
	return d.ErrorOnStop
}

// Close implements audio.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Log.Add("device.close")
	d.Closed++
	d.callback = nil
	return d.ErrorOnClose
}

// Config returns format the device was opened with.
func (d *Device) Config() audio.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Process executes a single callback with provided input. It returns
// false if device is not running. Output is returned as a copy.
func (d *Device) Process(input ...[]float32) ([][]float32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.callback == nil {
		return nil, false
	}
	for i := range d.in {
		if i < len(input) {
			copy(d.in[i], input[i])
		}
	}
	d.callback(d.in, d.out)
	result := make([][]float32, len(d.out))
	for i := range d.out {
		result[i] = append([]float32(nil), d.out[i]...)
	}
	return result, true
}
