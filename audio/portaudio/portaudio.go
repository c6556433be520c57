// Package portaudio provides audio device backed by portaudio.
package portaudio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/domain"
	"pipelined.dev/domain/audio"
)

// Device represents portaudio host. Portaudio is initialized when the
// device is opened or enumerated and terminated when it's closed.
type Device struct {
	mu     sync.Mutex
	stream *portaudio.Stream
}

// Devices lists portaudio devices.
func (d *Device) Devices() ([]audio.DeviceInfo, error) {
	var result []audio.DeviceInfo
	err := withPortaudio(func() error {
		devices, err := portaudio.Devices()
		if err != nil {
			return err
		}
		for i, dev := range devices {
			result = append(result, info(i, dev))
		}
		return nil
	})
	return result, err
}

// Info returns device info by index. Default device is the default output
// device of the host.
func (d *Device) Info(index int) (audio.DeviceInfo, error) {
	var result audio.DeviceInfo
	err := withPortaudio(func() error {
		i, dev, err := lookup(index)
		if err != nil {
			return err
		}
		result = info(i, dev)
		return nil
	})
	return result, err
}

// Open opens the callback stream with high latency parameters of the
// selected device.
func (d *Device) Open(cfg audio.Config, cb audio.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	_, dev, err := lookup(cfg.Device)
	if err != nil {
		return domain.Join(err, portaudio.Terminate())
	}
	var in, out *portaudio.DeviceInfo
	if cfg.Inputs > 0 {
		in = dev
	}
	if cfg.Outputs > 0 {
		out = dev
	}
	p := portaudio.HighLatencyParameters(in, out)
	p.Input.Channels = cfg.Inputs
	p.Output.Channels = cfg.Outputs
	p.SampleRate = cfg.SampleRate
	p.FramesPerBuffer = cfg.BlockSize
	d.stream, err = portaudio.OpenStream(p, func(in, out [][]float32) {
		cb(in, out)
	})
	if err != nil {
		return domain.Join(err, portaudio.Terminate())
	}
	return nil
}

// Start starts the stream.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return fmt.Errorf("portaudio stream is not open")
	}
	return d.stream.Start()
}

// Stop stops the stream. It returns when the last callback returned.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	return d.stream.Stop()
}

// Close closes the stream and terminates portaudio.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return domain.Join(err, portaudio.Terminate())
}

func withPortaudio(fn func() error) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	return domain.Join(fn(), portaudio.Terminate())
}

func lookup(index int) (int, *portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return 0, nil, err
	}
	if index == audio.DefaultDevice {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return 0, nil, err
		}
		for i := range devices {
			if devices[i] == dev {
				return i, dev, nil
			}
		}
		return 0, dev, nil
	}
	if index < 0 || index >= len(devices) {
		return 0, nil, fmt.Errorf("%w: %d", audio.ErrUnknownDevice, index)
	}
	return index, devices[index], nil
}

func info(index int, dev *portaudio.DeviceInfo) audio.DeviceInfo {
	return audio.DeviceInfo{
		Index:             index,
		Name:              dev.Name,
		MaxOutputs:        dev.MaxOutputChannels,
		MaxInputs:         dev.MaxInputChannels,
		DefaultSampleRate: dev.DefaultSampleRate,
	}
}
