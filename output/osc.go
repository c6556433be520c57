package output

import (
	"fmt"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

// DefaultPrefix is the default prefix of OSC addresses.
const DefaultPrefix = "/Alloaudio"

// OSC addresses relative to the prefix.
const (
	AddrGain       = "/gain"
	AddrGlobalGain = "/global_gain"
	AddrMuteAll    = "/mute_all"
	AddrClipperOn  = "/clipper_on"
	AddrMeterOn    = "/meter_on"
	AddrMeterFreq  = "/meter_update_freq"
	AddrBassFreq   = "/bass_management_freq"
	AddrBassMode   = "/bass_management_mode"
	AddrSubwoofers = "/sw_indeces"
	AddrMeterDB    = "/meterdb"
)

// HandleMessage applies control message addressed to the stage. It
// returns false if the address doesn't belong to the stage. Changes are
// scheduled one block after the next block start.
func (s *Stage) HandleMessage(msg *osc.Message) (bool, error) {
	prefix := s.Prefix()
	if msg == nil || !strings.HasPrefix(msg.Address, prefix+"/") {
		return false, nil
	}
	at := s.NextBlock()
	args := msg.Arguments
	switch strings.TrimPrefix(msg.Address, prefix) {
	case AddrGain:
		ch, g, err := intFloat(args)
		if err != nil {
			return true, err
		}
		return true, s.SetGainAt(at, ch, g)
	case AddrGlobalGain:
		g, err := floatArg(args, 0)
		if err != nil {
			return true, err
		}
		return true, s.SetMasterGainAt(at, g)
	case AddrMuteAll:
		on, err := boolArg(args, 0)
		if err != nil {
			return true, err
		}
		return true, s.SetMuteAt(at, on)
	case AddrClipperOn:
		on, err := boolArg(args, 0)
		if err != nil {
			return true, err
		}
		return true, s.SetClipperAt(at, on)
	case AddrMeterOn:
		on, err := boolArg(args, 0)
		if err != nil {
			return true, err
		}
		return true, s.SetMeterAt(at, on)
	case AddrMeterFreq:
		hz, err := floatArg(args, 0)
		if err != nil {
			return true, err
		}
		return true, s.SetMeterUpdateFreqAt(at, hz)
	case AddrBassFreq:
		freq, err := floatArg(args, 0)
		if err != nil {
			return true, err
		}
		return true, s.SetBassManagementFreqAt(at, freq)
	case AddrBassMode:
		mode, err := intArg(args, 0)
		if err != nil {
			return true, err
		}
		return true, s.SetBassManagementModeAt(at, BassMode(mode))
	case AddrSubwoofers:
		subs := make([]int, 0, len(args))
		for i := range args {
			sw, err := intArg(args, i)
			if err != nil {
				return true, err
			}
			subs = append(subs, sw)
		}
		return true, s.SetSubwoofersAt(at, subs...)
	}
	return false, nil
}

func intFloat(args []interface{}) (int, float64, error) {
	i, err := intArg(args, 0)
	if err != nil {
		return 0, 0, err
	}
	f, err := floatArg(args, 1)
	return i, f, err
}

func intArg(args []interface{}, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrInvalidValue, i)
	}
	switch v := args[i].(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("%w: argument %d is %T", ErrInvalidValue, i, args[i])
}

func floatArg(args []interface{}, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrInvalidValue, i)
	}
	switch v := args[i].(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: argument %d is %T", ErrInvalidValue, i, args[i])
}

func boolArg(args []interface{}, i int) (bool, error) {
	if i < len(args) {
		if b, ok := args[i].(bool); ok {
			return b, nil
		}
	}
	v, err := intArg(args, i)
	return v != 0, err
}

// MeterMessages builds messages with current peak values in dBFS. Channel
// addresses count from 1.
func (s *Stage) MeterMessages() []*osc.Message {
	values := make([]float32, s.maxBuf.Size())
	s.CurrentValues(values)
	prefix := s.Prefix()
	if s.MeterAddrHasChannel() {
		msgs := make([]*osc.Message, len(values))
		for i, v := range values {
			msgs[i] = osc.NewMessage(fmt.Sprintf("%s%s/%d", prefix, AddrMeterDB, i+1), DB(v))
		}
		return msgs
	}
	msg := osc.NewMessage(prefix + AddrMeterDB)
	for _, v := range values {
		msg.Append(DB(v))
	}
	return []*osc.Message{msg}
}
