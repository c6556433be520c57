package output

import (
	"fmt"
	"math"
)

// measure accumulates extrema and publishes them every period.
func (s *Stage) measure(out [][]float32, frames int) {
	rt := &s.rt
	for i := 0; i < frames; i++ {
		for c := range out {
			v := out[c][i]
			if v > rt.meterMax[c] {
				rt.meterMax[c] = v
			}
			if v < rt.meterMin[c] {
				rt.meterMin[c] = v
			}
		}
		rt.counted++
		if rt.counted >= rt.period {
			for c := range rt.meterPeak {
				rt.meterPeak[c] = max(abs(rt.meterMax[c]), abs(rt.meterMin[c]))
			}
			s.maxBuf.Write(rt.meterMax)
			s.minBuf.Write(rt.meterMin)
			s.peakBuf.Write(rt.meterPeak)
			rt.resetMeter()
		}
	}
}

func (rt *state) resetMeter() {
	for c := range rt.meterMax {
		rt.meterMax[c] = -math.MaxFloat32
		rt.meterMin[c] = math.MaxFloat32
	}
	rt.counted = 0
}

// MaximumValues fills dst with maximum sample values of the last published
// meter period. It returns true if values were published after the
// previous read.
func (s *Stage) MaximumValues(dst []float32) bool {
	return s.maxBuf.Read(dst)
}

// MinimumValues fills dst with minimum sample values of the last published
// meter period.
func (s *Stage) MinimumValues(dst []float32) bool {
	return s.minBuf.Read(dst)
}

// CurrentValues fills dst with peak absolute values of the last published
// meter period.
func (s *Stage) CurrentValues(dst []float32) {
	s.peakBuf.Read(dst)
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// CurrentChannelValue returns peak absolute value of the channel.
func (s *Stage) CurrentChannelValue(channel int) (float32, error) {
	values := make([]float32, s.maxBuf.Size())
	if channel < 0 || channel >= len(values) {
		return 0, fmt.Errorf("%w: %d", ErrChannel, channel)
	}
	s.CurrentValues(values)
	return values[channel], nil
}

// MinDB is the level reported for silence.
const MinDB = -120

// DB converts linear amplitude to dBFS.
func DB(v float32) float32 {
	if v <= 0 {
		return MinDB
	}
	db := 20 * math.Log10(float64(v))
	if db < MinDB {
		return MinDB
	}
	return float32(db)
}
