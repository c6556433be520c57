package output

import "math"

// butterworthQ makes cascade of two sections a Linkwitz-Riley crossover.
const butterworthQ = 1 / math.Sqrt2

// biquad is a second order section in direct form I.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) lowpass(freq, sampleRate float64) {
	cosw, alpha := prewarp(freq, sampleRate)
	a0 := 1 + alpha
	f.b0 = (1 - cosw) / 2 / a0
	f.b1 = (1 - cosw) / a0
	f.b2 = f.b0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
}

func (f *biquad) highpass(freq, sampleRate float64) {
	cosw, alpha := prewarp(freq, sampleRate)
	a0 := 1 + alpha
	f.b0 = (1 + cosw) / 2 / a0
	f.b1 = -(1 + cosw) / a0
	f.b2 = f.b0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
}

func prewarp(freq, sampleRate float64) (cosw, alpha float64) {
	// keep the corner below nyquist.
	if nyquist := sampleRate / 2; freq >= nyquist {
		freq = nyquist * 0.99
	}
	w := 2 * math.Pi * freq / sampleRate
	return math.Cos(w), math.Sin(w) / (2 * butterworthQ)
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// crossover splits channel into low and high bands with 24 dB/oct slopes.
type crossover struct {
	lo1, lo2, hi1, hi2 biquad
}

func (c *crossover) tune(freq, sampleRate float64) {
	c.lo1.lowpass(freq, sampleRate)
	c.lo2.lowpass(freq, sampleRate)
	c.hi1.highpass(freq, sampleRate)
	c.hi2.highpass(freq, sampleRate)
}

func (c *crossover) low(x float64) float64 {
	return c.lo2.process(c.lo1.process(x))
}

func (c *crossover) high(x float64) float64 {
	return c.hi2.process(c.hi1.process(x))
}

func (c *crossover) reset() {
	c.lo1.reset()
	c.lo2.reset()
	c.hi1.reset()
	c.hi2.reset()
}
