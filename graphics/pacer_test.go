package graphics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacer(t *testing.T) {
	clock := time.Unix(0, 0)
	var slept []time.Duration
	p := newPacer(10)
	p.now = func() time.Time { return clock }
	p.sleep = func(d time.Duration) {
		slept = append(slept, d)
		clock = clock.Add(d)
	}

	p.wait()
	clock = clock.Add(30 * time.Millisecond)
	p.wait()
	// late frame moves the deadline.
	clock = clock.Add(250 * time.Millisecond)
	p.wait()
	p.wait()
	assert.Equal(t, []time.Duration{70 * time.Millisecond, 100 * time.Millisecond}, slept)
}
