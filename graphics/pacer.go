package graphics

import "time"

// pacer sleeps until the next frame deadline. When the loop is late the
// deadline is moved instead of catching up, so wait never blocks longer
// than one period.
type pacer struct {
	period time.Duration
	next   time.Time
	now    func() time.Time
	sleep  func(time.Duration)
}

func newPacer(fps float64) *pacer {
	return &pacer{
		period: time.Duration(float64(time.Second) / fps),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

func (p *pacer) wait() {
	now := p.now()
	if p.next.IsZero() || !now.Before(p.next) {
		p.next = now.Add(p.period)
		return
	}
	p.sleep(p.next.Sub(now))
	p.next = p.next.Add(p.period)
}
