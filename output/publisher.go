package output

import (
	"context"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"

	"pipelined.dev/domain"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/metric"
)

// Sender sends OSC packets. *osc.Client implements it.
type Sender interface {
	Send(osc.Packet) error
}

// Publisher is asynchronous domain that periodically sends meter values
// of the stage over OSC.
type Publisher struct {
	domain.Node
	log    *logrus.Entry
	stage  *Stage
	sender Sender
	period time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sent   func(int64)
	failed func(int64)
}

// NewPublisher returns publisher that sends meters with provided period.
func NewPublisher(stage *Stage, sender Sender, period time.Duration) *Publisher {
	p := &Publisher{
		stage:  stage,
		sender: sender,
		period: period,
		sent:   metric.Counter("output.Publisher", metric.MessageCounter),
		failed: metric.Counter("output.Publisher", metric.DropCounter),
	}
	p.Bind(p)
	p.log = log.ForDomain("meter publisher", p.ID())
	return p
}

// Initialize implements domain.Domain.
func (p *Publisher) Initialize(ctx context.Context) error {
	return p.InitializeWith(ctx, nil)
}

// Cleanup implements domain.Domain.
func (p *Publisher) Cleanup(ctx context.Context) error {
	return p.CleanupWith(ctx, nil)
}

// Start runs publishing goroutine and returns.
func (p *Publisher) Start(ctx context.Context) error {
	return p.StartWith(ctx, func(context.Context) error {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.wg.Add(1)
		go p.run(ctx)
		return nil
	})
}

// Stop halts publishing goroutine and waits for it.
func (p *Publisher) Stop(ctx context.Context) error {
	return p.StopWith(ctx, func(context.Context) error {
		p.cancel()
		p.wg.Wait()
		return nil
	})
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Publish()
		}
	}
}

// Publish sends current meter values once.
func (p *Publisher) Publish() {
	for _, msg := range p.stage.MeterMessages() {
		if err := p.sender.Send(msg); err != nil {
			p.failed(1)
			p.log.WithError(err).Debug("failed to send meters")
			continue
		}
		p.sent(1)
	}
}
