// Package network provides the Network Domain: an OSC listener over UDP
// that feeds registered parameters and the message hook.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"

	"pipelined.dev/domain"
	"pipelined.dev/domain/log"
	"pipelined.dev/domain/metric"
)

// Defaults of the listener.
const (
	DefaultAddress = "0.0.0.0"
	DefaultPort    = 9010
)

// maxPacketSize is the largest UDP payload.
const maxPacketSize = 65535

// ErrInvalidPort is returned when port doesn't fit into 16 bits.
var ErrInvalidPort = errors.New("invalid port")

// Message is a received OSC message.
type Message struct {
	*osc.Message
	Received time.Time
	From     net.Addr
}

// Domain is asynchronous domain that listens for OSC packets. Start
// returns as soon as the socket is bound, messages are delivered on the
// listener goroutine in receipt order.
type Domain struct {
	domain.Node
	log *logrus.Entry

	mu      sync.Mutex
	address string
	port    int
	conn    net.PacketConn
	wg      sync.WaitGroup

	onMessage domain.Hook[func(Message)]
	params    *ParameterServer
	received  func()
	dropped   func()
}

// New returns network domain with default address and port.
func New() *Domain {
	d := &Domain{
		address:  DefaultAddress,
		port:     DefaultPort,
		params:   NewParameterServer(),
		received: metric.Ticker("network.Domain", metric.MessageCounter),
		dropped:  metric.Ticker("network.Domain", metric.DropCounter),
	}
	d.Bind(d)
	d.log = log.ForDomain("network", d.ID())
	return d
}

// Configure sets the listening address. Port 0 picks a free port on
// start. It's not allowed while running.
func (d *Domain) Configure(port int, address string) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State() == domain.Running {
		return domain.ErrInvalidState
	}
	if address == "" {
		address = DefaultAddress
	}
	d.port, d.address = port, address
	return nil
}

// Addr returns bound address while running and nil otherwise.
func (d *Domain) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// OnMessage sets the hook for messages that don't address a registered
// parameter. Nil unsets the hook, such messages are then logged and
// dropped.
func (d *Domain) OnMessage(fn func(Message)) {
	d.onMessage.Set(fn)
}

// Parameters returns parameter server of the domain.
func (d *Domain) Parameters() *ParameterServer {
	return d.params
}

// Initialize implements domain.Domain.
func (d *Domain) Initialize(ctx context.Context) error {
	return d.InitializeWith(ctx, nil)
}

// Cleanup implements domain.Domain.
func (d *Domain) Cleanup(ctx context.Context) error {
	return d.CleanupWith(ctx, nil)
}

// Start binds the socket and starts listener goroutine.
func (d *Domain) Start(ctx context.Context) error {
	return d.StartWith(ctx, func(ctx context.Context) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		var lc net.ListenConfig
		conn, err := lc.ListenPacket(ctx, "udp", net.JoinHostPort(d.address, strconv.Itoa(d.port)))
		if err != nil {
			return fmt.Errorf("error binding %s:%d: %w", d.address, d.port, err)
		}
		d.conn = conn
		d.wg.Add(1)
		go d.serve(conn)
		d.log.WithField("addr", conn.LocalAddr().String()).Debug("listening")
		return nil
	})
}

// Stop closes the socket and waits for listener goroutine.
func (d *Domain) Stop(ctx context.Context) error {
	return d.StopWith(ctx, func(context.Context) error {
		d.mu.Lock()
		conn := d.conn
		d.conn = nil
		d.mu.Unlock()
		var err error
		if conn != nil {
			err = conn.Close()
		}
		d.wg.Wait()
		d.log.Debug("stopped")
		return err
	})
}

func (d *Domain) serve(conn net.PacketConn) {
	defer d.wg.Done()
	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.log.WithError(err).Error("read failed")
			}
			return
		}
		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			d.dropped()
			d.log.WithError(err).Debug("invalid packet")
			continue
		}
		d.dispatch(packet, timecache.CachedTime(), from)
	}
}

// dispatch delivers messages of the packet in order. Bundle messages go
// before nested bundles.
func (d *Domain) dispatch(p osc.Packet, received time.Time, from net.Addr) {
	switch p := p.(type) {
	case *osc.Message:
		d.Handle(Message{Message: p, Received: received, From: from})
	case *osc.Bundle:
		for _, m := range p.Messages {
			d.Handle(Message{Message: m, Received: received, From: from})
		}
		for _, b := range p.Bundles {
			d.dispatch(b, received, from)
		}
	}
}

// Handle delivers the message as if it was received from the socket.
func (d *Domain) Handle(m Message) {
	d.received()
	if d.params.Handle(m.Message) {
		return
	}
	if fn, ok := d.onMessage.Get(); ok {
		fn(m)
		return
	}
	d.log.WithField("address", m.Address).Debug("unhandled message")
}
