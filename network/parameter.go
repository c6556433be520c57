package network

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
)

var (
	// ErrDuplicateParameter is returned when parameter with the same
	// address is already registered.
	ErrDuplicateParameter = errors.New("duplicate parameter")
	// ErrInvalidRange is returned when parameter minimum is above maximum.
	ErrInvalidRange = errors.New("invalid parameter range")
)

// Parameter is a named float value controlled over the network. Values
// are clamped to the parameter range.
type Parameter struct {
	name     string
	address  string
	min, max float64
	value    atomic.Uint64

	mu        sync.Mutex
	observers []func(float64)
}

// NewParameter returns parameter with address "/group/name" or "/name" if
// group is empty.
func NewParameter(name, group string, value, min, max float64) (*Parameter, error) {
	if min > max {
		return nil, fmt.Errorf("%w: %v > %v", ErrInvalidRange, min, max)
	}
	address := "/" + name
	if group != "" {
		address = "/" + group + address
	}
	p := &Parameter{
		name:    name,
		address: address,
		min:     min,
		max:     max,
	}
	p.value.Store(math.Float64bits(p.clamp(value)))
	return p, nil
}

// Name returns parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Address returns OSC address of the parameter.
func (p *Parameter) Address() string {
	return p.address
}

// Range returns minimum and maximum values.
func (p *Parameter) Range() (float64, float64) {
	return p.min, p.max
}

// Get returns current value.
func (p *Parameter) Get() float64 {
	return math.Float64frombits(p.value.Load())
}

// Set clamps and stores value and notifies observers.
func (p *Parameter) Set(v float64) {
	v = p.clamp(v)
	p.value.Store(math.Float64bits(v))
	p.mu.Lock()
	observers := append(([]func(float64))(nil), p.observers...)
	p.mu.Unlock()
	for _, fn := range observers {
		fn(v)
	}
}

// Observe registers function called after every change.
func (p *Parameter) Observe(fn func(float64)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

func (p *Parameter) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.min
	}
	return math.Max(p.min, math.Min(p.max, v))
}

// ParameterServer maps OSC addresses to parameters.
type ParameterServer struct {
	mu     sync.RWMutex
	params map[string]*Parameter
}

// NewParameterServer returns empty server.
func NewParameterServer() *ParameterServer {
	return &ParameterServer{params: make(map[string]*Parameter)}
}

// Register adds parameters to the server.
func (s *ParameterServer) Register(params ...*Parameter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range params {
		if _, ok := s.params[p.address]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateParameter, p.address)
		}
	}
	for _, p := range params {
		s.params[p.address] = p
	}
	return nil
}

// Unregister removes parameter from the server.
func (s *ParameterServer) Unregister(p *Parameter) {
	s.mu.Lock()
	delete(s.params, p.address)
	s.mu.Unlock()
}

// Parameter returns parameter by address.
func (s *ParameterServer) Parameter(address string) (*Parameter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.params[address]
	return p, ok
}

// Parameters returns registered parameters sorted by address.
func (s *ParameterServer) Parameters() []*Parameter {
	s.mu.RLock()
	result := make([]*Parameter, 0, len(s.params))
	for _, p := range s.params {
		result = append(result, p)
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].address < result[j].address
	})
	return result
}

// Handle sets parameter addressed by the message. It returns false if no
// parameter is registered for the address or the message has no numeric
// argument.
func (s *ParameterServer) Handle(msg *osc.Message) bool {
	p, ok := s.Parameter(msg.Address)
	if !ok || len(msg.Arguments) == 0 {
		return false
	}
	switch v := msg.Arguments[0].(type) {
	case float32:
		p.Set(float64(v))
	case float64:
		p.Set(v)
	case int32:
		p.Set(float64(v))
	case int64:
		p.Set(float64(v))
	default:
		return false
	}
	return true
}
