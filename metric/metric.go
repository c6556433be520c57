// Package metric publishes domain counters with expvar.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

const domainsLabel = "domain.components"

const (
	// BlockCounter measures number of processed audio blocks.
	BlockCounter = "Blocks"
	// SampleCounter measures number of processed frames.
	SampleCounter = "Samples"
	// LatencyCounter measures latency between processing calls.
	LatencyCounter = "Latency"
	// DurationCounter counts what's the duration of processed signal.
	DurationCounter = "Duration"
	// DomainCounter counts number of metered domain instances.
	DomainCounter = "Domains"
	// FrameCounter counts rendered frames.
	FrameCounter = "Frames"
	// MessageCounter counts received control messages.
	MessageCounter = "Messages"
	// DropCounter counts data dropped to keep real-time guarantees.
	DropCounter = "Drops"
)

var (
	components = metrics{
		m: make(map[string]*metric),
	}

	counters = []string{
		BlockCounter,
		SampleCounter,
		LatencyCounter,
		DurationCounter,
		DomainCounter,
		FrameCounter,
		MessageCounter,
		DropCounter,
	}
)

// Get metrics values for provided component type.
func Get(component interface{}) map[string]string {
	return getCounters(getType(component))
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(componentType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc returns new Measure closure. This closure is needed to postpone metrics
// capture until domain is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when block is processed. It doesn't
// allocate and can be called from real-time goroutine.
type MeasureFunc func(frames int64)

// Meter creates new meter closure to capture audio block counters.
func Meter(component interface{}, sampleRate float64) ResetFunc {
	metric := components.get(getType(component))
	metric.int(DomainCounter).Add(1)
	blocks := metric.int(BlockCounter)
	samples := metric.int(SampleCounter)
	latency := metric.duration(LatencyCounter)
	total := metric.duration(DurationCounter)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			blockSize     int64
			blockDuration time.Duration
		)
		return func(s int64) {
			now := time.Now()
			latency.set(now.Sub(calledAt))
			blocks.Add(1)
			samples.Add(s)
			// recalculate block duration only when block size has changed
			if blockSize != s {
				blockSize = s
				blockDuration = durationOf(sampleRate, s)
			}
			total.add(blockDuration)
			calledAt = now
		}
	}
}

// Counter returns function that increments named counter of the component.
func Counter(component interface{}, counter string) func(delta int64) {
	v := components.get(getType(component)).int(counter)
	return v.Add
}

// Ticker returns function that counts ticks of the named counter and
// tracks latency between them.
func Ticker(component interface{}, counter string) func() {
	metric := components.get(getType(component))
	ticks := metric.int(counter)
	latency := metric.duration(LatencyCounter)
	var calledAt atomic.Int64
	return func() {
		now := time.Now().UnixNano()
		if prev := calledAt.Swap(now); prev != 0 {
			latency.set(time.Duration(now - prev))
		}
		ticks.Add(1)
	}
}

func durationOf(sampleRate float64, samples int64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / sampleRate * float64(time.Second))
}

type metrics struct {
	sync.Mutex
	m map[string]*metric
}

func (m *metrics) get(componentType string) *metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[componentType]; ok {
		// return existing metric if available
		return metric
	}
	metric := &metric{
		key:       componentType,
		ints:      make(map[string]*expvar.Int),
		durations: make(map[string]*duration),
	}
	m.m[componentType] = metric
	return metric
}

// metric holds published counters of a single component type. Counters
// are created on first use, expvar doesn't allow to publish twice.
type metric struct {
	sync.Mutex
	key       string
	ints      map[string]*expvar.Int
	durations map[string]*duration
}

func (m *metric) int(counter string) *expvar.Int {
	m.Lock()
	defer m.Unlock()
	if v, ok := m.ints[counter]; ok {
		return v
	}
	v := expvar.NewInt(key(m.key, counter))
	m.ints[counter] = v
	return v
}

func (m *metric) duration(counter string) *duration {
	m.Lock()
	defer m.Unlock()
	if v, ok := m.durations[counter]; ok {
		return v
	}
	v := &duration{}
	expvar.Publish(key(m.key, counter), v)
	m.durations[counter] = v
	return v
}

func key(componentType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", domainsLabel, componentType, counter)
}

func getType(component interface{}) string {
	if s, ok := component.(string); ok {
		return s
	}
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
