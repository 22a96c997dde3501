// Package metric holds the subscriber-counted metric registry that the
// dashboard poller feeds.
//
// A Metric is created on first subscription and shared by every later
// subscriber of the same name. Fetched raw samples are pushed into it and
// stored per instance after a kind-specific transform:
//
//	Simple               raw value as-is
//	Cumulative           rate between consecutive raw samples
//	Converted            convert(raw)
//	CumulativeConverted  convert(rate)
//
// Derived metrics are computed from the latest values of other metrics
// through a pure Transform declared up front with its inputs.
package metric

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rileyhilliard/vector/internal/errors"
)

// Kind selects how raw samples are turned into stored values.
type Kind int

const (
	Simple Kind = iota
	Cumulative
	Converted
	CumulativeConverted
)

// String returns the config spelling of the kind.
func (k Kind) String() string {
	switch k {
	case Simple:
		return "simple"
	case Cumulative:
		return "cumulative"
	case Converted:
		return "converted"
	case CumulativeConverted:
		return "cumulative_converted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses the config spelling of a kind. Empty means Simple.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "simple":
		return Simple, nil
	case "cumulative":
		return Cumulative, nil
	case "converted":
		return Converted, nil
	case "cumulative_converted", "cumulative-converted":
		return CumulativeConverted, nil
	default:
		return Simple, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown metric kind '%s'", s),
			"Use one of: simple, cumulative, converted, cumulative_converted")
	}
}

func (k Kind) cumulative() bool { return k == Cumulative || k == CumulativeConverted }

// IsConverted reports whether the kind needs a conversion function.
func (k Kind) IsConverted() bool { return k == Converted || k == CumulativeConverted }

// ConvertFunc transforms a raw value (or a rate) before storage.
type ConvertFunc func(float64) float64

// Scale returns a ConvertFunc multiplying by factor.
func Scale(factor float64) ConvertFunc {
	return func(v float64) float64 { return v * factor }
}

// Metric is a fetched metric shared by all of its subscribers.
type Metric struct {
	mu          sync.RWMutex
	name        string
	kind        Kind
	convert     ConvertFunc
	subscribers int
	series      seriesSet
	prev        map[int]Point // last raw sample per instance id, cumulative kinds only
}

func newMetric(name string, kind Kind, convert ConvertFunc, capacity int) *Metric {
	return &Metric{
		name:        name,
		kind:        kind,
		convert:     convert,
		subscribers: 1,
		series:      newSeriesSet(capacity),
		prev:        make(map[int]Point),
	}
}

// Name returns the PCP metric name.
func (m *Metric) Name() string { return m.name }

// Kind returns the kind chosen by the first subscriber.
func (m *Metric) Kind() Kind { return m.kind }

// Subscribers returns the current subscriber count.
func (m *Metric) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subscribers
}

// Push stores one raw sample for an instance, applying the kind transform.
// It reports whether a point was appended; the first sample of a cumulative
// instance only establishes the baseline.
func (m *Metric) Push(timestamp float64, iid int, iname string, raw float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	value := raw
	if m.kind.cumulative() {
		prev, ok := m.prev[iid]
		if ok && timestamp <= prev.Timestamp {
			// Stale or duplicate sample; keep the newer baseline.
			return false
		}
		m.prev[iid] = Point{Timestamp: timestamp, Value: raw}
		if !ok {
			return false
		}
		delta := raw - prev.Value
		if delta < 0 {
			// Counter reset or wraparound: start over from this sample.
			return false
		}
		value = delta / (timestamp - prev.Timestamp)
	}
	if m.kind.IsConverted() && m.convert != nil {
		value = m.convert(value)
	}

	m.series.getOrCreate(iid, iname).buf.push(Point{Timestamp: timestamp, Value: value})
	return true
}

// Series returns the stored points for the named instance, oldest first.
func (m *Metric) Series(instance string) []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if is := m.series.byName(instance); is != nil {
		return is.buf.getAll()
	}
	return nil
}

// SeriesByID returns the stored points for an instance id, oldest first.
func (m *Metric) SeriesByID(iid int) []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if is, ok := m.series.byID[iid]; ok {
		return is.buf.getAll()
	}
	return nil
}

// Instances returns instance names in first-seen order.
func (m *Metric) Instances() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.series.names()
}

// Latest returns the newest stored value per instance name.
func (m *Metric) Latest() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.series.latest()
}

// ClearData drops all stored points and cumulative baselines. The
// subscriber count is untouched.
func (m *Metric) ClearData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series.clear()
	m.prev = make(map[int]Point)
}

// Snapshot returns a copy of the metric's state.
func (m *Metric) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Name:        m.name,
		Kind:        m.kind.String(),
		Subscribers: m.subscribers,
		Series:      m.series.snapshot(),
	}
}

// Snapshot is a read-only copy of a metric or derived metric.
type Snapshot struct {
	Name        string           `json:"name"`
	Kind        string           `json:"kind"`
	Derived     bool             `json:"derived,omitempty"`
	Inputs      []string         `json:"inputs,omitempty"`
	Subscribers int              `json:"subscribers"`
	Series      []SeriesSnapshot `json:"series"`
}
