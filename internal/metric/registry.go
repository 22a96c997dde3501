package metric

import (
	"fmt"
	"sync"

	"github.com/rileyhilliard/vector/internal/errors"
)

// Registry is the deduplicated, subscriber-counted store of metrics and
// derived metrics. Both lists keep insertion order. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	capacity int
	metrics  []*Metric
	derived  []*DerivedMetric
}

// NewRegistry creates an empty registry whose series hold capacity points
// per instance (DefaultCapacity when <= 0).
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{capacity: capacity}
}

// GetOrCreate returns the metric registered under name, adding a subscriber,
// or creates it with one subscriber. Every caller registering the same name
// shares the returned object.
//
// Asking for a different kind than the one the metric was created with is an
// error and leaves the subscriber count untouched.
func (r *Registry) GetOrCreate(name string, kind Kind, convert ConvertFunc) (*Metric, error) {
	if name == "" {
		return nil, errors.New(errors.ErrRegistry, "Metric name is empty", "Pass a PCP metric name such as kernel.all.load")
	}
	if kind.IsConverted() && convert == nil {
		return nil, errors.New(errors.ErrRegistry,
			fmt.Sprintf("Metric '%s' is %s but has no conversion function", name, kind),
			"Pass a conversion function, or register it as simple/cumulative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m := r.findLocked(name); m != nil {
		if m.kind != kind {
			return nil, errors.New(errors.ErrRegistry,
				fmt.Sprintf("Metric '%s' is already registered as %s, not %s", name, m.kind, kind),
				"Subscribe with the same kind as the existing subscribers")
		}
		m.mu.Lock()
		m.subscribers++
		m.mu.Unlock()
		return m, nil
	}

	m := newMetric(name, kind, convert, r.capacity)
	r.metrics = append(r.metrics, m)
	return m, nil
}

// GetOrCreateSimple registers a metric stored as-is.
func (r *Registry) GetOrCreateSimple(name string) (*Metric, error) {
	return r.GetOrCreate(name, Simple, nil)
}

// GetOrCreateCumulative registers a counter metric stored as a rate.
func (r *Registry) GetOrCreateCumulative(name string) (*Metric, error) {
	return r.GetOrCreate(name, Cumulative, nil)
}

// GetOrCreateConverted registers a metric stored as convert(raw).
func (r *Registry) GetOrCreateConverted(name string, convert ConvertFunc) (*Metric, error) {
	return r.GetOrCreate(name, Converted, convert)
}

// GetOrCreateCumulativeConverted registers a counter metric stored as convert(rate).
func (r *Registry) GetOrCreateCumulativeConverted(name string, convert ConvertFunc) (*Metric, error) {
	return r.GetOrCreate(name, CumulativeConverted, convert)
}

// GetOrCreateDerived is GetOrCreate for derived metrics. An existing derived
// metric keeps its original spec.
func (r *Registry) GetOrCreateDerived(spec DerivedSpec) (*DerivedMetric, error) {
	if spec.Name == "" {
		return nil, errors.New(errors.ErrRegistry, "Derived metric name is empty", "Give the derived metric a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d := r.findDerivedLocked(spec.Name); d != nil {
		d.mu.Lock()
		d.subscribers++
		d.mu.Unlock()
		return d, nil
	}

	if spec.Transform == nil {
		return nil, errors.New(errors.ErrRegistry,
			fmt.Sprintf("Derived metric '%s' has no transform", spec.Name),
			"Pass a Transform, e.g. one from metric.TransformFor")
	}

	d := newDerivedMetric(spec, r.capacity)
	r.derived = append(r.derived, d)
	return d, nil
}

// Destroy drops one subscriber from name and removes the metric when none
// are left. Destroying a name that is not registered is an error.
func (r *Registry) Destroy(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.metrics {
		if m.name != name {
			continue
		}
		m.mu.Lock()
		m.subscribers--
		remaining := m.subscribers
		m.mu.Unlock()
		if remaining < 1 {
			r.metrics = append(r.metrics[:i], r.metrics[i+1:]...)
		}
		return nil
	}
	return notRegistered(name)
}

// DestroyDerived is Destroy for derived metrics.
func (r *Registry) DestroyDerived(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, d := range r.derived {
		if d.spec.Name != name {
			continue
		}
		d.mu.Lock()
		d.subscribers--
		remaining := d.subscribers
		d.mu.Unlock()
		if remaining < 1 {
			r.derived = append(r.derived[:i], r.derived[i+1:]...)
		}
		return nil
	}
	return notRegistered(name)
}

// ClearAll wipes the stored series of every metric. Entries and subscriber
// counts are untouched.
func (r *Registry) ClearAll() {
	for _, m := range r.Metrics() {
		m.ClearData()
	}
}

// ClearAllDerived wipes the stored series of every derived metric.
func (r *Registry) ClearAllDerived() {
	for _, d := range r.Derived() {
		d.ClearData()
	}
}

// Names returns registered metric names in insertion order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.metrics))
	for _, m := range r.metrics {
		names = append(names, m.name)
	}
	return names
}

// Len returns the number of registered metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.metrics)
}

// DerivedLen returns the number of registered derived metrics.
func (r *Registry) DerivedLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.derived)
}

// Lookup returns the metric registered under name.
func (r *Registry) Lookup(name string) (*Metric, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.findLocked(name)
	return m, m != nil
}

// LookupDerived returns the derived metric registered under name.
func (r *Registry) LookupDerived(name string) (*DerivedMetric, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.findDerivedLocked(name)
	return d, d != nil
}

// Metrics returns the registered metrics in insertion order. The slice is a
// copy; the metrics are shared.
func (r *Registry) Metrics() []*Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// Derived returns the registered derived metrics in insertion order.
func (r *Registry) Derived() []*DerivedMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DerivedMetric, len(r.derived))
	copy(out, r.derived)
	return out
}

// Latest returns the newest per-instance values of a metric or, failing
// that, a derived metric.
func (r *Registry) Latest(name string) (map[string]float64, bool) {
	if m, ok := r.Lookup(name); ok {
		return m.Latest(), true
	}
	if d, ok := r.LookupDerived(name); ok {
		return d.Latest(), true
	}
	return nil, false
}

// Snapshot copies every metric followed by every derived metric.
func (r *Registry) Snapshot() []Snapshot {
	metrics := r.Metrics()
	derived := r.Derived()
	out := make([]Snapshot, 0, len(metrics)+len(derived))
	for _, m := range metrics {
		out = append(out, m.Snapshot())
	}
	for _, d := range derived {
		out = append(out, d.Snapshot())
	}
	return out
}

// findLocked must be called with r.mu held.
func (r *Registry) findLocked(name string) *Metric {
	for _, m := range r.metrics {
		if m.name == name {
			return m
		}
	}
	return nil
}

// findDerivedLocked must be called with r.mu held.
func (r *Registry) findDerivedLocked(name string) *DerivedMetric {
	for _, d := range r.derived {
		if d.spec.Name == name {
			return d
		}
	}
	return nil
}

func notRegistered(name string) error {
	return errors.New(errors.ErrRegistry,
		fmt.Sprintf("Metric '%s' is not registered", name),
		"Only destroy metrics you subscribed to")
}
