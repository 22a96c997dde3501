package metric

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rileyhilliard/vector/internal/errors"
)

// Inputs maps an input metric name to its latest value per instance.
type Inputs map[string]map[string]float64

// Transform computes per-instance derived values from the latest input values.
// It must be pure: same inputs, same output, no access to anything else.
type Transform func(in Inputs) map[string]float64

// DerivedSpec declares a derived metric and the metrics it reads.
type DerivedSpec struct {
	Name      string
	Inputs    []string
	Transform Transform
}

// DerivedMetric is a metric computed from other metrics' series every tick.
type DerivedMetric struct {
	mu          sync.RWMutex
	spec        DerivedSpec
	subscribers int
	series      seriesSet
	ids         map[string]int // instance name -> synthetic id
}

func newDerivedMetric(spec DerivedSpec, capacity int) *DerivedMetric {
	inputs := make([]string, len(spec.Inputs))
	copy(inputs, spec.Inputs)
	spec.Inputs = inputs
	return &DerivedMetric{
		spec:        spec,
		subscribers: 1,
		series:      newSeriesSet(capacity),
		ids:         make(map[string]int),
	}
}

// Name returns the derived metric's name.
func (d *DerivedMetric) Name() string { return d.spec.Name }

// Inputs returns the names of the metrics the transform reads.
func (d *DerivedMetric) Inputs() []string {
	out := make([]string, len(d.spec.Inputs))
	copy(out, d.spec.Inputs)
	return out
}

// Subscribers returns the current subscriber count.
func (d *DerivedMetric) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subscribers
}

// Evaluate runs the transform over the given inputs and appends the result
// at timestamp. Returns the number of points appended.
func (d *DerivedMetric) Evaluate(timestamp float64, in Inputs) int {
	values := d.spec.Transform(in)
	if len(values) == 0 {
		return 0
	}

	// Deterministic instance ordering for first-seen series.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range names {
		id, ok := d.ids[name]
		if !ok {
			id = len(d.ids) + 1
			d.ids[name] = id
		}
		d.series.getOrCreate(id, name).buf.push(Point{Timestamp: timestamp, Value: values[name]})
	}
	return len(names)
}

// Series returns the stored points for the named instance, oldest first.
func (d *DerivedMetric) Series(instance string) []Point {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if is := d.series.byName(instance); is != nil {
		return is.buf.getAll()
	}
	return nil
}

// Latest returns the newest stored value per instance name.
func (d *DerivedMetric) Latest() map[string]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.series.latest()
}

// ClearData drops all stored points.
func (d *DerivedMetric) ClearData() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.series.clear()
	d.ids = make(map[string]int)
}

// Snapshot returns a copy of the derived metric's state.
func (d *DerivedMetric) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		Name:        d.spec.Name,
		Kind:        "derived",
		Derived:     true,
		Inputs:      d.Inputs(),
		Subscribers: d.subscribers,
		Series:      d.series.snapshot(),
	}
}

// Built-in transform operations usable from config.
const (
	OpSum        = "sum"
	OpDifference = "difference"
	OpRatio      = "ratio"
	OpProduct    = "product"
	OpPercent    = "percent"
)

// TransformFor returns the named built-in transform over inputs.
//
//	sum         a + b + ...
//	difference  a - b - ...
//	product     a * b * ...
//	ratio       a / b        (instances where b is 0 are skipped)
//	percent     a / (a+b) * 100
//
// Instances are matched by name across inputs; an instance missing from any
// input yields no value.
func TransformFor(op string, inputs []string) (Transform, error) {
	op = strings.ToLower(strings.TrimSpace(op))
	minInputs := 1
	switch op {
	case OpSum, OpDifference, OpProduct:
	case OpRatio, OpPercent:
		minInputs = 2
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown derived operation '%s'", op),
			"Use one of: sum, difference, ratio, product, percent")
	}
	if len(inputs) < minInputs {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Derived operation '%s' needs at least %d inputs, got %d", op, minInputs, len(inputs)),
			"List the input metric names under 'inputs'")
	}

	names := make([]string, len(inputs))
	copy(names, inputs)

	return func(in Inputs) map[string]float64 {
		out := make(map[string]float64)
		first := in[names[0]]
	instances:
		for inst, a := range first {
			vals := []float64{a}
			for _, name := range names[1:] {
				v, ok := in[name][inst]
				if !ok {
					continue instances
				}
				vals = append(vals, v)
			}
			switch op {
			case OpSum:
				for _, v := range vals[1:] {
					a += v
				}
			case OpDifference:
				for _, v := range vals[1:] {
					a -= v
				}
			case OpProduct:
				for _, v := range vals[1:] {
					a *= v
				}
			case OpRatio:
				if vals[1] == 0 {
					continue
				}
				a /= vals[1]
			case OpPercent:
				total := a + vals[1]
				if total == 0 {
					continue
				}
				a = a / total * 100
			}
			out[inst] = a
		}
		return out
	}, nil
}
