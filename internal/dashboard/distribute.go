package dashboard

import (
	"strconv"

	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/rileyhilliard/vector/internal/pmapi"
)

// Distribute pushes every numeric sample of resp, stamped ts, into the
// registry metric of the same name. Samples of metrics nobody subscribes to
// are dropped. It returns the number of points appended.
func Distribute(reg *metric.Registry, resp *pmapi.FetchResponse, ts float64) int {
	if resp == nil {
		return 0
	}
	stored := 0

	for _, mv := range resp.Values {
		m, ok := reg.Lookup(mv.Name)
		if !ok {
			continue
		}
		for _, inst := range mv.Instances {
			raw, ok := inst.Value.Float()
			if !ok {
				continue
			}
			iid := inst.ID()
			if m.Push(ts, iid, instanceName(resp, mv.Name, inst), raw) {
				stored++
			}
		}
	}
	return stored
}

// instanceName resolves the display name of an instance. Metrics without an
// instance domain get "", instances the server did not name get their id.
func instanceName(resp *pmapi.FetchResponse, metricName string, inst pmapi.Instance) string {
	if inst.Instance == nil {
		return ""
	}
	if name := resp.InstanceName(metricName, *inst.Instance); name != "" {
		return name
	}
	return strconv.Itoa(*inst.Instance)
}

// EvaluateDerived computes every derived metric from the latest values of its
// inputs and appends the results at timestamp. It returns the number of
// points appended.
func EvaluateDerived(reg *metric.Registry, timestamp float64) int {
	stored := 0
	for _, d := range reg.Derived() {
		in := make(metric.Inputs)
		for _, name := range d.Inputs() {
			if latest, ok := reg.Latest(name); ok {
				in[name] = latest
			}
		}
		stored += d.Evaluate(timestamp, in)
	}
	return stored
}
