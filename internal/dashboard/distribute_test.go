package dashboard

import (
	"testing"

	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/rileyhilliard/vector/internal/pmapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistribute(t *testing.T) {
	reg := metric.NewRegistry(10)
	disk, _ := reg.GetOrCreateSimple("disk.io")
	load, _ := reg.GetOrCreateSimple("kernel.all.load")

	resp := &pmapi.FetchResponse{
		Timestamp: 100,
		Values: []pmapi.MetricValues{
			{Name: "disk.io", Instances: []pmapi.Instance{
				{Instance: intPtr(1), Value: pmapi.NumberValue(42)},
				{Instance: intPtr(2), Value: pmapi.NumberValue(7)},
			}},
			{Name: "kernel.all.load", Instances: []pmapi.Instance{
				{Value: pmapi.NumberValue(0.5)},
			}},
			{Name: "unsubscribed.metric", Instances: []pmapi.Instance{
				{Value: pmapi.NumberValue(1)},
			}},
		},
		InstanceNames: map[string]map[int]string{"disk.io": {1: "sda"}},
	}

	n := Distribute(reg, resp, 100)
	assert.Equal(t, 3, n)

	assert.Equal(t, []metric.Point{{Timestamp: 100, Value: 42}}, disk.Series("sda"))
	assert.Equal(t, []metric.Point{{Timestamp: 100, Value: 7}}, disk.Series("2"), "unnamed instances fall back to their id")
	assert.Equal(t, []metric.Point{{Timestamp: 100, Value: 0.5}}, load.SeriesByID(1), "no instance domain means instance 1")
	_, ok := reg.Lookup("unsubscribed.metric")
	assert.False(t, ok, "unmatched names are dropped, not registered")
}

func TestDistribute_SkipsNonNumeric(t *testing.T) {
	reg := metric.NewRegistry(10)
	m, _ := reg.GetOrCreateSimple("pmcd.hostname")

	n := Distribute(reg, &pmapi.FetchResponse{
		Timestamp: 1,
		Values: []pmapi.MetricValues{{
			Name:      "pmcd.hostname",
			Instances: []pmapi.Instance{{Value: pmapi.StringValue("box-1")}},
		}},
	}, 1)
	assert.Equal(t, 0, n)
	assert.Empty(t, m.Instances())
}

func TestDistribute_Cumulative(t *testing.T) {
	reg := metric.NewRegistry(10)
	m, _ := reg.GetOrCreateCumulative("disk.io")

	assert.Equal(t, 0, Distribute(reg, diskIOResponse(0, 10), 0))
	assert.Equal(t, 1, Distribute(reg, diskIOResponse(10, 30), 10))
	assert.Equal(t, []metric.Point{{Timestamp: 10, Value: 2}}, m.Series("sda"))
}

func TestDistribute_Nil(t *testing.T) {
	assert.Equal(t, 0, Distribute(metric.NewRegistry(1), nil, 1))
}

func TestEvaluateDerived(t *testing.T) {
	reg := metric.NewRegistry(10)
	used, _ := reg.GetOrCreateSimple("mem.used")
	free, _ := reg.GetOrCreateSimple("mem.free")
	used.Push(1, 1, "", 25)
	free.Push(1, 1, "", 75)

	pct, err := metric.TransformFor(metric.OpPercent, []string{"mem.used", "mem.free"})
	require.NoError(t, err)
	d, _ := reg.GetOrCreateDerived(metric.DerivedSpec{Name: "mem.pct", Inputs: []string{"mem.used", "mem.free"}, Transform: pct})

	// A derived metric may read another derived metric.
	double, _ := metric.TransformFor(metric.OpSum, []string{"mem.pct", "mem.pct"})
	d2, _ := reg.GetOrCreateDerived(metric.DerivedSpec{Name: "mem.pct2", Inputs: []string{"mem.pct", "mem.pct"}, Transform: double})

	n := EvaluateDerived(reg, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, []metric.Point{{Timestamp: 2, Value: 25}}, d.Series(""))
	assert.Equal(t, []metric.Point{{Timestamp: 2, Value: 50}}, d2.Series(""))
}

func TestEvaluateDerived_MissingInputs(t *testing.T) {
	reg := metric.NewRegistry(10)
	sum, _ := metric.TransformFor(metric.OpSum, []string{"absent"})
	d, _ := reg.GetOrCreateDerived(metric.DerivedSpec{Name: "x", Inputs: []string{"absent"}, Transform: sum})

	assert.Equal(t, 0, EvaluateDerived(reg, 1))
	assert.Empty(t, d.Latest())
}
