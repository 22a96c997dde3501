package metric

import (
	"testing"

	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformFor(t *testing.T) {
	in := Inputs{
		"a": {"cpu0": 30, "cpu1": 10, "only-a": 1},
		"b": {"cpu0": 10, "cpu1": 0},
	}

	tests := []struct {
		op   string
		want map[string]float64
	}{
		{OpSum, map[string]float64{"cpu0": 40, "cpu1": 10}},
		{OpDifference, map[string]float64{"cpu0": 20, "cpu1": 10}},
		{OpProduct, map[string]float64{"cpu0": 300, "cpu1": 0}},
		{OpRatio, map[string]float64{"cpu0": 3}},
		{OpPercent, map[string]float64{"cpu0": 75, "cpu1": 100}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			transform, err := TransformFor(tt.op, []string{"a", "b"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, transform(in))
		})
	}
}

func TestTransformFor_SingleInput(t *testing.T) {
	transform, err := TransformFor(OpSum, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"x": 2}, transform(Inputs{"a": {"x": 2}}))
	assert.Empty(t, transform(Inputs{}), "missing input yields nothing")
}

func TestTransformFor_Errors(t *testing.T) {
	_, err := TransformFor("median", []string{"a"})
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	_, err = TransformFor(OpRatio, []string{"a"})
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	_, err = TransformFor(OpSum, nil)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestDerivedEvaluate(t *testing.T) {
	transform, err := TransformFor(OpPercent, []string{"used", "free"})
	require.NoError(t, err)
	d := newDerivedMetric(DerivedSpec{Name: "mem.pct", Inputs: []string{"used", "free"}, Transform: transform}, 5)

	n := d.Evaluate(100, Inputs{"used": {"": 1}, "free": {"": 3}})
	assert.Equal(t, 1, n)
	assert.Equal(t, []Point{{Timestamp: 100, Value: 25}}, d.Series(""))

	n = d.Evaluate(102, Inputs{"used": {"": 1}})
	assert.Equal(t, 0, n, "incomplete inputs produce no point")
	assert.Equal(t, map[string]float64{"": 25}, d.Latest())
}

func TestDerivedSpecInputsAreCopied(t *testing.T) {
	inputs := []string{"a", "b"}
	transform, _ := TransformFor(OpSum, inputs)
	d := newDerivedMetric(DerivedSpec{Name: "s", Inputs: inputs, Transform: transform}, 5)

	inputs[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, d.Inputs())

	got := d.Inputs()
	got[1] = "mutated"
	assert.Equal(t, []string{"a", "b"}, d.Inputs())
}
