package metric

import (
	"sync"
	"testing"

	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		expected int
	}{
		{"default capacity", 0, DefaultCapacity},
		{"negative capacity", -3, DefaultCapacity},
		{"custom capacity", 61, 61},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(tt.capacity)
			assert.Equal(t, tt.expected, r.capacity)
			assert.Equal(t, 0, r.Len())
			assert.Equal(t, 0, r.DerivedLen())
		})
	}
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	r := NewRegistry(10)

	first, err := r.GetOrCreateSimple("disk.io")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Subscribers())

	second, err := r.GetOrCreateSimple("disk.io")
	require.NoError(t, err)
	assert.Same(t, first, second, "same name must return the shared object")
	assert.Equal(t, 2, first.Subscribers())

	third, err := r.GetOrCreateSimple("disk.io")
	require.NoError(t, err)
	assert.Same(t, first, third)
	assert.Equal(t, 3, first.Subscribers())

	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreate_PreservesInsertionOrder(t *testing.T) {
	r := NewRegistry(10)
	for _, name := range []string{"kernel.all.load", "mem.util.used", "disk.dev.read"} {
		_, err := r.GetOrCreateSimple(name)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"kernel.all.load", "mem.util.used", "disk.dev.read"}, r.Names())
}

func TestGetOrCreate_SharedAcrossKindHelpers(t *testing.T) {
	r := NewRegistry(10)

	m, err := r.GetOrCreateCumulative("network.interface.in.bytes")
	require.NoError(t, err)

	again, err := r.GetOrCreate("network.interface.in.bytes", Cumulative, nil)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Equal(t, 2, m.Subscribers())
}

func TestGetOrCreate_KindMismatch(t *testing.T) {
	r := NewRegistry(10)

	m, err := r.GetOrCreateCumulative("kernel.all.cpu.user")
	require.NoError(t, err)

	_, err = r.GetOrCreateSimple("kernel.all.cpu.user")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRegistry))
	assert.Equal(t, 1, m.Subscribers(), "mismatch must not add a subscriber")
	assert.Equal(t, Cumulative, m.Kind())
}

func TestGetOrCreate_Validation(t *testing.T) {
	r := NewRegistry(10)

	_, err := r.GetOrCreateSimple("")
	assert.True(t, errors.IsCode(err, errors.ErrRegistry))

	_, err = r.GetOrCreateConverted("mem.util.used", nil)
	assert.True(t, errors.IsCode(err, errors.ErrRegistry))

	_, err = r.GetOrCreateCumulativeConverted("disk.all.read_bytes", nil)
	assert.True(t, errors.IsCode(err, errors.ErrRegistry))

	assert.Equal(t, 0, r.Len())
}

func TestDestroy_ReferenceCounted(t *testing.T) {
	r := NewRegistry(10)

	m, _ := r.GetOrCreateSimple("disk.io")
	_, _ = r.GetOrCreateSimple("disk.io")

	require.NoError(t, r.Destroy("disk.io"))
	assert.Equal(t, 1, m.Subscribers())
	_, ok := r.Lookup("disk.io")
	assert.True(t, ok, "still has one subscriber")

	require.NoError(t, r.Destroy("disk.io"))
	_, ok = r.Lookup("disk.io")
	assert.False(t, ok, "removed once count reaches 0")
	assert.Empty(t, r.Names())
}

func TestDestroy_RecreateIsFresh(t *testing.T) {
	r := NewRegistry(10)

	old, _ := r.GetOrCreateSimple("disk.io")
	old.Push(100, 1, "sda", 42)
	require.NoError(t, r.Destroy("disk.io"))

	fresh, err := r.GetOrCreateSimple("disk.io")
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.Equal(t, 1, fresh.Subscribers())
	assert.Empty(t, fresh.Series("sda"), "no residual state bleeds through")
}

func TestDestroy_UnknownName(t *testing.T) {
	r := NewRegistry(10)

	err := r.Destroy("never.registered")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRegistry))

	err = r.DestroyDerived("never.registered")
	assert.True(t, errors.IsCode(err, errors.ErrRegistry))
}

func TestDestroy_KeepsOthersInOrder(t *testing.T) {
	r := NewRegistry(10)
	for _, name := range []string{"a", "b", "c"} {
		_, _ = r.GetOrCreateSimple(name)
	}

	require.NoError(t, r.Destroy("b"))
	assert.Equal(t, []string{"a", "c"}, r.Names())
}

func TestSubscriberCountNeverNegative(t *testing.T) {
	r := NewRegistry(10)
	ops := []struct {
		create bool
		name   string
	}{
		{true, "a"}, {true, "b"}, {true, "a"}, {false, "a"},
		{true, "b"}, {false, "b"}, {false, "a"}, {false, "b"},
		{true, "a"}, {false, "a"},
	}

	for _, op := range ops {
		if op.create {
			_, err := r.GetOrCreateSimple(op.name)
			require.NoError(t, err)
		} else {
			require.NoError(t, r.Destroy(op.name))
		}
		for _, m := range r.Metrics() {
			assert.GreaterOrEqual(t, m.Subscribers(), 1)
		}
	}
	assert.Equal(t, 0, r.Len())
}

func TestClearAll_KeepsEntriesAndCounts(t *testing.T) {
	r := NewRegistry(10)

	m, _ := r.GetOrCreateSimple("disk.io")
	_, _ = r.GetOrCreateSimple("disk.io")
	m.Push(100, 1, "sda", 42)
	require.Len(t, m.Series("sda"), 1)

	r.ClearAll()

	assert.Empty(t, m.Series("sda"))
	again, err := r.GetOrCreateSimple("disk.io")
	require.NoError(t, err)
	assert.Same(t, m, again, "clearing must not re-create")
	assert.Equal(t, 3, again.Subscribers())
}

func TestDerived_Lifecycle(t *testing.T) {
	r := NewRegistry(10)
	transform, err := TransformFor(OpSum, []string{"a", "b"})
	require.NoError(t, err)
	spec := DerivedSpec{Name: "a+b", Inputs: []string{"a", "b"}, Transform: transform}

	d, err := r.GetOrCreateDerived(spec)
	require.NoError(t, err)
	again, err := r.GetOrCreateDerived(spec)
	require.NoError(t, err)
	assert.Same(t, d, again)
	assert.Equal(t, 2, d.Subscribers())

	// Derived metrics live in their own list.
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.DerivedLen())
	_, ok := r.Lookup("a+b")
	assert.False(t, ok)

	d.Evaluate(10, Inputs{"a": {"x": 1}, "b": {"x": 2}})
	r.ClearAllDerived()
	assert.Empty(t, d.Series("x"))
	assert.Equal(t, 2, d.Subscribers())

	require.NoError(t, r.DestroyDerived("a+b"))
	require.NoError(t, r.DestroyDerived("a+b"))
	assert.Equal(t, 0, r.DerivedLen())
}

func TestDerived_RequiresTransform(t *testing.T) {
	r := NewRegistry(10)
	_, err := r.GetOrCreateDerived(DerivedSpec{Name: "broken"})
	assert.True(t, errors.IsCode(err, errors.ErrRegistry))
	assert.Equal(t, 0, r.DerivedLen())
}

func TestRegistryLatest(t *testing.T) {
	r := NewRegistry(10)
	m, _ := r.GetOrCreateSimple("kernel.all.load")
	m.Push(1, 1, "1 minute", 0.5)
	m.Push(2, 1, "1 minute", 0.7)

	latest, ok := r.Latest("kernel.all.load")
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"1 minute": 0.7}, latest)

	_, ok = r.Latest("missing")
	assert.False(t, ok)
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry(10)
	m, _ := r.GetOrCreateSimple("disk.io")
	m.Push(100, 1, "sda", 42)
	transform, _ := TransformFor(OpSum, []string{"disk.io"})
	_, _ = r.GetOrCreateDerived(DerivedSpec{Name: "total", Inputs: []string{"disk.io"}, Transform: transform})

	snaps := r.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, "disk.io", snaps[0].Name)
	assert.Equal(t, "simple", snaps[0].Kind)
	require.Len(t, snaps[0].Series, 1)
	assert.Equal(t, []Point{{Timestamp: 100, Value: 42}}, snaps[0].Series[0].Points)
	assert.True(t, snaps[1].Derived)
	assert.Equal(t, []string{"disk.io"}, snaps[1].Inputs)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(10)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := r.GetOrCreateSimple("disk.io")
			if err == nil {
				m.Push(1, 1, "sda", 1)
			}
			_ = r.Names()
		}()
	}
	wg.Wait()

	m, ok := r.Lookup("disk.io")
	require.True(t, ok)
	assert.Equal(t, 50, m.Subscribers())
}
