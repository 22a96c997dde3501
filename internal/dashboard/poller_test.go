package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/flash"
	"github.com/rileyhilliard/vector/internal/logger"
	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPoller returns a poller whose loop never fires on its own.
func newTestPoller(api API, reg *metric.Registry) (*Poller, *flash.Board) {
	board := flash.NewBoard(20)
	p := NewPoller(api, reg, PollerOptions{
		Interval: time.Hour,
		Alerter:  board,
		Logger:   logger.Noop(),
	})
	return p, board
}

func TestPollerStart_InvalidContext(t *testing.T) {
	tests := []struct {
		name string
		host string
		id   int
	}{
		{"no host", "", 5},
		{"unset context", "h1", -1},
		{"zero context", "h1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, board := newTestPoller(&fakeAPI{}, metric.NewRegistry(10))
			p.SetTarget(tt.host, tt.id)

			err := p.Start()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrContext))
			assert.False(t, p.Active())

			last, ok := board.Last(flash.ChannelDashboardError)
			require.True(t, ok)
			assert.Equal(t, flash.MsgInvalidContext, last.Text)
		})
	}
}

func TestPollerStartStop(t *testing.T) {
	p, _ := newTestPoller(&fakeAPI{}, metric.NewRegistry(10))
	p.SetTarget("h1", 5)

	require.NoError(t, p.Start())
	assert.True(t, p.Active())

	// Restarting replaces the loop rather than adding one.
	require.NoError(t, p.Start())
	assert.True(t, p.Active())

	p.Stop()
	assert.False(t, p.Active())
	p.Stop()
	assert.False(t, p.Active())
}

func TestPollerTick_NoMetricsNoFetch(t *testing.T) {
	api := &fakeAPI{resp: diskIOResponse(100, 1)}
	p, _ := newTestPoller(api, metric.NewRegistry(10))
	p.SetTarget("h1", 5)

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, 0, api.polls())
}

func TestPollerTick_NoContextNoFetch(t *testing.T) {
	api := &fakeAPI{resp: diskIOResponse(100, 1)}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")
	p, _ := newTestPoller(api, reg)

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, 0, api.polls())
	assert.Equal(t, 0, p.Failures(), "skipped ticks are not failures")
}

func TestPollerTick_Distributes(t *testing.T) {
	api := &fakeAPI{resp: diskIOResponse(100, 42)}
	reg := metric.NewRegistry(10)
	m, _ := reg.GetOrCreateSimple("disk.io")
	p, _ := newTestPoller(api, reg)
	p.SetTarget("h1", 5)

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, []metric.Point{{Timestamp: 100, Value: 42}}, m.Series("sda"))
}

func TestCircuitBreaker(t *testing.T) {
	api := &fakeAPI{fetchErr: errFetch}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")
	p, board := newTestPoller(api, reg)
	p.SetTarget("h1", 5)
	require.NoError(t, p.Start())
	ctx := context.Background()

	for i := 1; i <= MaxConsecutiveFailures; i++ {
		err := p.Tick(ctx)
		require.Error(t, err)
		assert.False(t, errors.IsCode(err, errors.ErrCircuit))
		assert.Equal(t, i, p.Failures())
		assert.True(t, p.Active(), "loop survives %d failures", i)
	}
	_, alerted := board.Last(flash.ChannelDashboardError)
	assert.False(t, alerted, "individual failures are not surfaced")

	err := p.Tick(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCircuit))
	assert.False(t, p.Active(), "sixth failure stops the loop")
	assert.Equal(t, 0, p.Failures(), "counter resets when the circuit opens")

	last, ok := board.Last(flash.ChannelDashboardError)
	require.True(t, ok)
	assert.Equal(t, flash.MsgCircuitOpen, last.Text)

	// Explicit restart is a fresh attempt.
	require.NoError(t, p.Start())
	err = p.Tick(ctx)
	require.Error(t, err)
	assert.False(t, errors.IsCode(err, errors.ErrCircuit))
	assert.Equal(t, 1, p.Failures())
	assert.True(t, p.Active())
	p.Stop()
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	api := &fakeAPI{fetchErr: errFetch, resp: diskIOResponse(100, 1)}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")
	p, _ := newTestPoller(api, reg)
	p.SetTarget("h1", 5)
	ctx := context.Background()

	for i := 0; i < MaxConsecutiveFailures; i++ {
		_ = p.Tick(ctx)
	}
	assert.Equal(t, MaxConsecutiveFailures, p.Failures())

	api.setFetchErr(nil)
	require.NoError(t, p.Tick(ctx))
	assert.Equal(t, 0, p.Failures())
}

func TestTick_StaleResultDiscarded(t *testing.T) {
	api := &fakeAPI{
		resp:    diskIOResponse(100, 42),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	reg := metric.NewRegistry(10)
	m, _ := reg.GetOrCreateSimple("disk.io")
	p, _ := newTestPoller(api, reg)
	p.SetTarget("h1", 5)
	require.NoError(t, p.Start())

	done := make(chan error, 1)
	go func() { done <- p.Tick(context.Background()) }()

	<-api.started
	p.Stop()
	close(api.release)

	require.NoError(t, <-done)
	assert.Empty(t, m.Series("sda"), "result of a fetch issued before Stop is ignored")
	assert.Equal(t, 0, p.Failures())
}

func TestTick_DerivedSeesCurrentFetch(t *testing.T) {
	api := &fakeAPI{resp: diskIOResponse(100, 42)}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")
	transform, err := metric.TransformFor(metric.OpSum, []string{"disk.io"})
	require.NoError(t, err)
	d, err := reg.GetOrCreateDerived(metric.DerivedSpec{Name: "disk.total", Inputs: []string{"disk.io"}, Transform: transform})
	require.NoError(t, err)

	p, _ := newTestPoller(api, reg)
	p.SetTarget("h1", 5)
	require.NoError(t, p.Tick(context.Background()))

	assert.Equal(t, []metric.Point{{Timestamp: 100, Value: 42}}, d.Series("sda"))
}

func TestTick_DerivedEvaluatedWithoutFetch(t *testing.T) {
	reg := metric.NewRegistry(10)
	m, _ := reg.GetOrCreateSimple("mem.used")
	m.Push(1, 1, "", 3)
	transform, _ := metric.TransformFor(metric.OpProduct, []string{"mem.used", "mem.used"})
	d, _ := reg.GetOrCreateDerived(metric.DerivedSpec{Name: "sq", Inputs: []string{"mem.used", "mem.used"}, Transform: transform})

	api := &fakeAPI{}
	p, _ := newTestPoller(api, reg)
	p.now = func() time.Time { return time.Unix(50, 0) }

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, 0, api.polls())
	assert.Equal(t, []metric.Point{{Timestamp: 50, Value: 9}}, d.Series(""))
}

func TestPollerLoop_Ticks(t *testing.T) {
	api := &fakeAPI{resp: diskIOResponse(100, 1)}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")
	p := NewPoller(api, reg, PollerOptions{Interval: 10 * time.Millisecond, Logger: logger.Noop()})
	p.SetTarget("h1", 5)

	require.NoError(t, p.Start())
	defer p.Stop()

	assert.Eventually(t, func() bool { return api.polls() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestPollerLoop_CircuitStopsLoop(t *testing.T) {
	api := &fakeAPI{fetchErr: errFetch}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")
	board := flash.NewBoard(10)
	p := NewPoller(api, reg, PollerOptions{Interval: 5 * time.Millisecond, Alerter: board, Logger: logger.Noop()})
	p.SetTarget("h1", 5)

	require.NoError(t, p.Start())
	assert.Eventually(t, func() bool { return !p.Active() }, 2*time.Second, 5*time.Millisecond)

	polls := api.polls()
	assert.Equal(t, MaxConsecutiveFailures+1, polls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, api.polls(), "no self-restart")
	assert.Equal(t, 1, board.Len())
}

func TestTick_ZeroTimestampUsesClock(t *testing.T) {
	api := &fakeAPI{resp: diskIOResponse(0, 42)}
	reg := metric.NewRegistry(10)
	m, _ := reg.GetOrCreateSimple("disk.io")
	transform, _ := metric.TransformFor(metric.OpSum, []string{"disk.io"})
	d, _ := reg.GetOrCreateDerived(metric.DerivedSpec{Name: "disk.total", Inputs: []string{"disk.io"}, Transform: transform})

	p, _ := newTestPoller(api, reg)
	p.now = func() time.Time { return time.Unix(50, 0) }
	p.SetTarget("h1", 5)

	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, []metric.Point{{Timestamp: 50, Value: 42}}, m.Series("sda"))
	assert.Equal(t, []metric.Point{{Timestamp: 50, Value: 42}}, d.Series("sda"), "fetched and derived points share the tick's time")
}

func TestPollerStart_ResetsFailures(t *testing.T) {
	api := &fakeAPI{fetchErr: errFetch}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")
	p, _ := newTestPoller(api, reg)
	p.SetTarget("h1", 5)
	ctx := context.Background()

	for i := 0; i < MaxConsecutiveFailures; i++ {
		_ = p.Tick(ctx)
	}
	require.Equal(t, MaxConsecutiveFailures, p.Failures())

	p.SetTarget("h2", 7)
	require.NoError(t, p.Start())
	defer p.Stop()
	assert.Equal(t, 0, p.Failures())

	err := p.Tick(ctx)
	require.Error(t, err)
	assert.False(t, errors.IsCode(err, errors.ErrCircuit), "failures on the previous target do not count")
	assert.True(t, p.Active())
}

func TestPoller_AlerterMayReadState(t *testing.T) {
	api := &fakeAPI{fetchErr: errFetch}
	reg := metric.NewRegistry(10)
	_, _ = reg.GetOrCreateSimple("disk.io")

	var p *Poller
	var seen []bool
	p = NewPoller(api, reg, PollerOptions{
		Interval: time.Hour,
		Logger:   logger.Noop(),
		Alerter: flash.AlerterFunc(func(string, string) {
			seen = append(seen, p.Active())
			_ = p.Failures()
		}),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Start()
		p.SetTarget("h1", 5)
		_ = p.Start()
		for i := 0; i <= MaxConsecutiveFailures; i++ {
			_ = p.Tick(context.Background())
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alerter calling back into the poller deadlocked")
	}
	assert.Equal(t, []bool{false, false}, seen)
}
