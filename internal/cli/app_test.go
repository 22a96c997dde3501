package cli

import (
	"bytes"
	"testing"

	"github.com/rileyhilliard/vector/internal/config"
	"github.com/rileyhilliard/vector/internal/dashboard"
	"github.com/rileyhilliard/vector/internal/logger"
	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildApp_Subscriptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Host = "perf01"
	cfg.Metrics = []config.MetricConfig{
		{Name: "mem.used", Kind: "converted", Scale: 0.5},
		{Name: "mem.free"},
	}
	cfg.Derived = []config.DerivedConfig{
		{Name: "mem.pct", Op: "percent", Inputs: []string{"mem.used", "mem.free"}},
	}

	a, err := buildApp(cfg, "", &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 2, a.reg.Len())
	assert.Equal(t, 1, a.reg.DerivedLen())
	used, ok := a.reg.Lookup("mem.used")
	require.True(t, ok)
	assert.Equal(t, metric.Converted, used.Kind())

	s := a.mgr.Session()
	assert.Equal(t, "perf01", s.Host)
	assert.Equal(t, dashboard.StateUnset, s.State)
	assert.Equal(t, cfg.Interval, s.Interval)
	assert.Nil(t, a.tunnel)
}

func TestBuildApp_BadDerived(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Derived = []config.DerivedConfig{{Name: "x", Op: "median", Inputs: []string{"a"}}}

	_, err := buildApp(cfg, "", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBuildApp_ConvertedWithoutScale(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics = []config.MetricConfig{{Name: "mem.util.used", Kind: "converted"}}

	_, err := buildApp(cfg, "", &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestNewClient_Tunnel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tunnel.SSH = "ops@bastion"

	client, tunnel := newClient(cfg, logger.Noop())
	require.NotNil(t, client)
	require.NotNil(t, tunnel)
	assert.Equal(t, "ops@bastion", tunnel.Host())
	assert.False(t, tunnel.Connected(), "nothing is dialed until the first request")
}
