package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rileyhilliard/vector/internal/config"
	"github.com/rileyhilliard/vector/internal/errors"
	pmapitest "github.com/rileyhilliard/vector/internal/pmapi/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRunFetch(t *testing.T) {
	srv := pmapitest.NewFakeServer()
	defer srv.Close()
	srv.SetNextContext(9)
	srv.SetTimestamp(1700000000.5)
	srv.SetInstance("disk.dev.read", 0, "sda", 10)
	srv.SetInstance("disk.dev.read", 1, "sdb", 20)
	srv.SetSingular("pmcd.hostname", "perf01")

	cfg := config.DefaultConfig()
	cfg.Host = srv.Addr()
	cfg.RequestTimeout = 2 * time.Second

	var buf bytes.Buffer
	require.NoError(t, runFetch(context.Background(), cfg, []string{"disk.dev.read", "pmcd.hostname"}, &buf))

	var out fetchOutput
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 9, out.Context)
	assert.Equal(t, "2023-11-14T22:13:20.5Z", out.Timestamp)
	require.Len(t, out.Metrics, 2)

	byName := map[string]fetchedMetric{}
	for _, m := range out.Metrics {
		byName[m.Name] = m
	}
	disk := byName["disk.dev.read"]
	require.Len(t, disk.Instances, 2)
	names := []string{disk.Instances[0].Name, disk.Instances[1].Name}
	assert.ElementsMatch(t, []string{"sda", "sdb"}, names)

	host := byName["pmcd.hostname"]
	require.Len(t, host.Instances, 1)
	assert.Equal(t, "perf01", host.Instances[0].Value)
	assert.Nil(t, host.Instances[0].ID)

	assert.Equal(t, cfg.PMCD, srv.ContextCalls()[0].Get("hostspec"))
}

func TestRunFetch_NoHost(t *testing.T) {
	err := runFetch(context.Background(), config.DefaultConfig(), []string{"x"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestRunFetch_ContextFailure(t *testing.T) {
	srv := pmapitest.NewFakeServer()
	defer srv.Close()
	srv.SetFailContext(true)

	cfg := config.DefaultConfig()
	cfg.Host = srv.Addr()

	err := runFetch(context.Background(), cfg, []string{"x"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAcquire))
}
