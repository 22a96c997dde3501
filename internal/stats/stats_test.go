package stats

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Counters(t *testing.T) {
	s := New()

	s.Tick()
	s.Tick()
	s.Fetch(10*time.Millisecond, nil)
	s.Fetch(20*time.Millisecond, errors.New("boom"))
	s.Points(3)
	s.Points(0)
	s.CircuitOpen()
	s.Acquisition(nil)
	s.Acquisition(errors.New("refused"))
	s.Acquisition(errors.New("refused"))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.ticks))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.fetches))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.fetchFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.samples))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.circuitOpens))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.acquisitions.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.acquisitions.WithLabelValues(ResultFailure)))
}

func TestStats_Gauges(t *testing.T) {
	s := New()

	s.PollerActive(true)
	s.Registered(4, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.pollerActive))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.subscribed))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.derived))

	s.PollerActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.pollerActive))
}

func TestStats_NilSafe(t *testing.T) {
	var s *Stats
	assert.NotPanics(t, func() {
		s.Tick()
		s.Fetch(time.Second, nil)
		s.Points(1)
		s.CircuitOpen()
		s.Acquisition(nil)
		s.PollerActive(true)
		s.Registered(1, 1)
	})
	assert.Nil(t, s.Registry())
}

func TestStats_Handler(t *testing.T) {
	s := New()
	s.Tick()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "vector_poller_ticks_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
