package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rileyhilliard/vector/internal/pmapi"
)

var errFetch = errors.New("connection refused")

// fakeAPI is an in-memory API. Fetches of pmcd.hostname and trigger metrics
// are answered but not counted as poll fetches.
type fakeAPI struct {
	mu          sync.Mutex
	contextID   int
	contextErr  error
	fetchErr    error
	resp        *pmapi.FetchResponse
	hostname    string
	indom       map[int]string
	pollFetches int
	auxFetches  []string
	contexts    []string // hostspecs requested

	// When set, poll fetches signal started and then wait for release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeAPI) CreateContext(_ context.Context, _ string, hostspec string, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, hostspec)
	if f.contextErr != nil {
		return 0, f.contextErr
	}
	return f.contextID, nil
}

func (f *fakeAPI) Fetch(_ context.Context, _ string, _ int, names []string) (*pmapi.FetchResponse, error) {
	if len(names) == 1 && (names[0] == HostnameMetric || names[0] == "generic.systack" || names[0] == "generic.heatmap") {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auxFetches = append(f.auxFetches, names[0])
		if names[0] != HostnameMetric && f.fetchErr != nil {
			return nil, f.fetchErr
		}
		return &pmapi.FetchResponse{Values: []pmapi.MetricValues{{
			Name:      names[0],
			Instances: []pmapi.Instance{{Value: pmapi.StringValue(f.hostname)}},
		}}}, nil
	}

	f.mu.Lock()
	started, release := f.started, f.release
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollFetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.resp, nil
}

func (f *fakeAPI) InstanceDomain(_ context.Context, _ string, _ int, _ string, _ []int) (map[int]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indom, nil
}

func (f *fakeAPI) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeAPI) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollFetches
}

func intPtr(i int) *int { return &i }

// diskIOResponse is a _fetch result for disk.io instance 1 ("sda").
func diskIOResponse(ts float64, value float64) *pmapi.FetchResponse {
	return &pmapi.FetchResponse{
		Timestamp: pmapi.Timestamp(ts),
		Values: []pmapi.MetricValues{{
			Name:      "disk.io",
			Instances: []pmapi.Instance{{Instance: intPtr(1), Value: pmapi.NumberValue(value)}},
		}},
		InstanceNames: map[string]map[int]string{"disk.io": {1: "sda"}},
	}
}
