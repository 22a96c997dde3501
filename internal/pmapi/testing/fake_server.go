// Package testing provides an in-process pmwebapi fake for tests.
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// IllegalContextCode is the pmwebapi error code for an unknown context id.
const IllegalContextCode = -12376

type sample struct {
	iid   *int
	iname string
	value any
}

// FakeServer simulates the subset of pmwebapi the client uses. Context ids
// are handed out sequentially, starting at 1 unless SetNextContext says
// otherwise.
type FakeServer struct {
	*httptest.Server

	mu           sync.Mutex
	nextContext  int
	contexts     map[int]string // id -> hostspec
	timestamp    float64
	samples      map[string][]sample
	failFetch    bool
	failContext  bool
	fetchCalls   int
	indomCalls   int
	contextCalls []url.Values
	fetchNames   [][]string
}

// NewFakeServer starts a fake pmwebapi. Callers must Close it.
func NewFakeServer() *FakeServer {
	f := &FakeServer{
		nextContext: 1,
		contexts:    make(map[int]string),
		samples:     make(map[string][]sample),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// Addr returns the listener's host:port.
func (f *FakeServer) Addr() string {
	return strings.TrimPrefix(f.URL, "http://")
}

// SetNextContext sets the id the next context request receives.
func (f *FakeServer) SetNextContext(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextContext = id
}

// SetTimestamp sets the timestamp (seconds) reported by _fetch.
func (f *FakeServer) SetTimestamp(ts float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timestamp = ts
}

// SetInstance sets the value of one instance of an instanced metric.
func (f *FakeServer) SetInstance(metric string, iid int, iname string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := iid
	f.setLocked(metric, sample{iid: &id, iname: iname, value: value})
}

// SetSingular sets the value of a metric without an instance domain.
func (f *FakeServer) SetSingular(metric string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(metric, sample{value: value})
}

func (f *FakeServer) setLocked(metric string, s sample) {
	list := f.samples[metric]
	for i, existing := range list {
		if sameInstance(existing.iid, s.iid) {
			list[i] = s
			f.samples[metric] = list
			return
		}
	}
	f.samples[metric] = append(list, s)
}

// SetFailFetch makes _fetch return HTTP 500 while set.
func (f *FakeServer) SetFailFetch(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFetch = fail
}

// SetFailContext makes context creation return HTTP 500 while set.
func (f *FakeServer) SetFailContext(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failContext = fail
}

// DropContexts forgets every context, as a pmwebd restart would.
func (f *FakeServer) DropContexts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = make(map[int]string)
}

// FetchCalls returns how many _fetch requests were served.
func (f *FakeServer) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// IndomCalls returns how many _indom requests were served.
func (f *FakeServer) IndomCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indomCalls
}

// FetchNames returns the names requested by each _fetch call.
func (f *FakeServer) FetchNames() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.fetchNames))
	copy(out, f.fetchNames)
	return out
}

// ContextCalls returns the query of each context request.
func (f *FakeServer) ContextCalls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.contextCalls))
	copy(out, f.contextCalls)
	return out
}

func (f *FakeServer) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/pmapi/")
	if path == r.URL.Path {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if path == "context" {
		f.handleContext(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil || f.contexts[id] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Attempt to use an illegal context",
			"code":    IllegalContextCode,
		})
		return
	}

	switch parts[1] {
	case "_fetch":
		f.handleFetch(w, r)
	case "_indom":
		f.handleIndom(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeServer) handleContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.contextCalls = append(f.contextCalls, q)
	if f.failContext {
		http.Error(w, "cannot connect to pmcd", http.StatusInternalServerError)
		return
	}
	hostspec := q.Get("hostspec")
	if hostspec == "" {
		hostspec = "local:"
	}
	id := f.nextContext
	f.nextContext++
	if id > 0 {
		f.contexts[id] = hostspec
	}
	writeJSON(w, http.StatusOK, map[string]int{"context": id})
}

func (f *FakeServer) handleFetch(w http.ResponseWriter, r *http.Request) {
	f.fetchCalls++
	names := splitList(r.URL.Query().Get("names"))
	f.fetchNames = append(f.fetchNames, names)
	if f.failFetch {
		http.Error(w, "fetch failed", http.StatusInternalServerError)
		return
	}

	values := make([]map[string]any, 0, len(names))
	for _, name := range names {
		list, ok := f.samples[name]
		if !ok {
			continue
		}
		instances := make([]map[string]any, 0, len(list))
		for _, s := range list {
			inst := map[string]any{"value": s.value}
			if s.iid != nil {
				inst["instance"] = *s.iid
			}
			instances = append(instances, inst)
		}
		values = append(values, map[string]any{"name": name, "instances": instances})
	}

	sec := int64(f.timestamp)
	usec := int64((f.timestamp - float64(sec)) * 1e6)
	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": map[string]int64{"s": sec, "us": usec},
		"values":    values,
	})
}

func (f *FakeServer) handleIndom(w http.ResponseWriter, r *http.Request) {
	f.indomCalls++
	q := r.URL.Query()
	list, ok := f.samples[q.Get("name")]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Unknown metric name", "code": -12357})
		return
	}

	wanted := make(map[int]bool)
	for _, s := range splitList(q.Get("instance")) {
		if id, err := strconv.Atoi(s); err == nil {
			wanted[id] = true
		}
	}

	instances := make([]map[string]any, 0, len(list))
	for _, s := range list {
		if s.iid == nil || s.iname == "" {
			continue
		}
		if len(wanted) > 0 && !wanted[*s.iid] {
			continue
		}
		instances = append(instances, map[string]any{"instance": *s.iid, "name": s.iname})
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i]["instance"].(int) < instances[j]["instance"].(int)
	})
	writeJSON(w, http.StatusOK, map[string]any{"indom": 1, "instances": instances})
}

func sameInstance(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
