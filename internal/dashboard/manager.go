package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/flash"
	"github.com/rileyhilliard/vector/internal/logger"
	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/rileyhilliard/vector/internal/stats"
)

// Defaults seeded by NewManager for unset options.
const (
	DefaultPMCD   = "localhost"
	DefaultWindow = 2 * time.Minute
	DefaultTTL    = 600 * time.Second
)

// HostnameMetric is fetched once after each acquisition for display.
const HostnameMetric = "pmcd.hostname"

// Options configures a Manager.
type Options struct {
	Host    string
	PMCD    string
	Port    int
	Context int // resume an existing context instead of acquiring one

	Interval time.Duration
	Window   time.Duration
	TTL      time.Duration

	HostStore HostStore
	Alerter   flash.Alerter
	Logger    logger.Logger
	Stats     *stats.Stats
}

// Manager owns the remote context and the poller that depends on it.
type Manager struct {
	api    API
	reg    *metric.Registry
	poller *Poller
	store  HostStore
	alert  flash.Alerter
	log    logger.Logger
	stats  *stats.Stats

	mu       sync.Mutex
	host     string
	pmcd     string
	port     int
	id       int
	hostname string
	state    State
	window   time.Duration
	ttl      time.Duration
	acqGen   uint64
}

// NewManager creates a Manager. Nothing is requested until Initialize,
// UpdateHost or AcquireContext is called.
func NewManager(api API, reg *metric.Registry, opts Options) *Manager {
	if opts.PMCD == "" {
		opts.PMCD = DefaultPMCD
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Alerter == nil {
		opts.Alerter = flash.Discard
	}
	log := logger.OrDefault(opts.Logger)

	m := &Manager{
		api:   api,
		reg:   reg,
		store: opts.HostStore,
		alert: opts.Alerter,
		log:   log,
		stats: opts.Stats,
		poller: NewPoller(api, reg, PollerOptions{
			Interval: opts.Interval,
			Alerter:  opts.Alerter,
			Logger:   log,
			Stats:    opts.Stats,
		}),
		host:   opts.Host,
		pmcd:   opts.PMCD,
		port:   opts.Port,
		id:     -1,
		window: opts.Window,
		ttl:    opts.TTL,
	}
	if opts.Context > 0 && opts.Host != "" {
		m.id = opts.Context
		m.state = StateAvailable
	}
	return m
}

// Registry returns the metric registry the manager feeds.
func (m *Manager) Registry() *metric.Registry { return m.reg }

// Poller returns the manager's poller.
func (m *Manager) Poller() *Poller { return m.poller }

// Session returns a snapshot of the current state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	s := Session{
		Host:     m.host,
		PMCD:     m.pmcd,
		Port:     m.port,
		Context:  m.id,
		Hostname: m.hostname,
		State:    m.state,
		Interval: m.poller.Interval(),
		Window:   m.window,
		TTL:      m.ttl,
	}
	m.mu.Unlock()

	s.PollerActive = m.poller.Active()
	s.Failures = m.poller.Failures()
	return s
}

// SetPMCD changes the pmcd hostspec used by the next acquisition.
func (m *Manager) SetPMCD(pmcd string) {
	if pmcd == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pmcd = pmcd
}

// Initialize starts the dashboard from its configured state: an existing
// context restarts the poller, otherwise a context is acquired when a host
// is known.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	host, id := m.host, m.id
	m.mu.Unlock()

	if host != "" && id > 0 {
		m.log.Info("[session] resuming context %d on %s", id, host)
		m.poller.SetTarget(host, id)
		return m.poller.Start()
	}
	if host == "" {
		m.log.Info("[session] no host set, waiting for one")
		return nil
	}
	return m.AcquireContext(ctx)
}

// UpdateHost switches to a new host: the host is persisted, the context is
// invalidated, all stored series are cleared and a new context is acquired.
func (m *Manager) UpdateHost(ctx context.Context, host string) error {
	m.log.Info("[session] host updated: %s", host)
	m.poller.Stop()
	m.poller.SetTarget(host, -1)

	m.mu.Lock()
	m.host = host
	m.id = -1
	m.hostname = ""
	m.state = StateUnset
	m.acqGen++
	pmcd := m.pmcd
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveHost(host, pmcd); err != nil {
			m.log.Warn("[session] could not persist host: %v", err)
		}
	}

	m.reg.ClearAll()
	m.reg.ClearAllDerived()

	return m.AcquireContext(ctx)
}

// AcquireContext requests a new remote context for the current host. On
// success the poller is (re)started and the host's name is fetched once for
// display. On failure the session is left unset and an alert is raised;
// nothing retries automatically.
func (m *Manager) AcquireContext(ctx context.Context) error {
	m.mu.Lock()
	host, pmcd, ttl := m.host, m.pmcd, m.ttl
	if host == "" {
		m.mu.Unlock()
		return errors.New(errors.ErrAcquire, "No host set", "Set one with: vector host set <host>")
	}
	m.acqGen++
	gen := m.acqGen
	m.id = -1
	m.state = StateAcquiring
	m.mu.Unlock()

	m.poller.Stop()
	m.poller.SetTarget(host, -1)

	m.log.Info("[session] requesting context from %s for pmcd %s", host, pmcd)
	id, err := m.api.CreateContext(ctx, host, pmcd, ttl)
	m.stats.Acquisition(err)

	m.mu.Lock()
	if gen != m.acqGen {
		m.mu.Unlock()
		m.log.Debug("[session] dropping context reply for %s, host changed meanwhile", host)
		return errors.New(errors.ErrAcquire,
			fmt.Sprintf("Context request for %s was superseded", host),
			"A newer host update is in progress")
	}
	if err != nil {
		m.state = StateUnset
		m.id = -1
		m.mu.Unlock()
		m.log.Error("[session] error fetching context: %v", err)
		m.alert.Alert(flash.ChannelDashboardError, flash.MsgAcquireFailed)
		if errors.CodeOf(err) == "" {
			err = errors.WrapWithCode(err, errors.ErrAcquire,
				fmt.Sprintf("Failed fetching context from %s", host),
				"Try updating the hostname")
		}
		return err
	}
	m.state = StateAvailable
	m.id = id
	m.mu.Unlock()

	m.log.Info("[session] context %d available on %s", id, host)
	m.poller.SetTarget(host, id)
	if err := m.poller.Start(); err != nil {
		return err
	}

	m.refreshHostname(ctx, host, id)
	return nil
}

// refreshHostname fetches pmcd.hostname for display. Failures are only logged.
func (m *Manager) refreshHostname(ctx context.Context, host string, id int) {
	resp, err := m.api.Fetch(ctx, host, id, []string{HostnameMetric})
	if err != nil {
		m.log.Warn("[session] could not fetch %s: %v", HostnameMetric, err)
		return
	}
	for _, mv := range resp.Values {
		if mv.Name != HostnameMetric {
			continue
		}
		for _, inst := range mv.Instances {
			name := inst.Value.String()
			m.mu.Lock()
			if m.id == id {
				m.hostname = name
			}
			m.mu.Unlock()
			m.log.Info("[session] hostname updated: %s", name)
		}
	}
}

// UpdateWindow records a new display window. Series capacity is fixed when
// the registry is created, so this only affects what is reported.
func (m *Manager) UpdateWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	m.mu.Lock()
	m.window = window
	m.mu.Unlock()
	m.log.Info("[session] window updated: %s", window)
}

// InstanceNames resolves instance ids of a metric to names on the current
// context. An empty iids returns the whole instance domain.
func (m *Manager) InstanceNames(ctx context.Context, metricName string, iids []int) (map[int]string, error) {
	host, id, err := m.target()
	if err != nil {
		return nil, err
	}
	return m.api.InstanceDomain(ctx, host, id, metricName, iids)
}

// Trigger names.
const (
	TriggerSystack = "systack"
	TriggerHeatmap = "heatmap"
)

type trigger struct {
	metric    string
	okChannel string
	errChan   string
}

var triggers = map[string]trigger{
	TriggerSystack: {"generic.systack", flash.ChannelSystackSuccess, flash.ChannelSystackError},
	TriggerHeatmap: {"generic.heatmap", flash.ChannelHeatmapSuccess, flash.ChannelHeatmapError},
}

// Trigger asks the host to start a one-off capture (flame graph stacks or
// disk latency heat map) by fetching its trigger metric. The outcome is
// reported on the trigger's own alert channels.
func (m *Manager) Trigger(ctx context.Context, name string) error {
	t, ok := triggers[name]
	if !ok {
		return errors.New(errors.ErrAPI,
			fmt.Sprintf("Unknown trigger '%s'", name),
			"Use one of: systack, heatmap")
	}
	host, id, err := m.target()
	if err != nil {
		m.alert.Alert(t.errChan, fmt.Sprintf("failed requesting %s!", t.metric))
		return err
	}

	if _, err := m.api.Fetch(ctx, host, id, []string{t.metric}); err != nil {
		m.log.Error("[session] failed requesting %s: %v", t.metric, err)
		m.alert.Alert(t.errChan, fmt.Sprintf("failed requesting %s!", t.metric))
		return err
	}
	m.log.Info("[session] %s requested", t.metric)
	m.alert.Alert(t.okChannel, fmt.Sprintf("%s requested!", t.metric))
	return nil
}

// Close stops polling.
func (m *Manager) Close() {
	m.poller.Stop()
}

func (m *Manager) target() (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.host == "" || m.id <= 0 {
		return "", 0, errors.New(errors.ErrContext,
			"No valid context",
			"Update the host to acquire a new context")
	}
	return m.host, m.id, nil
}
