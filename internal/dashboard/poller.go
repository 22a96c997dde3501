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
	"github.com/rileyhilliard/vector/internal/pmapi"
	"github.com/rileyhilliard/vector/internal/stats"
)

// MaxConsecutiveFailures is how many fetch failures in a row are tolerated.
// One more opens the circuit and stops the loop.
const MaxConsecutiveFailures = 5

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 2 * time.Second

// API is the subset of pmwebapi the dashboard uses.
type API interface {
	CreateContext(ctx context.Context, host, hostspec string, ttl time.Duration) (int, error)
	Fetch(ctx context.Context, host string, id int, names []string) (*pmapi.FetchResponse, error)
	InstanceDomain(ctx context.Context, host string, id int, name string, iids []int) (map[int]string, error)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval time.Duration
	Alerter  flash.Alerter
	Logger   logger.Logger
	Stats    *stats.Stats
}

// Poller fetches every registered metric once per interval. Each Start
// begins with a clean failure count.
type Poller struct {
	api      API
	reg      *metric.Registry
	interval time.Duration
	alert    flash.Alerter
	log      logger.Logger
	stats    *stats.Stats
	now      func() time.Time

	mu       sync.Mutex
	host     string
	id       int
	gen      uint64
	cancel   context.CancelFunc
	failures int
}

// NewPoller creates a stopped Poller.
func NewPoller(api API, reg *metric.Registry, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Alerter == nil {
		opts.Alerter = flash.Discard
	}
	return &Poller{
		api:      api,
		reg:      reg,
		interval: opts.Interval,
		alert:    opts.Alerter,
		log:      logger.OrDefault(opts.Logger),
		stats:    opts.Stats,
		now:      time.Now,
		id:       -1,
	}
}

// SetTarget points the poller at a host and context id. It does not start
// or stop the loop.
func (p *Poller) SetTarget(host string, id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.host = host
	p.id = id
}

// Start cancels any running loop and arms a new one. Without a host or a
// valid context id nothing is armed, an alert is raised and an error returned.
func (p *Poller) Start() error {
	p.mu.Lock()
	p.stopLocked()
	p.failures = 0

	if p.host == "" || p.id <= 0 {
		host, id := p.host, p.id
		p.mu.Unlock()
		p.alert.Alert(flash.ChannelDashboardError, flash.MsgInvalidContext)
		return errors.New(errors.ErrContext,
			fmt.Sprintf("Cannot start polling: host %q, context %d", host, id),
			"Update the host to acquire a new context")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.loop(ctx, p.gen)
	p.mu.Unlock()

	p.stats.PollerActive(true)
	p.log.Info("[poller] interval armed: every %s", p.interval)
	return nil
}

// Stop cancels the running loop, if any. A tick already waiting on the
// network finishes, but its result is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopLocked() {
		p.log.Info("[poller] interval canceled")
	}
}

// stopLocked must be called with p.mu held. Reports whether a loop was running.
func (p *Poller) stopLocked() bool {
	p.gen++
	if p.cancel == nil {
		return false
	}
	p.cancel()
	p.cancel = nil
	p.stats.PollerActive(false)
	return true
}

// Active reports whether a loop is armed.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Failures returns the current consecutive fetch failure count.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Interval returns the poll period.
func (p *Poller) Interval() time.Duration { return p.interval }

func (p *Poller) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			_ = p.tick(ctx, gen)
		}
	}
}

// Tick runs one poll cycle now, as the loop would.
func (p *Poller) Tick(ctx context.Context) error {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()
	return p.tick(ctx, gen)
}

func (p *Poller) tick(ctx context.Context, gen uint64) error {
	p.stats.Tick()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return nil
	}
	host, id := p.host, p.id
	p.mu.Unlock()
	names := p.reg.Names()

	var (
		resp     *pmapi.FetchResponse
		fetchErr error
		fetched  bool
	)
	if host != "" && id > 0 && len(names) > 0 {
		fetched = true
		start := time.Now()
		// Stop must not abort a fetch already on the wire.
		resp, fetchErr = p.api.Fetch(context.WithoutCancel(ctx), host, id, names)
		p.stats.Fetch(time.Since(start), fetchErr)
	}

	p.mu.Lock()
	if gen != p.gen {
		now := p.gen
		p.mu.Unlock()
		p.log.Debug("[poller] discarding result of stale tick (generation %d, now %d)", gen, now)
		return nil
	}

	ts := p.timestamp(resp)
	if fetched && fetchErr == nil {
		p.stats.Points(Distribute(p.reg, resp, ts))
	}
	p.stats.Points(EvaluateDerived(p.reg, ts))
	p.stats.Registered(p.reg.Len(), p.reg.DerivedLen())

	opened := fetched && p.reportLocked(fetchErr)
	p.mu.Unlock()

	if opened {
		p.alert.Alert(flash.ChannelDashboardError, flash.MsgCircuitOpen)
		return errors.WrapWithCode(fetchErr, errors.ErrCircuit,
			fmt.Sprintf("Polling %s stopped after %d consecutive fetch failures", host, MaxConsecutiveFailures+1),
			"Make sure PCP is running correctly, then update the host or restart polling")
	}
	return fetchErr
}

// reportLocked counts a fetch outcome and opens the circuit past the limit.
// Reports whether the circuit opened; the caller raises the alert after
// releasing p.mu.
func (p *Poller) reportLocked(err error) bool {
	if err == nil {
		p.failures = 0
		return false
	}

	p.failures++
	p.log.Warn("[poller] fetch failed (%d in a row): %v", p.failures, err)
	if p.failures <= MaxConsecutiveFailures {
		return false
	}

	p.stopLocked()
	p.failures = 0
	p.stats.CircuitOpen()
	p.log.Error("[poller] more than %d consecutive failures, loop aborted", MaxConsecutiveFailures)
	return true
}

func (p *Poller) timestamp(resp *pmapi.FetchResponse) float64 {
	if resp != nil && resp.Timestamp > 0 {
		return float64(resp.Timestamp)
	}
	now := p.now()
	return float64(now.UnixNano()) / 1e9
}
