package cli

import (
	"io"

	"github.com/rileyhilliard/vector/internal/config"
	"github.com/rileyhilliard/vector/internal/dashboard"
	"github.com/rileyhilliard/vector/internal/flash"
	"github.com/rileyhilliard/vector/internal/logger"
	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/rileyhilliard/vector/internal/pmapi"
	"github.com/rileyhilliard/vector/internal/stats"
	"github.com/rileyhilliard/vector/pkg/sshutil"
)

// app is everything a long-running command needs, built from config.
type app struct {
	cfg    *config.Config
	client *pmapi.Client
	tunnel *sshutil.Tunnel
	reg    *metric.Registry
	mgr    *dashboard.Manager
	board  *flash.Board
	stats  *stats.Stats
	log    logger.Logger
}

// buildApp wires config into a client, registry and manager, and registers
// the configured subscriptions. Alerts are recorded on a board and printed
// to alertOut.
func buildApp(cfg *config.Config, configPath string, alertOut io.Writer) (*app, error) {
	log := logger.Default()
	st := stats.New()
	board := flash.NewBoard(flash.DefaultBoardSize)

	client, tunnel := newClient(cfg, log)
	reg := metric.NewRegistry(metric.CapacityFor(cfg.Window, cfg.Interval))

	var store dashboard.HostStore
	if configPath != "" {
		store = config.FileStore{Path: configPath}
	}

	mgr := dashboard.NewManager(client, reg, dashboard.Options{
		Host:      cfg.Host,
		PMCD:      cfg.PMCD,
		Port:      cfg.Port,
		Interval:  cfg.Interval,
		Window:    cfg.Window,
		TTL:       cfg.TTL,
		HostStore: store,
		Alerter:   flash.Tee(board, flash.NewPrinter(alertOut)),
		Logger:    log,
		Stats:     st,
	})

	a := &app{
		cfg:    cfg,
		client: client,
		tunnel: tunnel,
		reg:    reg,
		mgr:    mgr,
		board:  board,
		stats:  st,
		log:    log,
	}
	if err := a.subscribe(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newClient builds the pmwebapi client, routed through an SSH tunnel when
// one is configured.
func newClient(cfg *config.Config, log logger.Logger) (*pmapi.Client, *sshutil.Tunnel) {
	opts := []pmapi.Option{
		pmapi.WithTimeout(cfg.RequestTimeout),
		pmapi.WithDefaultPort(cfg.Port),
		pmapi.WithLogger(log),
	}

	var tunnel *sshutil.Tunnel
	if cfg.Tunnel.Enabled() {
		sshutil.WarningHandler = func(msg string) { log.Warn("[tunnel] %s", msg) }
		tunnel = sshutil.NewTunnel(cfg.Tunnel.SSH, sshutil.Options{
			Timeout:       cfg.Tunnel.Timeout,
			StrictHostKey: cfg.Tunnel.StrictHostKey,
			KnownHosts:    cfg.Tunnel.KnownHosts,
		})
		opts = append(opts, pmapi.WithDialer(tunnel.DialContext))
		log.Info("[tunnel] pmwebapi requests go through %s", cfg.Tunnel.SSH)
	}

	return pmapi.NewClient(opts...), tunnel
}

func (a *app) subscribe() error {
	for _, mc := range a.cfg.Metrics {
		kind, err := metric.ParseKind(mc.Kind)
		if err != nil {
			return err
		}
		if _, err := a.mgr.Subscribe(dashboard.Subscription{Name: mc.Name, Kind: kind, Scale: mc.Scale}); err != nil {
			return err
		}
	}
	for _, dc := range a.cfg.Derived {
		if _, err := a.mgr.SubscribeDerived(dashboard.DerivedSubscription{Name: dc.Name, Op: dc.Op, Inputs: dc.Inputs}); err != nil {
			return err
		}
	}
	return nil
}

// Close stops polling and tears down the tunnel.
func (a *app) Close() {
	a.mgr.Close()
	if a.tunnel != nil {
		_ = a.tunnel.Close()
		sshutil.CloseAgent()
	}
}
