package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/metric"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but vector only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Grab the latest vector release")
	}

	if err := validateHost(cfg.Host); err != nil {
		return err
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Port %d is out of range", cfg.Port),
			"Use a TCP port between 1 and 65535 (pmwebapi listens on 44323 by default).")
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"interval", cfg.Interval},
		{"window", cfg.Window},
		{"ttl", cfg.TTL},
		{"request_timeout", cfg.RequestTimeout},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("'%s' must be positive, got %s", d.key, d.val),
				"Use a Go duration like '2s' or '2m'.")
		}
	}
	if cfg.Window < cfg.Interval {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Window %s is shorter than the poll interval %s", cfg.Window, cfg.Interval),
			"Make 'window' at least as long as 'interval'.")
	}

	if err := validateOutput(cfg.Output); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'output' section in your .vector.yaml.")
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Addr); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("API address '%s' isn't host:port", cfg.API.Addr),
				"Use something like '127.0.0.1:7720', or set api.enabled: false.")
		}
	}

	if cfg.Tunnel.Enabled() && cfg.Tunnel.Timeout <= 0 {
		return errors.New(errors.ErrConfig,
			"'tunnel.timeout' must be positive",
			"Use a Go duration like '10s'.")
	}

	return validateSubscriptions(cfg.Metrics, cfg.Derived)
}

// validateHost accepts "", "host", "host:port" and an optional http:// prefix.
func validateHost(host string) error {
	if host == "" {
		return nil
	}
	if strings.ContainsAny(host, " \t\n") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' contains whitespace", host),
			"Use a bare hostname or host:port, like 'perf01:44323'.")
	}
	if strings.HasPrefix(host, "https://") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' uses https, which isn't supported", host),
			"Use plain http, or reach a TLS-only endpoint through the SSH tunnel.")
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(host, "http://"), "/")
	if strings.Contains(rest, "/") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' contains a path", host),
			"Use just the host (and port); /pmapi is added automatically.")
	}
	return nil
}

func validateOutput(out OutputConfig) error {
	switch out.Color {
	case "", "auto", "always", "never":
		return nil
	default:
		return fmt.Errorf("invalid color mode '%s' (use auto, always, or never)", out.Color)
	}
}

func validateSubscriptions(metrics []MetricConfig, derived []DerivedConfig) error {
	seen := make(map[string]bool)
	for i, m := range metrics {
		if m.Name == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("metrics[%d] has no name", i),
				"Give every metric a PCP name, like 'kernel.all.load'.")
		}
		if seen[m.Name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Metric '%s' is listed twice", m.Name),
				"Remove the duplicate entry.")
		}
		seen[m.Name] = true

		kind, err := metric.ParseKind(m.Kind)
		if err != nil {
			return err
		}
		if m.Scale != 0 && !kind.IsConverted() {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Metric '%s' sets a scale but its kind is %s", m.Name, kind),
				"Use kind 'converted' or 'cumulative_converted', or drop the scale.")
		}
		if m.Scale == 0 && kind.IsConverted() {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Metric '%s' is %s but has no scale", m.Name, kind),
				"Set a non-zero scale, like 'scale: 0.0009765625' for KiB to MiB.")
		}
	}

	for i, d := range derived {
		if d.Name == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("derived[%d] has no name", i),
				"Give every derived metric a name.")
		}
		if seen[d.Name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Name '%s' is used by more than one metric", d.Name),
				"Derived metrics need names distinct from fetched metrics.")
		}
		seen[d.Name] = true

		if _, err := metric.TransformFor(d.Op, d.Inputs); err != nil {
			return err
		}
	}
	return nil
}
