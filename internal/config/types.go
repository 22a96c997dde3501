package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .vector.yaml configuration file.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// Host is the pmwebapi endpoint, "host" or "host:port".
	Host string `yaml:"host" mapstructure:"host"`

	// PMCD is the hostspec handed to pmwebapi when creating a context.
	PMCD string `yaml:"pmcd" mapstructure:"pmcd"`

	// Port is used when Host carries no port of its own.
	Port int `yaml:"port" mapstructure:"port"`

	// Interval between fetches.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Window is how much history each series keeps.
	Window time.Duration `yaml:"window" mapstructure:"window"`

	// TTL is the server-side context poll timeout.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`

	// RequestTimeout bounds every pmwebapi request.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	Tunnel  TunnelConfig    `yaml:"tunnel" mapstructure:"tunnel"`
	API     APIConfig       `yaml:"api" mapstructure:"api"`
	Output  OutputConfig    `yaml:"output" mapstructure:"output"`
	Metrics []MetricConfig  `yaml:"metrics" mapstructure:"metrics"`
	Derived []DerivedConfig `yaml:"derived" mapstructure:"derived"`
}

// TunnelConfig routes pmwebapi traffic through an SSH connection.
type TunnelConfig struct {
	// SSH is an ssh_config alias, hostname, user@hostname or hostname:port.
	// Empty disables the tunnel.
	SSH string `yaml:"ssh" mapstructure:"ssh"`

	// StrictHostKey verifies the server against KnownHosts.
	StrictHostKey bool `yaml:"strict_host_key" mapstructure:"strict_host_key"`

	// KnownHosts is a local path; ~ is expanded.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`

	// Timeout for the SSH dial and handshake.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Enabled reports whether a tunnel host is configured.
func (t TunnelConfig) Enabled() bool {
	return t.SSH != ""
}

// APIConfig controls the HTTP API served by `vector serve`.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	// "auto" disables color when output is piped.
	Color string `yaml:"color" mapstructure:"color"`
}

// MetricConfig subscribes to a fetched metric at startup.
type MetricConfig struct {
	Name string `yaml:"name" mapstructure:"name"`

	// Kind: simple, cumulative, converted or cumulative-converted.
	Kind string `yaml:"kind" mapstructure:"kind"`

	// Scale multiplies each value for the converted kinds.
	Scale float64 `yaml:"scale,omitempty" mapstructure:"scale"`
}

// DerivedConfig subscribes to a derived metric at startup.
type DerivedConfig struct {
	Name   string   `yaml:"name" mapstructure:"name"`
	Op     string   `yaml:"op" mapstructure:"op"`
	Inputs []string `yaml:"inputs" mapstructure:"inputs"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:        CurrentConfigVersion,
		PMCD:           "localhost",
		Port:           44323,
		Interval:       2 * time.Second,
		Window:         2 * time.Minute,
		TTL:            10 * time.Minute,
		RequestTimeout: 10 * time.Second,
		Tunnel: TunnelConfig{
			StrictHostKey: true,
			KnownHosts:    "~/.ssh/known_hosts",
			Timeout:       10 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7720",
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}
