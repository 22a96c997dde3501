// Package cli implements the vector command-line interface.
//
// # Command Structure
//
// The root command is "vector" with subcommands:
//
//	vector serve               - Poll the configured host and serve the HTTP API
//	vector fetch <metric...>   - One-shot fetch, printed as YAML
//	vector host set <host>     - Persist the pmwebapi host (and pmcd hostspec)
//	vector host show           - Print the configured host
//	vector config init         - Write a starter .vector.yaml
//	vector config show         - Print the effective config
//	vector config validate     - Check the config for errors
//	vector version             - Print build information
//
// # Flag Handling
//
// Global flags (--config, --verbose, --no-color) are defined on the root
// command. Config is found with config.Find and environment variables
// prefixed with VECTOR_ override file values.
//
// # Wiring
//
// buildApp turns a loaded config into the running pieces: a pmapi client
// (dialing through an SSH tunnel when tunnel.ssh is set), the metric
// registry sized from window/interval, a dashboard manager with the
// configured subscriptions, an alert board and the self-metrics registry.
package cli
