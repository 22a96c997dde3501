// Package dashboard drives a live PCP dashboard: it owns the remote
// pmwebapi context, polls every subscribed metric on an interval and feeds
// the results into a metric.Registry.
//
// # Key Components
//
//	Manager     - Session (context) lifecycle: host changes, acquisition, initialization
//	Poller      - Interval loop: one batched fetch per tick, circuit breaker on failures
//	Distribute  - Routes a fetch result into registry metrics by name and instance
//	EvaluateDerived - Recomputes derived metrics from the latest stored values
//
// # Session States
//
//	Unset      no usable context id (-1)
//	Acquiring  context creation request in flight
//	Available  context id > 0, poller armed
//
// A failed acquisition drops back to Unset and raises an alert. Nothing retries
// on its own; the next UpdateHost or Initialize does.
//
// # Tick Flow
//
//  1. With a valid context and at least one metric, fetch all metric names at once
//  2. Distribute the result (unless a newer Start or Stop happened meanwhile)
//  3. Evaluate derived metrics, every tick, after step 2
//  4. Count the outcome; more than MaxConsecutiveFailures failures stops the loop
//
// Ticks of one loop run one at a time. Each Start bumps a generation counter
// and responses that come back for an older generation are discarded.
package dashboard
