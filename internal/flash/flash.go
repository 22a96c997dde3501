// Package flash carries user-facing alerts from the dashboard engine to
// whatever shows them: the terminal, the HTTP API, or both.
//
// Alerts are fire-and-forget. A channel names the place an alert belongs to;
// its suffix decides the level (success or error).
package flash

import (
	"strings"
	"sync"
	"time"
)

// Channels the engine publishes on.
const (
	ChannelDashboardError = "alert-dashboard-error"
	ChannelSystackSuccess = "alert-sysstack-success"
	ChannelSystackError   = "alert-sysstack-error"
	ChannelHeatmapSuccess = "alert-disklatency-success"
	ChannelHeatmapError   = "alert-disklatency-error"
)

// Messages shown on ChannelDashboardError.
const (
	MsgAcquireFailed  = "Failed fetching context from host. Try updating the hostname."
	MsgInvalidContext = "Invalid context. Please update host to resume operation."
	MsgCircuitOpen    = "Consistently failed fetching metrics from host (>5). Aborting loop. Please make sure PCP is running correctly."
)

// Levels.
const (
	LevelError   = "error"
	LevelSuccess = "success"
	LevelInfo    = "info"
)

// Alerter receives alerts. Implementations must not block.
type Alerter interface {
	Alert(channel, message string)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(channel, message string)

// Alert calls f.
func (f AlerterFunc) Alert(channel, message string) { f(channel, message) }

// Discard drops every alert.
var Discard Alerter = AlerterFunc(func(string, string) {})

// LevelOf returns the level implied by a channel name.
func LevelOf(channel string) string {
	switch {
	case strings.HasSuffix(channel, "-error"):
		return LevelError
	case strings.HasSuffix(channel, "-success"):
		return LevelSuccess
	default:
		return LevelInfo
	}
}

// Message is one recorded alert.
type Message struct {
	Channel string    `json:"channel"`
	Level   string    `json:"level"`
	Text    string    `json:"message"`
	At      time.Time `json:"at"`
}

// DefaultBoardSize is how many alerts a Board keeps when none is given.
const DefaultBoardSize = 100

// Board records alerts: the latest per channel plus a bounded history.
type Board struct {
	mu      sync.Mutex
	size    int
	history []Message
	last    map[string]Message
	now     func() time.Time
}

// NewBoard creates a Board keeping up to size alerts (DefaultBoardSize when <= 0).
func NewBoard(size int) *Board {
	if size <= 0 {
		size = DefaultBoardSize
	}
	return &Board{
		size: size,
		last: make(map[string]Message),
		now:  time.Now,
	}
}

// Alert records an alert.
func (b *Board) Alert(channel, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Message{Channel: channel, Level: LevelOf(channel), Text: message, At: b.now()}
	b.last[channel] = m
	b.history = append(b.history, m)
	if len(b.history) > b.size {
		b.history = b.history[len(b.history)-b.size:]
	}
}

// Messages returns recorded alerts, oldest first.
func (b *Board) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.history))
	copy(out, b.history)
	return out
}

// Last returns the latest alert on channel.
func (b *Board) Last(channel string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.last[channel]
	return m, ok
}

// Len returns the number of recorded alerts.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// Clear forgets every alert.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
	b.last = make(map[string]Message)
}

// Tee returns an Alerter forwarding to every non-nil alerter in order.
func Tee(alerters ...Alerter) Alerter {
	var targets []Alerter
	for _, a := range alerters {
		if a != nil {
			targets = append(targets, a)
		}
	}
	return AlerterFunc(func(channel, message string) {
		for _, a := range targets {
			a.Alert(channel, message)
		}
	})
}
