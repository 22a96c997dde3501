package dashboard

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the remote context.
type State int

const (
	StateUnset State = iota
	StateAcquiring
	StateAvailable
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateAcquiring:
		return "acquiring"
	case StateAvailable:
		return "available"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a snapshot of the dashboard's connection state.
type Session struct {
	Host     string
	PMCD     string
	Port     int
	Context  int
	Hostname string
	State    State
	Interval time.Duration
	Window   time.Duration
	TTL      time.Duration

	PollerActive bool
	Failures     int
}

// Acquiring reports whether a context request is in flight.
func (s Session) Acquiring() bool { return s.State == StateAcquiring }

// Available reports whether the session holds a usable context.
func (s Session) Available() bool { return s.State == StateAvailable && s.Context > 0 }

// HostStore persists the selected host so it survives restarts.
type HostStore interface {
	SaveHost(host, pmcd string) error
}
