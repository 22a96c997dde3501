package sshutil

import (
	"context"
	"net"
	"sync"
	"time"
)

// conn is the part of *Client a Tunnel relies on.
type conn interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	Alive() bool
	Close() error
}

type dialFunc func(ctx context.Context, host string, opts Options) (conn, error)

func dialClient(ctx context.Context, host string, opts Options) (conn, error) {
	c, err := Dial(ctx, host, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Tunnel keeps one SSH connection to a jump host alive between poll ticks
// and opens forwarded TCP connections through it. A broken connection is
// replaced transparently on the next dial.
type Tunnel struct {
	host string
	opts Options
	dial dialFunc

	mu       sync.Mutex
	conn     conn
	lastUsed time.Time
	dials    int
}

// NewTunnel creates a tunnel through host. No connection is made until the
// first DialContext.
func NewTunnel(host string, opts Options) *Tunnel {
	return &Tunnel{
		host: host,
		opts: opts,
		dial: dialClient,
	}
}

// Host returns the jump host the tunnel goes through.
func (t *Tunnel) Host() string {
	return t.host
}

// DialContext opens addr on the far side of the tunnel. Its signature
// matches net.Dialer.DialContext so it can back an http.Transport.
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	c, err := t.get(ctx)
	if err != nil {
		return nil, err
	}

	nc, err := c.DialContext(ctx, network, addr)
	if err == nil {
		return nc, nil
	}

	// The SSH connection may have died since the liveness check; retry once
	// on a fresh one.
	t.drop(c)
	c, derr := t.get(ctx)
	if derr != nil {
		return nil, err
	}
	return c.DialContext(ctx, network, addr)
}

// get returns the live connection, or dials a new one.
func (t *Tunnel) get(ctx context.Context) (conn, error) {
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()

	if c != nil {
		if c.Alive() {
			t.mu.Lock()
			t.lastUsed = time.Now()
			t.mu.Unlock()
			return c, nil
		}
		t.drop(c)
	}

	c, err := t.dial(ctx, t.host, t.opts)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		// Another dial won the race; keep the first connection.
		_ = c.Close()
		t.lastUsed = time.Now()
		return t.conn, nil
	}
	t.conn = c
	t.lastUsed = time.Now()
	t.dials++
	return c, nil
}

// drop closes c if it is still the current connection.
func (t *Tunnel) drop(c conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == c {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// Connected reports whether an SSH connection is currently held.
func (t *Tunnel) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// LastUsed returns when the connection last served a dial.
func (t *Tunnel) LastUsed() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUsed
}

// Close closes the SSH connection. The tunnel redials on next use.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
