// Package pmapi is a small client for the PCP pmwebapi REST interface.
//
// Every call takes the target host ("host" or "host:port"); hosts without a
// port get the client's default port. The client only knows the three
// endpoints the dashboard needs: context creation, _fetch and _indom.
package pmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/logger"
)

const (
	// DefaultPort is the pmwebd listen port.
	DefaultPort = 44323

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response is read into messages.
	maxErrorBody = 4096
)

// DialFunc opens the underlying connection for a request. It matches
// net.Dialer.DialContext so an SSH tunnel can stand in for a TCP dial.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Client talks to pmwebapi over HTTP.
type Client struct {
	http        *http.Client
	defaultPort int
	log         logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithDefaultPort sets the port used for hosts given without one.
func WithDefaultPort(port int) Option {
	return func(c *Client) {
		if port > 0 {
			c.defaultPort = port
		}
	}
}

// WithDialer routes every connection through dial.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		if dial == nil {
			return
		}
		c.http.Transport = &http.Transport{
			DialContext:         dial,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = logger.OrDefault(l)
	}
}

// NewClient creates a pmwebapi client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: DefaultTimeout},
		defaultPort: DefaultPort,
		log:         logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the pmwebapi root for host, adding port when host has none.
func BaseURL(host string, port int) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	if _, _, err := net.SplitHostPort(host); err != nil && port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return "http://" + host + "/pmapi"
}

// CreateContext asks pmwebapi for a new context on the pmcd named by
// hostspec, kept alive for ttl between requests. It returns the context id.
func (c *Client) CreateContext(ctx context.Context, host, hostspec string, ttl time.Duration) (int, error) {
	q := url.Values{}
	q.Set("hostspec", hostspec)
	q.Set("polltimeout", strconv.Itoa(int(ttl/time.Second)))

	var resp contextResponse
	if err := c.get(ctx, host, "/context", q, &resp); err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrAcquire,
			fmt.Sprintf("Failed fetching context from %s", host),
			"Check that pmwebd is running and the host is reachable")
	}
	if resp.Context <= 0 {
		return 0, errors.New(errors.ErrAcquire,
			fmt.Sprintf("pmwebapi on %s returned invalid context %d", host, resp.Context),
			"Check the pmcd hostspec")
	}
	return resp.Context, nil
}

// Fetch reads the current values of names in one request and resolves the
// instance names of every instanced metric in the result.
func (c *Client) Fetch(ctx context.Context, host string, id int, names []string) (*FetchResponse, error) {
	if id <= 0 {
		return nil, errors.New(errors.ErrContext,
			fmt.Sprintf("Invalid context %d", id),
			"Update the host to acquire a new context")
	}
	if len(names) == 0 {
		return &FetchResponse{}, nil
	}

	q := url.Values{}
	q.Set("names", strings.Join(names, ","))

	var body fetchBody
	if err := c.get(ctx, host, fmt.Sprintf("/%d/_fetch", id), q, &body); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFetch,
			fmt.Sprintf("Failed fetching %d metric(s) from %s", len(names), host),
			"Make sure PCP is running correctly on the host")
	}

	resp := FetchResponse{
		Timestamp:     body.Timestamp,
		Values:        body.Values,
		InstanceNames: make(map[string]map[int]string, len(body.Values)),
	}
	for _, mv := range resp.Values {
		iids := instanceIDs(mv)
		if len(iids) == 0 {
			continue
		}
		if inline, ok := body.InNames[mv.Name]; ok && inline.InNames != nil {
			resp.InstanceNames[mv.Name] = inline.InNames
			continue
		}
		inames, err := c.InstanceDomain(ctx, host, id, mv.Name, iids)
		if err != nil {
			return nil, err
		}
		resp.InstanceNames[mv.Name] = inames
	}
	return &resp, nil
}

// InstanceDomain returns instance id -> name for the given instances of a
// metric. An empty iids asks for the whole domain.
func (c *Client) InstanceDomain(ctx context.Context, host string, id int, name string, iids []int) (map[int]string, error) {
	q := url.Values{}
	q.Set("name", name)
	if len(iids) > 0 {
		parts := make([]string, len(iids))
		for i, iid := range iids {
			parts[i] = strconv.Itoa(iid)
		}
		q.Set("instance", strings.Join(parts, ","))
	}

	var resp indomResponse
	if err := c.get(ctx, host, fmt.Sprintf("/%d/_indom", id), q, &resp); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFetch,
			fmt.Sprintf("Failed fetching instance names of %s", name),
			"Check that the metric has an instance domain")
	}

	out := make(map[int]string, len(resp.Instances))
	for _, inst := range resp.Instances {
		out[inst.Instance] = inst.Name
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, host, path string, q url.Values, out any) error {
	u := BaseURL(host, c.defaultPort) + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	c.log.Debug("[pmapi] GET %s", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("pmwebapi %s: %s (code %d)", resp.Status, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("pmwebapi %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding pmwebapi response: %w", err)
	}
	return nil
}

// instanceIDs returns the explicit, non-null instance ids of a metric, sorted.
func instanceIDs(mv MetricValues) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, inst := range mv.Instances {
		if inst.Instance == nil || *inst.Instance < 0 || seen[*inst.Instance] {
			continue
		}
		seen[*inst.Instance] = true
		ids = append(ids, *inst.Instance)
	}
	sort.Ints(ids)
	return ids
}
