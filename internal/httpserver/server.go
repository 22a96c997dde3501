// Package httpserver exposes the dashboard engine over a small JSON API so a
// front end (or curl) can drive the session and read series.
package httpserver

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rileyhilliard/vector/internal/dashboard"
	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/flash"
	"github.com/rileyhilliard/vector/internal/logger"
	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/rileyhilliard/vector/internal/stats"
)

// DefaultAddr is used when NewServer is given an empty address.
const DefaultAddr = "127.0.0.1:7720"

// Server provides the HTTP API.
type Server struct {
	addr   string
	mgr    *dashboard.Manager
	alerts *flash.Board
	stats  *stats.Stats
	log    logger.Logger

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. alerts and st may be nil.
func NewServer(addr string, mgr *dashboard.Manager, alerts *flash.Board, st *stats.Stats, log logger.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		mgr:    mgr,
		alerts: alerts,
		stats:  st,
		log:    logger.OrDefault(log),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/session", s.handleSession)
	r.PUT("/api/host", s.handleUpdateHost)
	r.PUT("/api/window", s.handleUpdateWindow)
	r.POST("/api/poller/start", s.handlePollerStart)
	r.POST("/api/poller/stop", s.handlePollerStop)
	r.GET("/api/metrics", s.handleMetrics)
	r.GET("/api/metrics/:name", s.handleMetric)
	r.GET("/api/instances/:name", s.handleInstances)
	r.POST("/api/subscriptions", s.handleSubscribe)
	r.DELETE("/api/subscriptions/:name", s.handleUnsubscribe)
	r.POST("/api/triggers/:name", s.handleTrigger)
	r.GET("/api/alerts", s.handleAlerts)
	r.GET("/metrics", gin.WrapH(s.stats.Handler()))

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	srv := &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAPI,
			"Can't listen on "+s.addr,
			"Pick another api.addr or stop whatever is using the port")
	}

	s.mu.Lock()
	s.server = srv
	s.listener = listener
	s.startTime = time.Now()
	s.mu.Unlock()

	s.log.Info("[api] listening on %s", listener.Addr())
	go func() {
		if err := srv.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("[api] serve: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

type sessionView struct {
	Host         string `json:"host"`
	PMCD         string `json:"pmcd"`
	Port         int    `json:"port"`
	Context      int    `json:"context"`
	Hostname     string `json:"hostname"`
	State        string `json:"state"`
	Interval     string `json:"interval"`
	Window       string `json:"window"`
	TTL          string `json:"ttl"`
	PollerActive bool   `json:"poller_active"`
	Failures     int    `json:"failures"`
}

func viewOf(sess dashboard.Session) sessionView {
	return sessionView{
		Host:         sess.Host,
		PMCD:         sess.PMCD,
		Port:         sess.Port,
		Context:      sess.Context,
		Hostname:     sess.Hostname,
		State:        sess.State.String(),
		Interval:     sess.Interval.String(),
		Window:       sess.Window.String(),
		TTL:          sess.TTL.String(),
		PollerActive: sess.PollerActive,
		Failures:     sess.Failures,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	uptime := time.Duration(0)
	if !started.IsZero() {
		uptime = time.Since(started)
	}
	sess := s.mgr.Session()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  uptime.String(),
		"state":   sess.State.String(),
		"metrics": s.mgr.Registry().Len(),
		"derived": s.mgr.Registry().DerivedLen(),
	})
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(s.mgr.Session()))
}

func (s *Server) handleUpdateHost(c *gin.Context) {
	var req struct {
		Host string `json:"host" binding:"required"`
		PMCD string `json:"pmcd"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing host field"})
		return
	}

	s.mgr.SetPMCD(req.PMCD)
	if err := s.mgr.UpdateHost(c.Request.Context(), req.Host); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(s.mgr.Session()))
}

func (s *Server) handleUpdateWindow(c *gin.Context) {
	var req struct {
		Window string `json:"window" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing window field"})
		return
	}
	window, err := time.ParseDuration(req.Window)
	if err != nil || window <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration like '5m'"})
		return
	}
	s.mgr.UpdateWindow(window)
	c.JSON(http.StatusOK, viewOf(s.mgr.Session()))
}

func (s *Server) handlePollerStart(c *gin.Context) {
	if err := s.mgr.Poller().Start(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(s.mgr.Session()))
}

func (s *Server) handlePollerStop(c *gin.Context) {
	s.mgr.Poller().Stop()
	c.JSON(http.StatusOK, viewOf(s.mgr.Session()))
}

func (s *Server) handleMetrics(c *gin.Context) {
	snaps := s.mgr.Registry().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"metrics": snaps,
		"count":   len(snaps),
	})
}

func (s *Server) handleMetric(c *gin.Context) {
	name := c.Param("name")
	reg := s.mgr.Registry()
	if m, ok := reg.Lookup(name); ok {
		c.JSON(http.StatusOK, m.Snapshot())
		return
	}
	if d, ok := reg.LookupDerived(name); ok {
		c.JSON(http.StatusOK, d.Snapshot())
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "metric '" + name + "' is not subscribed"})
}

func (s *Server) handleInstances(c *gin.Context) {
	var iids []int
	if raw := c.Query("instance"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			iid, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "instance must be a comma-separated list of ids"})
				return
			}
			iids = append(iids, iid)
		}
	}

	names, err := s.mgr.InstanceNames(c.Request.Context(), c.Param("name"), iids)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metric": c.Param("name"), "instances": names})
}

type subscribeRequest struct {
	Name   string   `json:"name" binding:"required"`
	Kind   string   `json:"kind"`
	Scale  float64  `json:"scale"`
	Op     string   `json:"op"`
	Inputs []string `json:"inputs"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing name field"})
		return
	}

	if req.Op != "" {
		d, err := s.mgr.SubscribeDerived(dashboard.DerivedSubscription{
			Name:   req.Name,
			Op:     req.Op,
			Inputs: req.Inputs,
		})
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d.Snapshot())
		return
	}

	kind, err := metric.ParseKind(req.Kind)
	if err != nil {
		s.writeError(c, err)
		return
	}
	m, err := s.mgr.Subscribe(dashboard.Subscription{Name: req.Name, Kind: kind, Scale: req.Scale})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m.Snapshot())
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	name := c.Param("name")
	var err error
	if _, ok := s.mgr.Registry().LookupDerived(name); ok {
		err = s.mgr.UnsubscribeDerived(name)
	} else {
		err = s.mgr.Unsubscribe(name)
	}
	if err != nil {
		if errors.IsCode(err, errors.ErrRegistry) {
			c.JSON(http.StatusNotFound, errorBody(err))
			return
		}
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTrigger(c *gin.Context) {
	if err := s.mgr.Trigger(c.Request.Context(), c.Param("name")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"trigger": c.Param("name"), "status": "requested"})
}

func (s *Server) handleAlerts(c *gin.Context) {
	if s.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []flash.Message{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": s.alerts.Messages()})
}

// writeError maps structured error codes to HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(errors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		s.log.Error("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		s.log.Debug("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, errorBody(err))
}

func statusFor(code string) int {
	switch code {
	case errors.ErrConfig, errors.ErrAPI:
		return http.StatusBadRequest
	case errors.ErrRegistry, errors.ErrContext:
		return http.StatusConflict
	case errors.ErrAcquire, errors.ErrFetch, errors.ErrSSH:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		body["error"] = structured.Message
		body["code"] = structured.Code
		if structured.Suggestion != "" {
			body["suggestion"] = structured.Suggestion
		}
	}
	return body
}
