// Package server exposes the command router and the event stream over loopback HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/woozymasta/launcherd/internal/config"
	"github.com/woozymasta/launcherd/internal/events"
	"github.com/woozymasta/launcherd/internal/router"
)

// New creates a new Server for the given router and event bus.
// metrics may be nil.
func New(rt *router.Router, bus *events.Bus, metrics http.Handler, cfg *config.Config) *Server {
	return &Server{
		router:     rt,
		bus:        bus,
		metrics:    metrics,
		authToken:  cfg.Server.AuthToken,
		maxBody:    cfg.Server.MaxBodySize,
		rateCount:  cfg.RateLimit.Count,
		rateWindow: cfg.RateLimit.Window,
		keepAlive:  15 * time.Second,

		limiters: make(map[string]*clientLimiter),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers starts the limiter cleanup routine.
func (s *Server) StartWorkers() {
	s.wg.Add(1)
	go s.gcLimiters(time.Minute, 10*time.Minute)
}

// StopWorkers stops the background routines and waits for them.
func (s *Server) StopWorkers() {
	s.stopOnce.Do(func() { close(s.shutdown) })
	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	invoke := s.RateLimitMiddleware(http.HandlerFunc(s.handleInvoke))
	mux.Handle("POST /api/invoke/{command}", AuthMiddleware(s.authToken, invoke))
	mux.Handle("GET /api/commands", AuthMiddleware(s.authToken, http.HandlerFunc(s.handleCommands)))
	mux.Handle("GET /api/events", AuthMiddleware(s.authToken, http.HandlerFunc(s.handleEvents)))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.Handle("GET /healthz", http.HandlerFunc(s.handleHealth))

	return s.LoggingMiddleware(mux)
}
