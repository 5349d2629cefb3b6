// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jeranaias/chatgate/internal/logging"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the listen address used when Options.Addr is empty.
	DefaultAddr = "127.0.0.1:8080"

	// DefaultDeltaDelay paces streamed characters.
	DefaultDeltaDelay = 30 * time.Millisecond

	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// shutdownTimeout bounds graceful shutdown in Run.
	shutdownTimeout = 5 * time.Second
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures a mock gateway.
type Options struct {
	// Addr is the host:port to listen on.
	Addr string

	// DeltaDelay is the pause between delta events. Zero streams without pausing.
	DeltaDelay time.Duration

	// Balance is the starting wallet balance.
	Balance decimal.Decimal

	// SessionCookie and SessionValue, when both set, require every API
	// request to carry that cookie.
	SessionCookie string
	SessionValue  string

	// RateLimit is the per-client request rate (requests/second). Zero disables it.
	RateLimit float64

	// Logger defaults to logging.Named("mock").
	Logger *zap.SugaredLogger

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Server is an in-memory stand-in for the chat gateway.
type Server struct {
	opts    Options
	store   *store
	metrics *serverMetrics
	log     *zap.SugaredLogger
	engine  *gin.Engine

	mu     sync.Mutex
	server *http.Server
}

// New builds a Server and its routes. It does not listen.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.DeltaDelay < 0 {
		opts.DeltaDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.Named("mock")
	}

	s := &Server{
		opts:    opts,
		store:   newStore(opts.Balance, opts.Clock),
		metrics: newServerMetrics(),
		log:     opts.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler, for httptest or embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// SetBalance overrides the wallet balance.
func (s *Server) SetBalance(b decimal.Decimal) {
	s.store.setBalance(b)
}

// setupRoutes configures the gin engine.
func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		Recovery(s.log),
		SecurityHeaders(),
		RequestLogger(s.log, s.metrics),
	)
	if s.opts.RateLimit > 0 {
		r.Use(RateLimit(NewRateLimiter(s.opts.RateLimit, int(s.opts.RateLimit)+1)))
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	// Public price sheet, served without a session.
	r.GET("/api/v1/dashboard/models/pricing", s.handleModelsPricing)

	api := r.Group("/api")
	api.Use(SessionAuth(s.opts.SessionCookie, s.opts.SessionValue, s.log))
	api.GET("/wallet", s.handleWallet)
	api.GET("/users/me", s.handleCurrentUser)

	v1 := api.Group("/v1")
	{
		v1.POST("/messages/send/:roomId", s.handleSend)
		v1.GET("/messages/page/:roomId", s.handleListMessages)
		v1.POST("/messages/files/upload", s.handleUpload)
		v1.GET("/messages/:messageId", s.handleGetMessage)

		v1.GET("/chat-rooms", s.handleListRooms)
		v1.POST("/chat-rooms", s.handleCreateRoom)
		v1.GET("/chat-rooms/:roomId", s.handleGetRoom)
		v1.DELETE("/chat-rooms/:roomId", s.handleDeleteRoom)

		v1.GET("/models", s.handleListModels)
		v1.GET("/models/:modelId", s.handleGetModel)

		v1.GET("/wallet/balance", s.handleBalance)
		v1.GET("/transactions/:transactionId", s.handleGetTransaction)

		v1.GET("/payments", s.handleListPayments)
		v1.GET("/payments/:paymentId", s.handleGetPayment)

		v1.GET("/dashboard/stats", s.handleDashboardStats)
		v1.GET("/dashboard/usage/monthly", s.handleMonthlyUsage)
	}

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "no route for "+c.Request.Method+" "+c.Request.URL.Path)
	})
	s.engine = r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on Addr and serves until Shutdown. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Infow("mock gateway listening", "addr", ln.Addr().String(), "delta_delay", s.opts.DeltaDelay)
	return s.httpServer().Serve(ln)
}

func (s *Server) httpServer() *http.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		s.server = &http.Server{
			Handler:           s.engine,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}
	return s.server
}

// Shutdown gracefully stops the server, letting open streams finish
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("mock gateway shutting down")
	return s.httpServer().Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// envelope mirrors the gateway's response wrapper.
type envelope struct {
	Success   bool        `json:"success"`
	Detail    interface{} `json:"detail"`
	Timestamp string      `json:"timestamp"`
}

type errorDetail struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// writeJSON writes a success envelope.
func writeJSON(c *gin.Context, status int, detail interface{}) {
	c.JSON(status, envelope{Success: true, Detail: detail, Timestamp: timestamp()})
}

// writeError writes a failure envelope and aborts the chain.
func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{
		Success:   false,
		Detail:    errorDetail{Code: code, Message: message},
		Timestamp: timestamp(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
