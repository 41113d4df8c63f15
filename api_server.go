package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxRequestBodyBytes = 1 << 20 // 1MB

// APIServerConfig tunes request throttling.
type APIServerConfig struct {
	// Rate is mutating requests per second allowed per client IP
	Rate float64
	// Burst is the per-IP burst size
	Burst int
}

// APIServer serves the authenticated JSON API and the metrics endpoint.
type APIServer struct {
	daemon  *Daemon
	logger  *zap.Logger
	dataDir string
	token   string
	server  *http.Server
	addr    net.Addr

	limiter     *ipLimiter
	idempotency *idempotencyCache
}

// NewAPIServer creates a new API server.
func NewAPIServer(daemon *Daemon, dataDir string, cfg APIServerConfig, logger *zap.Logger) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultConfig().APIRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().APIBurst
	}
	return &APIServer{
		daemon:      daemon,
		logger:      logger.With(zap.String("component", "api")),
		dataDir:     dataDir,
		limiter:     newIPLimiter(cfg.Rate, cfg.Burst),
		idempotency: newIdempotencyCache(10*time.Minute, 1024),
	}
}

// handler assembles routes and middleware for the given token.
func (s *APIServer) handler(token string) http.Handler {
	mux := http.NewServeMux()
	s.registerPublicRoutes(mux)
	s.registerPrivateRoutes(mux)

	var handler http.Handler = mux
	handler = authMiddleware(token, handler)
	handler = maxBodySize(handler, maxRequestBodyBytes)
	return handler
}

// Start launches the API server on addr.
func (s *APIServer) Start(addr string) error {
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate auth token: %w", err)
	}
	s.token = token

	if err := writeCookie(s.dataDir, token); err != nil {
		deleteCookie(s.dataDir)
		return fmt.Errorf("failed to write cookie: %w", err)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler(token),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		deleteCookie(s.dataDir)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = ln.Addr()

	s.logger.Info("API listening", zap.Stringer("addr", ln.Addr()))

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound listen address once started.
func (s *APIServer) Addr() net.Addr {
	return s.addr
}

// Stop gracefully shuts down the API server and removes the cookie file.
func (s *APIServer) Stop() error {
	defer deleteCookie(s.dataDir)
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// maxBodySize limits request body size to prevent OOM from large payloads.
func maxBodySize(next http.Handler, bytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, bytes)
		next.ServeHTTP(w, r)
	})
}
