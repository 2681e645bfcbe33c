// Package http serves the ledger and forecast JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cashflow/internal/log"
	"cashflow/internal/middleware/ratelimit"
	"cashflow/internal/middleware/security"
	"cashflow/internal/middleware/trace"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options tunes the server. The zero value is usable.
type Options struct {
	Logger    *log.Logger
	RateLimit ratelimit.Config
	Readiness []ReadinessCheck
}

// Server is the API server. Shutdown also stops the rate limiter.
type Server struct {
	http.Server

	ledgers   LedgerAPI
	forecasts ForecastAPI
	readiness []ReadinessCheck

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledgers LedgerAPI, forecasts ForecastAPI, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledgers:   ledgers,
		forecasts: forecasts,
		readiness: opts.Readiness,
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /ledgers", s.handleCreateLedger)
	mux.HandleFunc("GET /ledgers/{id}", s.handleGetLedger)
	mux.HandleFunc("POST /ledgers/{id}/commands/{command}", s.handleExecute)
	mux.HandleFunc("GET /ledgers/{id}/forecast", s.handleForecast)
	mux.HandleFunc("POST /ledgers/{id}/forecast/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /ledgers/{id}/consistency", s.handleConsistency)
	mux.HandleFunc("GET /owners/{owner}/ledgers", s.handleListLedgers)

	structured := log.NewStructuredLogger(logger)
	var handler http.Handler = mux
	handler = s.limiter.Middleware(security.ClientIP, writeRateLimited, http.MethodPost)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(security.ClientIP, structured.LogHTTPEnd).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
		Code:    "RATE_LIMITED",
		Message: "Rate limit exceeded. Please try again later.",
	}})
}
