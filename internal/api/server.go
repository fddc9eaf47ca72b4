package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/health"
	"github.com/komasaru/iss-sgp4-json/internal/iers"
	"github.com/komasaru/iss-sgp4-json/internal/metrics"
	"github.com/komasaru/iss-sgp4-json/internal/propagation"
	"github.com/komasaru/iss-sgp4-json/internal/stream"
	"github.com/komasaru/iss-sgp4-json/internal/timescale"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
	"github.com/komasaru/iss-sgp4-json/internal/track"
)

// Options configures the HTTP surface.
type Options struct {
	Addr string

	// Token enables Bearer authentication on /api/v1/ routes when set.
	Token      string
	TrustProxy bool

	// MaxPositions bounds the samples a single track request may compute.
	MaxPositions int

	// RateLimit is the per-IP request budget per minute on /api/v1/
	// routes; zero disables it.
	RateLimit int

	StreamMaxPerIP  int
	StreamKeepalive time.Duration
	StreamBandwidth int // bytes per second per stream, zero for unlimited
}

// Deps are the loaded tables and workers shared by every request.
type Deps struct {
	Resolver timescale.Resolver
	EOP      *iers.EOPTable
	Leap     *iers.LeapSecondTable
	Store    *tle.Store
	Pool     *propagation.WorkerPool

	// Track is the default request configuration.
	Track track.Config
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	stream     *stream.Handler
	deps       Deps
	opts       Options
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(opts Options, deps Deps, logger *slog.Logger) *Server {
	s := &Server{deps: deps, opts: opts, logger: logger}
	s.stream = stream.NewHandler(deps.Store, func() epoch.Instant {
		return deps.Resolver.Converter.LocalNow(time.Now())
	}, stream.Config{
		MaxConcurrentPerIP: opts.StreamMaxPerIP,
		KeepaliveInterval:  opts.StreamKeepalive,
		BandwidthLimit:     opts.StreamBandwidth,
		ClientIP: func(r *http.Request) string {
			return clientIP(r, opts.TrustProxy)
		},
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(s.readinessChecks()...))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/position", s.positionHandler)
	mux.HandleFunc("GET /api/v1/track", s.trackHandler)
	mux.HandleFunc("GET /api/v1/tables", s.tablesHandler)
	mux.HandleFunc("GET /api/v1/elements/{norad_id}", s.elementsHandler)
	mux.HandleFunc("GET /api/v1/stream", s.streamHandler)

	// Build middleware chain: metrics -> logging -> auth -> rate limit -> mux.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(newIPRateLimiter(opts.RateLimit), opts.TrustProxy)(handler)
	handler = authMiddleware(opts.Token)(handler)
	handler = loggingMiddleware(logger, opts.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) readinessChecks() []health.Check {
	return []health.Check{
		{Name: "eop", Fn: func() error {
			if s.deps.EOP == nil || s.deps.EOP.Len() == 0 {
				return errors.New("no Earth-orientation records loaded")
			}
			return nil
		}},
		{Name: "leap_seconds", Fn: func() error {
			if s.deps.Leap == nil || s.deps.Leap.Len() == 0 {
				return errors.New("no leap-second entries loaded")
			}
			return nil
		}},
		{Name: "tle", Fn: func() error {
			if ds := s.deps.Store.Get(); ds == nil || len(ds.Entries) == 0 {
				return errors.New("no element sets loaded")
			}
			return nil
		}},
	}
}
