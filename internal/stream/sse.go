// Package stream implements Server-Sent Events (SSE) streaming of a
// satellite's live ground position. The API mounts it at
// GET /api/v1/stream?step=5&norad_id=25544.
//
// The first message on every connection is metadata:
//
//	data: {"type":"metadata","norad_id":25544,"step_seconds":5,"dataset_source":"...","dataset_fetched_at":"...","tle_age_seconds":1800}\n\n
//
// followed by one position per step, starting immediately:
//
//	data: {"type":"position","local":"...","utc":"...","latitude":...,"longitude":...,"height":...,"velocity":...}\n\n
//
// A sample that cannot be computed is reported as a "sample_error" message
// and the stream continues. Keep-alive comments (:\n\n) are sent every
// KeepaliveInterval without data.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/metrics"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
	"github.com/komasaru/iss-sgp4-json/internal/track"
)

// Positioner computes the satellite position at a local civil time.
type Positioner interface {
	At(ctx context.Context, local epoch.Instant) (track.Point, error)
}

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	BandwidthLimit     int           // Bytes per second per stream; zero is unlimited.

	// ClientIP identifies the caller for the per-IP limit.
	ClientIP func(*http.Request) string
}

// Handler manages SSE streaming connections.
type Handler struct {
	store   *tle.Store
	now     func() epoch.Instant
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a streaming handler. now returns the current local
// civil time.
func NewHandler(store *tle.Store, now func() epoch.Instant, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1000
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.ClientIP == nil {
		config.ClientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	return &Handler{
		store:   store,
		now:     now,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

// Serve streams positions of noradID from src every step until the client
// disconnects. Query parameters are validated by the caller.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, src Positioner, noradID int, step time.Duration) {
	ip := h.config.ClientIP(r)
	release, refused := h.limiter.acquire(ip)
	if release == nil {
		perIP, total := h.limiter.counts(ip)
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream limit exceeded",
			"remote_ip", ip,
			"limit", refused,
			"ip_streams", perIP,
			"total_streams", total,
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"norad_id", noradID,
		"step", step.String(),
	)

	var c *client
	defer func() {
		release()
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		attrs := []any{"remote_ip", ip, "duration_seconds", int(time.Since(startTime).Seconds())}
		if c != nil {
			attrs = append(attrs, "messages", c.messagesSent, "bytes", c.bytesSent)
		}
		h.logger.Info("stream disconnected", attrs...)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The server WriteTimeout would cut long-lived streams; each write
	// extends its own deadline instead.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c = &client{ctx: r.Context(), w: w, flusher: flusher, rc: rc, logger: h.logger}
	if h.config.BandwidthLimit > 0 {
		c.bandwidth = rate.NewLimiter(rate.Limit(h.config.BandwidthLimit), max(h.config.BandwidthLimit, minBurst))
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := c.sendRetry(3000 + rand.Intn(4000)); err != nil {
		return
	}

	if err := c.sendJSON(h.metadata(noradID, step)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ctx := r.Context()
	if !h.sendPosition(ctx, c, src, ip) {
		return
	}

	ticker := time.NewTicker(step)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !h.sendPosition(ctx, c, src, ip) {
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendPosition computes and sends the current position. It reports false
// once the connection is unusable.
func (h *Handler) sendPosition(ctx context.Context, c *client, src Positioner, ip string) bool {
	local := h.now()
	p, err := src.At(ctx, local)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.IncStreamErrors("sample_error")
		h.logger.Debug("stream sample failed", "local", local.String(), "error", err)
		if err := c.sendJSON(sampleErrorMessage{Type: "sample_error", Local: local.String(), Error: err.Error()}); err != nil {
			metrics.IncStreamErrors("send_error")
			return false
		}
		return true
	}
	if err := c.sendJSON(positionMessage{Type: "position", Point: p}); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return false
	}
	return true
}

func (h *Handler) metadata(noradID int, step time.Duration) metadataMessage {
	meta := metadataMessage{
		Type:        "metadata",
		NoradID:     noradID,
		StepSeconds: int(step / time.Second),
		TLEAge:      -1,
	}
	if ds := h.store.Get(); ds != nil {
		meta.DatasetSource = ds.Source
		meta.DatasetFetchedAt = ds.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(time.Since(ds.FetchedAt).Seconds())
	}
	return meta
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type             string `json:"type"`
	NoradID          int    `json:"norad_id"`
	StepSeconds      int    `json:"step_seconds"`
	DatasetSource    string `json:"dataset_source,omitempty"`
	DatasetFetchedAt string `json:"dataset_fetched_at,omitempty"`
	TLEAge           int    `json:"tle_age_seconds"`
}

type positionMessage struct {
	Type string `json:"type"`
	track.Point
}

type sampleErrorMessage struct {
	Type  string `json:"type"`
	Local string `json:"local"`
	Error string `json:"error"`
}
