package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/komasaru/iss-sgp4-json/internal/metrics"
)

// writeWindow bounds each write on a stream.
const writeWindow = 30 * time.Second

// minBurst lets a single frame through a low bandwidth limit.
const minBurst = 4096

// client writes SSE frames to one connection.
type client struct {
	ctx       context.Context
	bandwidth *rate.Limiter // nil when unlimited

	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendJSON sends v as a single "data:" event.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := c.write("data: " + string(data) + "\n\n"); err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendRetry sets the client's reconnect delay in milliseconds.
func (c *client) sendRetry(ms int) error {
	return c.write(fmt.Sprintf("retry: %d\n\n", ms))
}

// sendKeepalive sends an SSE comment line.
func (c *client) sendKeepalive() error {
	if err := c.write(":\n\n"); err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	return nil
}

// pace blocks until n bytes fit the bandwidth limit. WaitN refuses more
// than one burst, so large frames are paid for in burst-sized chunks.
func (c *client) pace(n int) error {
	if c.bandwidth == nil {
		return nil
	}
	burst := c.bandwidth.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.bandwidth.WaitN(c.ctx, chunk); err != nil {
			return fmt.Errorf("bandwidth wait: %w", err)
		}
		n -= chunk
	}
	return nil
}

func (c *client) write(frame string) error {
	if err := c.pace(len(frame)); err != nil {
		return err
	}
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWindow)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprint(c.w, frame)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return nil
}
