// ABOUTME: Background SSE event stream for the MCP client.
// ABOUTME: Reconnects transient drops with exponential backoff before going fatal.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmaxmax/go-sse"
)

// backoffPolicy governs reconnection of the standalone event stream.
type backoffPolicy struct {
	initialDelay time.Duration
	growthFactor float64
	maxDelay     time.Duration
	maxRetries   int
}

var defaultBackoff = backoffPolicy{
	initialDelay: 1 * time.Second,
	growthFactor: 1.5,
	maxDelay:     20 * time.Second,
	maxRetries:   5,
}

// next grows the backoff delay by the configured factor, clamped to the
// maximum.
func (p backoffPolicy) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * p.growthFactor)
	if n > p.maxDelay {
		return p.maxDelay
	}
	return n
}

// maintainStream keeps the server->client event stream open for the life of
// the session. Transient drops are retried with exponential backoff; only
// after maxRetries consecutive failures is the connection marked dead.
func (c *Client) maintainStream(ctx context.Context) {
	defer close(c.streamDone)

	attempts := 0
	delay := c.backoff.initialDelay

	for {
		established, err := c.listenStream(ctx)
		if err == nil {
			// Stream unsupported or session over; nothing to maintain.
			return
		}
		if ctx.Err() != nil {
			return
		}

		// The retry budget is per outage: a stream that came up and later
		// dropped starts a fresh backoff sequence.
		if established {
			attempts = 0
			delay = c.backoff.initialDelay
		}

		attempts++
		if attempts > c.backoff.maxRetries {
			c.logger.Error("event stream failed permanently, marking connection dead",
				"attempts", attempts-1,
				"error", err,
			)
			c.markStreamDead()
			return
		}

		c.logger.Warn("event stream dropped, reconnecting",
			"attempt", attempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay = c.backoff.next(delay)
	}
}

// listenStream opens one GET stream and consumes events until it ends.
// The bool reports whether the stream was established before failing.
// Returns a nil error when the server does not offer a stream or the
// context is done; an error on transport drops that warrant a reconnect.
func (c *Client) listenStream(ctx context.Context) (bool, error) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		// Server does not expose a standalone stream; that is allowed.
		c.logger.Debug("tool server offers no standalone event stream")
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
	}

	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return true, nil
			}
			return true, fmt.Errorf("stream read: %w", err)
		}
		c.handleStreamEvent(ctx, ev)
	}

	if ctx.Err() != nil {
		return true, nil
	}
	// Server closed the stream; treat it as a transient drop.
	return true, errors.New("stream closed by server")
}

// handleStreamEvent processes one server-sent event. Only notifications are
// expected here; request/response traffic flows over POST.
func (c *Client) handleStreamEvent(ctx context.Context, ev sse.Event) {
	var msg JSONRPCRequest
	if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
		c.logger.Warn("unparseable stream event", "error", err)
		return
	}

	switch msg.Method {
	case notificationToolsChanged:
		c.refreshTools(ctx)
	case "":
		// Response frames and keepalives are ignored.
	default:
		c.logger.Debug("ignoring server notification", "method", msg.Method)
	}
}

// refreshTools re-fetches the tool list after a change notification.
func (c *Client) refreshTools(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}

	var listRes ListToolsResult
	if _, err := c.rpcLocked(ctx, methodToolsList, struct{}{}, &listRes); err != nil {
		c.logger.Warn("tool list refresh failed", "error", err)
		return
	}
	c.tools = listRes.Tools
	c.logger.Info("tool list refreshed", "count", len(c.tools))
}

// markStreamDead flips the client to disconnected after the stream gave up.
func (c *Client) markStreamDead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.tools = nil
	c.sessionID = ""
}
