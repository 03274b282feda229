package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
)

// WebSocket connection constants
const (
	wsDialTimeout      = 10 * time.Second
	wsWriteWait        = 10 * time.Second
	wsMaxMessageSize   = 64 * 1024 * 1024 // 64MB for audio
	wsMaxRetries       = 3
	wsRetryBackoffBase = time.Second
	wsRetryBackoffMax  = 10 * time.Second
	wsCloseGracePeriod = 5 * time.Second
	wsHeartbeat        = 30 * time.Second
)

// ErrConnClosed is returned when sending on a closed or never-opened connection.
var ErrConnClosed = errors.New("websocket is not connected")

// ConnectionError reports a failed realtime handshake. StatusCode is the HTTP
// status of the rejected upgrade, or 0 when no response was received.
type ConnectionError struct {
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("realtime connect failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("realtime connect failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// retryable reports whether another dial attempt may succeed.
func (e *ConnectionError) retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// realtimeConn wraps one websocket connection to the realtime API.
type realtimeConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// dialRealtime establishes a websocket connection, retrying transient
// failures with exponential backoff. Handshake rejections with a 4xx status
// are returned immediately.
func dialRealtime(ctx context.Context, url string, headers http.Header, backoffBase time.Duration) (*realtimeConn, error) {
	var lastErr *ConnectionError
	backoff := backoffBase

	for attempt := 1; attempt <= wsMaxRetries; attempt++ {
		conn, err := dialOnce(ctx, url, headers)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if !err.retryable() || ctx.Err() != nil || attempt == wsMaxRetries {
			break
		}

		logger.Warn("OpenAI Realtime: connection attempt failed",
			"attempt", attempt,
			"maxAttempts", wsMaxRetries,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, &ConnectionError{Err: errors.Join(ctx.Err(), lastErr.Err)}
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsRetryBackoffMax {
			backoff = wsRetryBackoffMax
		}
	}
	return nil, lastErr
}

func dialOnce(ctx context.Context, url string, headers http.Header) (*realtimeConn, *ConnectionError) {
	dialer := websocket.Dialer{
		HandshakeTimeout: wsDialTimeout,
	}

	logger.Debug("OpenAI Realtime: connecting to WebSocket", "url", url)

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
			logger.Error("OpenAI Realtime: WebSocket dial failed",
				"error", err,
				"status", status)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return nil, &ConnectionError{StatusCode: status, Err: fmt.Errorf("failed to connect: %w", err)}
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetReadLimit(wsMaxMessageSize)
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Err: fmt.Errorf("failed to set read deadline: %w", err)}
	}

	logger.Info("OpenAI Realtime: WebSocket connected successfully")
	return &realtimeConn{conn: conn, closeChan: make(chan struct{})}, nil
}

// Send marshals msg and writes it as one text frame.
func (c *realtimeConn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadLoop delivers each inbound message to handle until the connection
// closes. A normal closure or a local Close returns nil.
func (c *realtimeConn) ReadLoop(handle func([]byte)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		handle(data)
	}
}

// StartHeartbeat starts a goroutine that sends ping messages periodically.
func (c *realtimeConn) StartHeartbeat(interval time.Duration) {
	go c.heartbeatLoop(interval)
}

func (c *realtimeConn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// sendPing sends a ping message. Returns false if the heartbeat should stop.
func (c *realtimeConn) sendPing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		logger.Warn("OpenAI Realtime: failed to set write deadline for ping", "error", err)
		return true
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		logger.Warn("OpenAI Realtime: ping failed", "error", err)
		return false
	}
	return true
}

// Close closes the connection gracefully. It is safe to call more than once.
func (c *realtimeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeChan)

	_ = c.conn.SetWriteDeadline(time.Now().Add(wsCloseGracePeriod))
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteMessage(websocket.CloseMessage, closeMsg)

	return c.conn.Close()
}

func (c *realtimeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
