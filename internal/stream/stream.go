// Package stream maintains the websocket connection that pushes deliberation
// events from the quorum service into the client. It reconnects on its own and
// reports whether a resumed connection is continuous with what was seen before.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quorumlabs/quorum/internal/deliberation"
)

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second

	handshakeTimeout = 10 * time.Second
)

// ErrClosed is returned by Run after Close is called.
var ErrClosed = errors.New("stream: closed")

// connectionAck is the first frame the service sends on every connection. On a
// resumed connection it says whether the stream picks up exactly where the
// supplied marker left off.
type connectionAck struct {
	Type         string `json:"type"`
	Continuous   bool   `json:"continuous"`
	MissedEvents int    `json:"missed_events"`
}

// Config wires a Client to a session and its consumer callbacks.
type Config struct {
	// ServerURL is the service base URL (http or https).
	ServerURL string
	// SessionID selects the deliberation session to stream.
	SessionID string

	// Marker supplies the most recent event marker seen by the consumer; it
	// is queried before every (re)connect so the service can resume from it.
	// May return "" when nothing has been seen yet.
	Marker func() string

	// OnEvent receives each raw event frame in arrival order.
	OnEvent func(raw []byte)
	// OnResume fires after a reconnect, before any replayed or new events
	// from the fresh connection are delivered.
	OnResume func(info deliberation.ResumeInfo)

	Logger deliberation.Logger

	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

// Client owns the connection lifecycle for one session.
type Client struct {
	cfg    Config
	logger deliberation.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// New validates the config and returns an unconnected client; call Run to
// start streaming.
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("stream: server URL required")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("stream: session id required")
	}
	if cfg.OnEvent == nil {
		return nil, errors.New("stream: OnEvent callback required")
	}
	if cfg.Marker == nil {
		cfg.Marker = func() string { return "" }
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = deliberation.NopLogger()
	}
	return &Client{cfg: cfg, logger: logger, done: make(chan struct{})}, nil
}

// Run connects and keeps streaming until ctx is cancelled or Close is called.
// It blocks; run it on its own goroutine.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	backoff := c.cfg.BackoffBase
	for {
		if err := c.checkDone(ctx); err != nil {
			return err
		}

		conn, ack, err := c.connect(ctx)
		if err != nil {
			c.logger.Printf("connect attempt %d failed: %v", attempt+1, err)
			if waitErr := c.wait(ctx, backoff); waitErr != nil {
				return waitErr
			}
			backoff = nextBackoff(backoff, c.cfg.BackoffMax)
			attempt++
			continue
		}

		if attempt > 0 && c.cfg.OnResume != nil {
			c.cfg.OnResume(deliberation.ResumeInfo{
				Marker:     c.cfg.Marker(),
				Continuous: ack.Continuous,
				MissedHint: ack.MissedEvents,
			})
		}
		backoff = c.cfg.BackoffBase
		attempt++

		err = c.readLoop(conn)
		c.dropConn(conn)
		if doneErr := c.checkDone(ctx); doneErr != nil {
			return doneErr
		}
		c.logger.Printf("connection lost: %v", err)
		if waitErr := c.wait(ctx, backoff); waitErr != nil {
			return waitErr
		}
		backoff = nextBackoff(backoff, c.cfg.BackoffMax)
	}
}

// Close tears down the connection and unblocks Run. Safe to call more than
// once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, connectionAck, error) {
	target, err := c.endpoint()
	if err != nil {
		return nil, connectionAck{}, err
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, connectionAck{}, fmt.Errorf("session %s not found: %w", c.cfg.SessionID, err)
		}
		return nil, connectionAck{}, err
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, connectionAck{}, fmt.Errorf("awaiting ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var ack connectionAck
	if err := json.Unmarshal(raw, &ack); err != nil || ack.Type != "connection_ack" {
		conn.Close()
		return nil, connectionAck{}, fmt.Errorf("unexpected handshake frame: %s", raw)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, connectionAck{}, ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	return conn, ack, nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.cfg.OnEvent(raw)
	}
}

func (c *Client) endpoint() (string, error) {
	base, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("stream: parse server URL: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("stream: unsupported scheme %q", base.Scheme)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/v1/sessions/" + c.cfg.SessionID + "/events"
	if marker := c.cfg.Marker(); marker != "" {
		query := base.Query()
		query.Set("after", marker)
		base.RawQuery = query.Encode()
	}
	return base.String(), nil
}

func (c *Client) dropConn(conn *websocket.Conn) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) checkDone(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
