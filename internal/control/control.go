// Package control drives the quorum service's session control API: pausing,
// resuming, terminating, exporting, and restarting a deliberation from a
// checkpoint. Streaming is internal/stream's job; this package only issues
// commands.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/internal/deliberation"
)

const defaultTimeout = 15 * time.Second

// ErrSessionNotFound reports a control call against an unknown session.
var ErrSessionNotFound = errors.New("control: session not found")

// APIError carries a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("control: service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("control: service returned %d", e.StatusCode)
}

// Transcript is the service's exported record of a deliberation.
type Transcript struct {
	SessionID  string            `json:"session_id"`
	ExportedAt string            `json:"exported_at"`
	Events     []json.RawMessage `json:"events"`
}

// Client issues control calls for one session.
type Client struct {
	baseURL   string
	sessionID string
	http      *http.Client
	logger    deliberation.Logger

	// clientID identifies this terminal instance across calls so the
	// service can attribute concurrent control actions.
	clientID string
}

// Option adjusts a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying http.Client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger routes request diagnostics to a logbook component.
func WithLogger(logger deliberation.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a control client for the given service base URL and session.
func New(serverURL, sessionID string, opts ...Option) (*Client, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, errors.New("control: server URL required")
	}
	if sessionID == "" {
		return nil, errors.New("control: session id required")
	}
	c := &Client{
		baseURL:   serverURL,
		sessionID: sessionID,
		http:      &http.Client{Timeout: defaultTimeout},
		logger:    deliberation.NopLogger(),
		clientID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Pause asks the service to suspend the deliberation after the in-flight
// persona turn completes.
func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "pause", nil, nil)
}

// Resume continues a paused deliberation.
func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "resume", nil, nil)
}

// Terminate ends the deliberation. The reason is recorded in the session's
// audit trail.
func (c *Client) Terminate(ctx context.Context, reason string) error {
	body := map[string]string{"reason": reason}
	return c.post(ctx, "terminate", body, nil)
}

// Export fetches the full transcript of the session as the service has it,
// including events this client never saw.
func (c *Client) Export(ctx context.Context) (*Transcript, error) {
	var transcript Transcript
	if err := c.get(ctx, "export", &transcript); err != nil {
		return nil, err
	}
	return &transcript, nil
}

// ResumeFromCheckpoint restarts the deliberation from a named checkpoint and
// returns the id of the session the service continues under.
func (c *Client) ResumeFromCheckpoint(ctx context.Context, checkpointID string) (string, error) {
	if checkpointID == "" {
		return "", errors.New("control: checkpoint id required")
	}
	body := map[string]string{"checkpoint_id": checkpointID}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.post(ctx, "resume-from-checkpoint", body, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		out.SessionID = c.sessionID
	}
	return out.SessionID, nil
}

func (c *Client) post(ctx context.Context, action string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("control: encode %s body: %w", action, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.actionURL(action), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, action, out)
}

func (c *Client) get(ctx context.Context, action string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.actionURL(action), nil)
	if err != nil {
		return err
	}
	return c.do(req, action, out)
}

func (c *Client) do(req *http.Request, action string, out any) error {
	requestID := uuid.NewString()
	req.Header.Set("X-Quorum-Client", c.clientID)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control: %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, c.sessionID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := readErrorMessage(resp.Body)
		c.logger.Printf("%s failed (request %s): status %d", action, requestID, resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("control: decode %s response: %w", action, err)
	}
	return nil
}

func (c *Client) actionURL(action string) string {
	return c.baseURL + "/v1/sessions/" + c.sessionID + "/" + action
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(data))
}
