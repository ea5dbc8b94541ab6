// Package client implements the REST client for the live-session API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/models"
)

// FallbackMessage is shown when the backend gives no usable error message
const FallbackMessage = "Something went wrong. Please try again."

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	// Message is the backend-provided message, if any
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("live-session API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("live-session API error (status %d)", e.StatusCode)
}

// UserMessage returns the best message to show a user for err
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}

// Client handles interactions with the live-session API
type Client struct {
	baseURL    string
	auth       *auth.Context
	httpClient *http.Client
}

// New creates a new API client. ac may be nil for unauthenticated calls.
func New(baseURL string, ac *auth.Context) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    ac,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithTimeout sets the per-request timeout
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Auth returns the authentication context used by the client
func (c *Client) Auth() *auth.Context {
	return c.auth
}

// CreateSession creates a new live session (tutor only)
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPost, "/live-session", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListCourseSessions lists the sessions of a course
func (c *Client) ListCourseSessions(ctx context.Context, courseID string) ([]models.Session, error) {
	var sessions []models.Session
	if err := c.do(ctx, http.MethodGet, "/live-session/course/"+url.PathEscape(courseID), nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListTutorSessions lists the sessions owned by the calling tutor
func (c *Client) ListTutorSessions(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	if err := c.do(ctx, http.MethodGet, "/live-session/tutor", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches a single session
func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// StartSession moves a scheduled session to live
func (c *Client) StartSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPut, sessionPath(id, "/start"), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession completes a live session, optionally recording where the
// recording is stored
func (c *Client) EndSession(ctx context.Context, id, recordingURL string) (*models.Session, error) {
	var session models.Session
	body := models.EndSessionRequest{RecordingURL: recordingURL}
	if err := c.do(ctx, http.MethodPut, sessionPath(id, "/end"), body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// JoinSession registers the caller as a participant
func (c *Client) JoinSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "/join"), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// LeaveSession removes the caller from the participants
func (c *Client) LeaveSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "/leave"), nil, nil)
}

// UpdateSession changes the editable fields of a session
func (c *Client) UpdateSession(ctx context.Context, id string, req models.UpdateSessionRequest) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPut, sessionPath(id, ""), req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// SendMessage posts a chat message and returns it as persisted
func (c *Client) SendMessage(ctx context.Context, id, text string, ts time.Time) (models.ChatMessage, error) {
	var msg models.ChatMessage
	body := models.SendMessageRequest{Message: text, Timestamp: ts}
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "/message"), body, &msg); err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// FetchMessages returns the persisted chat log of a session
func (c *Client) FetchMessages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "/messages"), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// IssueDevToken asks the development backend for a token
func (c *Client) IssueDevToken(ctx context.Context, req models.TokenRequest) (string, error) {
	var resp models.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/token", req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// EventsURL returns the URL of a session's server-sent event stream
func (c *Client) EventsURL(id string) string {
	return c.baseURL + sessionPath(id, "/events")
}

// SignalURL returns the WebSocket URL of a session's signaling relay
func (c *Client) SignalURL(id string) string {
	u := c.baseURL + sessionPath(id, "/signal")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func sessionPath(id, suffix string) string {
	return "/live-session/" + url.PathEscape(id) + suffix
}

// do performs a JSON request and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth.Authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope models.ErrorResponse
		if json.Unmarshal(respBody, &envelope) == nil {
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
