package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/navikt/liveroom/internal/models"
	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

// Event names published on a session's event stream
const (
	EventMessage = "message"
	EventSession = "session"
)

var errStreamClosed = errors.New("event stream closed")

// PushTransport fetches and sends over REST but learns about new messages
// from the session's server-sent event stream instead of a timer. When the
// stream ends it reconnects, and if that fails it falls back to polling.
type PushTransport struct {
	api            MessageAPI
	eventsURL      func(sessionID string) string
	token          string
	retries        uint64
	reconnectDelay time.Duration
	pollInterval   time.Duration
}

// NewPushTransport creates a push transport. eventsURL maps a session ID to
// its event stream URL; token is sent as a bearer token.
func NewPushTransport(api MessageAPI, eventsURL func(sessionID string) string, token string) *PushTransport {
	return &PushTransport{
		api:            api,
		eventsURL:      eventsURL,
		token:          token,
		retries:        3,
		reconnectDelay: time.Second,
		pollInterval:   DefaultPollInterval,
	}
}

// WithReconnect sets the pause before reconnecting to an ended stream and
// the refresh period used once reconnecting has failed
func (t *PushTransport) WithReconnect(delay, pollInterval time.Duration) *PushTransport {
	t.reconnectDelay = delay
	if pollInterval > 0 {
		t.pollInterval = pollInterval
	}
	return t
}

// Fetch returns the persisted chat log of a session
func (t *PushTransport) Fetch(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return t.api.FetchMessages(ctx, sessionID)
}

// Send persists a message
func (t *PushTransport) Send(ctx context.Context, sessionID, text string, ts time.Time) (models.ChatMessage, error) {
	return t.api.SendMessage(ctx, sessionID, text, ts)
}

// Subscribe connects to the event stream and signals on every message event.
// It returns an error if the first connection fails. The channel stays open
// until ctx is done.
func (t *PushTransport) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)

	done, err := t.stream(ctx, sessionID, out)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to chat events: %w", err)
	}

	go func() {
		defer close(out)

		for {
			var err error
			select {
			case <-ctx.Done():
				return
			case err = <-done:
			}
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = errStreamClosed
			}
			log.Printf("Chat events of session %s: %v, reconnecting", sessionID, err)

			// Messages may have arrived while disconnected
			signal(out)

			select {
			case <-ctx.Done():
				return
			case <-time.After(t.reconnectDelay):
			}

			if done, err = t.stream(ctx, sessionID, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Could not reconnect to chat events, polling every %s: %v", t.pollInterval, err)
				t.poll(ctx, out)
				return
			}
		}
	}()

	return out, nil
}

// stream subscribes to the event stream and returns once connected. The
// returned channel yields the subscription's result when the stream ends.
func (t *PushTransport) stream(ctx context.Context, sessionID string, out chan<- struct{}) (<-chan error, error) {
	connected := make(chan struct{}, 1)

	c := sse.NewClient(t.eventsURL(sessionID))
	if t.token != "" {
		c.Headers["Authorization"] = "Bearer " + t.token
	}
	c.ReconnectStrategy = backoff.WithContext(backoff.WithMaxTries(backoff.NewExponentialBackOff(), t.retries), ctx)
	c.ResponseValidator = func(c *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("could not connect to stream: %s", http.StatusText(resp.StatusCode))
		}
		select {
		case connected <- struct{}{}:
		default:
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.SubscribeWithContext(ctx, "", func(ev *sse.Event) {
			if ev != nil && string(ev.Event) == EventMessage {
				signal(out)
			}
		})
	}()

	select {
	case <-connected:
		return done, nil
	case err := <-done:
		// Connected and ended before we looked
		select {
		case <-connected:
			done <- err
			return done, nil
		default:
		}
		if err == nil {
			err = errStreamClosed
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// poll signals every pollInterval until ctx is done
func (t *PushTransport) poll(ctx context.Context, out chan<- struct{}) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			signal(out)
		}
	}
}

// signal coalesces refreshes if the consumer is still busy
func signal(out chan<- struct{}) {
	select {
	case out <- struct{}{}:
	default:
	}
}
