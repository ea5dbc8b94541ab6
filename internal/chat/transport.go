package chat

import (
	"context"
	"time"

	"github.com/navikt/liveroom/internal/models"
)

// Transport moves chat messages between the room and the backend. The room
// only depends on this interface so polling can be swapped for a push
// channel without touching the UI.
type Transport interface {
	// Fetch returns the persisted chat log of a session
	Fetch(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	// Send persists a message and returns it with its server-assigned ID
	Send(ctx context.Context, sessionID, text string, ts time.Time) (models.ChatMessage, error)
	// Subscribe returns a channel that receives a value whenever the log
	// should be fetched again. The channel is closed when ctx is done.
	Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, error)
}

// MessageAPI is the part of the REST client the transports use
type MessageAPI interface {
	FetchMessages(ctx context.Context, id string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, id, text string, ts time.Time) (models.ChatMessage, error)
}

// DefaultPollInterval is the chat refresh period
const DefaultPollInterval = 3 * time.Second

// PollingTransport discovers new messages by refetching on a fixed timer
type PollingTransport struct {
	api      MessageAPI
	interval time.Duration
}

// NewPollingTransport creates a polling transport. A zero interval uses
// DefaultPollInterval.
func NewPollingTransport(api MessageAPI, interval time.Duration) *PollingTransport {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingTransport{api: api, interval: interval}
}

// Fetch returns the persisted chat log of a session
func (t *PollingTransport) Fetch(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return t.api.FetchMessages(ctx, sessionID)
}

// Send persists a message
func (t *PollingTransport) Send(ctx context.Context, sessionID, text string, ts time.Time) (models.ChatMessage, error) {
	return t.api.SendMessage(ctx, sessionID, text, ts)
}

// Subscribe ticks every interval until ctx is done
func (t *PollingTransport) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				signal(ch)
			}
		}
	}()

	return ch, nil
}
