package chat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/navikt/liveroom/internal/chat"
	"github.com/navikt/liveroom/internal/models"
	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	fetched []string
	sent    []string
}

func (a *fakeAPI) FetchMessages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetched = append(a.fetched, id)
	return []models.ChatMessage{confirmed("m1", "first", 0)}, nil
}

func (a *fakeAPI) SendMessage(ctx context.Context, id, text string, ts time.Time) (models.ChatMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
	return models.ChatMessage{ID: models.Confirmed("m2"), Message: text, Timestamp: ts}, nil
}

func TestPollingTransport(t *testing.T) {
	api := &fakeAPI{}
	transport := chat.NewPollingTransport(api, 10*time.Millisecond)

	msgs, err := transport.Fetch(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	msg, err := transport.Send(context.Background(), "s1", "hello", t0)
	require.NoError(t, err)
	assert.Equal(t, models.Confirmed("m2"), msg.ID)
	assert.Equal(t, []string{"hello"}, api.sent)

	ctx, cancel := context.WithCancel(context.Background())
	ticks, err := transport.Subscribe(ctx, "s1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("expected a tick")
		}
	}

	// The channel closes once the context is cancelled
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ticks:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestPollingTransportDefaultInterval(t *testing.T) {
	// Constructed with a zero interval it must still be usable
	transport := chat.NewPollingTransport(&fakeAPI{}, 0)
	assert.NotNil(t, transport)
}

func TestPushTransport(t *testing.T) {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream("s1")
	defer server.Close()

	var authHeader string
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeader = r.Header.Get("Authorization")
		mu.Unlock()
		server.ServeHTTP(w, r)
	}))
	defer ts.Close()

	api := &fakeAPI{}
	transport := chat.NewPushTransport(api, func(id string) string {
		return ts.URL + "/events?stream=" + id
	}, "token-123")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := transport.Subscribe(ctx, "s1")
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, "Bearer token-123", authHeader)
	mu.Unlock()

	// Session events do not trigger a refresh
	server.Publish("s1", &sse.Event{Event: []byte(chat.EventSession), Data: []byte(`{"status":"live"}`)})
	select {
	case <-ticks:
		t.Fatal("session event should not signal the chat")
	case <-time.After(50 * time.Millisecond):
	}

	server.Publish("s1", &sse.Event{Event: []byte(chat.EventMessage), Data: []byte(`{"_id":"m2"}`)})
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a message signal")
	}

	// REST calls go through the API
	_, err = transport.Fetch(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, api.fetched)
}

// endingStream serves one message event per connection and then ends the
// stream. Connections after the first up to healthy succeed, later ones fail.
type endingStream struct {
	mu          sync.Mutex
	connections int
	healthy     int
}

func (s *endingStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

func (s *endingStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.connections++
	n := s.connections
	s.mu.Unlock()

	if s.healthy > 0 && n > s.healthy {
		http.Error(w, "gone", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("event: message\ndata: {}\n\n"))
	w.(http.Flusher).Flush()
}

func TestPushTransportReconnectsWhenStreamEnds(t *testing.T) {
	stream := &endingStream{}
	ts := httptest.NewServer(stream)
	defer ts.Close()

	transport := chat.NewPushTransport(&fakeAPI{}, func(id string) string {
		return ts.URL + "/events?stream=" + id
	}, "").WithReconnect(10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := transport.Subscribe(ctx, "s1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		select {
		case _, ok := <-ticks:
			require.True(t, ok, "channel closed while the context is live")
		case <-time.After(2 * time.Second):
			t.Fatal("expected a signal after the stream ended")
		}
	}
	assert.Eventually(t, func() bool { return stream.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestPushTransportFallsBackToPolling(t *testing.T) {
	stream := &endingStream{healthy: 1}
	ts := httptest.NewServer(stream)
	defer ts.Close()

	transport := chat.NewPushTransport(&fakeAPI{}, func(id string) string {
		return ts.URL + "/events?stream=" + id
	}, "").WithReconnect(10*time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := transport.Subscribe(ctx, "s1")
	require.NoError(t, err)

	// Wait until every reconnect attempt has failed
	require.Eventually(t, func() bool { return stream.count() >= 5 }, 10*time.Second, 10*time.Millisecond)

	// Then refreshes keep coming from the timer
	drained := 0
	deadline := time.After(5 * time.Second)
	for drained < 5 {
		select {
		case _, ok := <-ticks:
			require.True(t, ok, "channel closed while the context is live")
			drained++
		case <-deadline:
			t.Fatalf("got %d signals after falling back to polling", drained)
		}
	}
	assert.Equal(t, 5, stream.count(), "no reconnects once polling")

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ticks:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
