package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/navikt/liveroom/internal/chat"
	"github.com/navikt/liveroom/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a scriptable chat transport. Fetch and Send block on
// their gates when set.
type fakeTransport struct {
	mu        sync.Mutex
	messages  []models.ChatMessage
	fetches   int
	sends     []string
	sendErr   error
	fetchGate chan struct{}
	sendGate  chan struct{}
	nextID    int
	ticks     chan struct{}
}

func newFakeTransport(msgs ...models.ChatMessage) *fakeTransport {
	return &fakeTransport{messages: msgs, ticks: make(chan struct{})}
}

func (f *fakeTransport) Fetch(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	f.mu.Lock()
	gate := f.fetchGate
	snapshot := append([]models.ChatMessage(nil), f.messages...)
	f.fetches++
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, nil
}

func (f *fakeTransport) Send(ctx context.Context, sessionID, text string, ts time.Time) (models.ChatMessage, error) {
	f.mu.Lock()
	gate := f.sendGate
	f.sends = append(f.sends, text)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return models.ChatMessage{}, f.sendErr
	}
	f.nextID++
	msg := models.ChatMessage{
		ID:        models.Confirmed("srv" + string(rune('0'+f.nextID))),
		UserName:  "Me",
		UserRole:  models.RoleStudent,
		Message:   text,
		Timestamp: ts,
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, error) {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.ticks:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

var me = models.Participant{ID: "u-me", Name: "Me", Role: models.RoleStudent}

func TestLogSendRejectsInvalidText(t *testing.T) {
	transport := newFakeTransport()
	log := chat.NewLog("s1", transport, me, chat.Options{})

	_, err := log.Send(context.Background(), strings.Repeat("a", 501))
	assert.True(t, errors.Is(err, chat.ErrMessageTooLong))

	_, err = log.Send(context.Background(), "   ")
	assert.True(t, errors.Is(err, chat.ErrEmptyMessage))

	// Nothing reached the backend and nothing was appended
	assert.Equal(t, 0, transport.sendCount())
	assert.Empty(t, log.Messages())

	// Exactly 500 characters is fine
	_, err = log.Send(context.Background(), strings.Repeat("a", 500))
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.sendCount())
}

func TestLogSendSwapsPlaceholder(t *testing.T) {
	transport := newFakeTransport()
	transport.sendGate = make(chan struct{})

	var mu sync.Mutex
	var snapshots [][]models.ChatMessage
	log := chat.NewLog("s1", transport, me, chat.Options{
		OnChange: func(msgs []models.ChatMessage) {
			mu.Lock()
			snapshots = append(snapshots, msgs)
			mu.Unlock()
		},
	})

	done := make(chan models.ChatMessage)
	go func() {
		msg, err := log.Send(context.Background(), "hello")
		assert.NoError(t, err)
		done <- msg
	}()

	// The optimistic entry is visible before the backend answers
	require.Eventually(t, func() bool { return len(log.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	optimistic := log.Messages()[0]
	assert.True(t, optimistic.ID.IsPending())
	assert.Equal(t, "hello", optimistic.Message)

	close(transport.sendGate)
	sent := <-done
	assert.Equal(t, models.Confirmed("srv1"), sent.ID)

	msgs := log.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.Confirmed("srv1"), msgs[0].ID)

	mu.Lock()
	assert.GreaterOrEqual(t, len(snapshots), 2)
	mu.Unlock()
}

func TestLogSendFailureFlagsMessage(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("network down")

	var reported error
	log := chat.NewLog("s1", transport, me, chat.Options{
		OnError: func(err error) { reported = err },
	})

	msg, err := log.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, msg.Failed)
	require.Error(t, reported)
	assert.Contains(t, reported.Error(), "network down")

	msgs := log.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Failed)
	assert.True(t, msgs[0].ID.IsPending())

	// A failed entry survives later refreshes
	require.NoError(t, log.Refresh(context.Background()))
	require.NoError(t, log.Refresh(context.Background()))
	assert.Len(t, log.Messages(), 1)
}

func TestLogSendDuringInFlightPoll(t *testing.T) {
	transport := newFakeTransport(confirmed("m1", "first", 0))
	log := chat.NewLog("s1", transport, me, chat.Options{Now: func() time.Time { return t0.Add(time.Minute) }})
	require.NoError(t, log.Refresh(context.Background()))

	// Poll starts and blocks with a list that predates the send
	transport.mu.Lock()
	transport.fetchGate = make(chan struct{})
	transport.sendGate = make(chan struct{})
	transport.mu.Unlock()

	refreshed := make(chan error)
	go func() { refreshed <- log.Refresh(context.Background()) }()
	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.fetches == 2
	}, time.Second, 5*time.Millisecond)

	sent := make(chan error)
	go func() {
		_, err := log.Send(context.Background(), "mine")
		sent <- err
	}()
	require.Eventually(t, func() bool { return transport.sendCount() == 1 }, time.Second, 5*time.Millisecond)

	// The stale poll resolves while the send is still in flight
	close(transport.fetchGate)
	require.NoError(t, <-refreshed)
	assert.Equal(t, []string{"first", "mine"}, texts(log.Messages()))

	// The send completes, then another stale poll (snapshot taken earlier) resolves
	transport.mu.Lock()
	transport.fetchGate = make(chan struct{})
	transport.mu.Unlock()
	go func() { refreshed <- log.Refresh(context.Background()) }()
	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.fetches == 3
	}, time.Second, 5*time.Millisecond)

	close(transport.sendGate)
	require.NoError(t, <-sent)
	close(transport.fetchGate)
	require.NoError(t, <-refreshed)
	assert.Equal(t, []string{"first", "mine"}, texts(log.Messages()))

	// A fresh poll contains the persisted copy exactly once
	transport.mu.Lock()
	transport.fetchGate = nil
	transport.mu.Unlock()
	require.NoError(t, log.Refresh(context.Background()))
	msgs := log.Messages()
	assert.Equal(t, []string{"first", "mine"}, texts(msgs))
	assert.False(t, msgs[1].ID.IsPending())
}

func TestLogRefreshDiscardsStaleResults(t *testing.T) {
	transport := newFakeTransport(confirmed("m1", "first", 0))
	transport.fetchGate = make(chan struct{})
	log := chat.NewLog("s1", transport, me, chat.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error)
	go func() { result <- log.Refresh(ctx) }()

	cancel()
	err := <-result
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, log.Messages())

	// Closed logs ignore late results too
	transport.mu.Lock()
	transport.fetchGate = nil
	transport.mu.Unlock()
	log.Close()
	assert.True(t, errors.Is(log.Refresh(context.Background()), chat.ErrClosed))
	assert.Empty(t, log.Messages())

	_, err = log.Send(context.Background(), "late")
	assert.True(t, errors.Is(err, chat.ErrClosed))
}

func TestLogNotices(t *testing.T) {
	transport := newFakeTransport(confirmed("m1", "first", 0))
	log := chat.NewLog("s1", transport, me, chat.Options{Now: func() time.Time { return t0.Add(time.Second) }})

	require.NoError(t, log.Refresh(context.Background()))
	log.AddNotice("Welcome to the live session")
	require.NoError(t, log.Refresh(context.Background()))

	msgs := log.Messages()
	assert.Equal(t, []string{"first", "Welcome to the live session"}, texts(msgs))
	assert.Equal(t, models.RoleSystem, msgs[1].UserRole)
}

func TestPoller(t *testing.T) {
	transport := newFakeTransport(confirmed("m1", "first", 0))
	log := chat.NewLog("s1", transport, me, chat.Options{})
	poller := chat.NewPoller(log)
	assert.Equal(t, chat.StateIdle, poller.State())

	require.NoError(t, poller.Start(context.Background()))
	assert.Equal(t, chat.StatePolling, poller.State())
	assert.Equal(t, "polling", poller.State().String())

	// Initial load happened synchronously
	assert.Equal(t, []string{"first"}, texts(log.Messages()))

	// A new message shows up on the next tick
	transport.mu.Lock()
	transport.messages = append(transport.messages, confirmed("m2", "second", time.Second))
	transport.mu.Unlock()
	transport.ticks <- struct{}{}
	require.Eventually(t, func() bool { return len(log.Messages()) == 2 }, time.Second, 5*time.Millisecond)

	// Starting twice is a no-op
	require.NoError(t, poller.Start(context.Background()))

	poller.Stop()
	assert.Equal(t, chat.StateIdle, poller.State())
	poller.Stop()
}

func TestBubbles(t *testing.T) {
	msgs := []models.ChatMessage{
		{ID: models.Confirmed("m1"), Message: "hi", UserName: "A", UserRole: models.RoleStudent, Timestamp: t0},
		{ID: models.Confirmed("m2"), Message: "welcome", UserName: "Prof", UserRole: models.RoleTutor, Timestamp: t0},
		{ID: models.Pending(3), UserID: "u-me", Message: "mine", UserName: "Me", UserRole: models.RoleStudent, Timestamp: t0, Failed: true},
	}

	bubbles := chat.Bubbles(msgs, me)
	require.Len(t, bubbles, 3)

	assert.Equal(t, "hi", bubbles[0].Text)
	assert.Equal(t, "A", bubbles[0].Author)
	assert.False(t, bubbles[0].IsTutor)
	assert.False(t, bubbles[0].IsOwn)
	assert.Contains(t, bubbles[0].Render(), "A: hi")

	assert.True(t, bubbles[1].IsTutor)
	assert.Contains(t, bubbles[1].Render(), "Prof (tutor): welcome")

	assert.True(t, bubbles[2].IsOwn)
	assert.True(t, bubbles[2].Failed)
	assert.Contains(t, bubbles[2].Render(), "(not delivered)")
}

func TestBubbleOwnByName(t *testing.T) {
	anonymous := models.Participant{Name: me.Name, Role: models.RoleStudent}

	// Someone else with the same display name
	remote := models.ChatMessage{ID: models.Confirmed("m1"), Message: "hi", UserName: me.Name, UserRole: models.RoleStudent, Timestamp: t0}
	assert.False(t, chat.NewBubble(remote, anonymous).IsOwn)
	assert.False(t, chat.NewBubble(remote, me).IsOwn)

	local := remote
	local.ID = models.Pending(1)
	local.Local = true
	assert.True(t, chat.NewBubble(local, anonymous).IsOwn)

	// A known author ID wins over the name
	other := remote
	other.UserID = "u-other"
	assert.False(t, chat.NewBubble(other, me).IsOwn)
}
