package signaling_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipe(t *testing.T) {
	ctx := context.Background()
	a, b := signaling.Pipe("a", "b")

	require.NoError(t, a.Send(ctx, signaling.Message{Type: signaling.TypeJoin, Role: models.RoleTutor}))
	msg, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, signaling.TypeJoin, msg.Type)
	assert.Equal(t, "a", msg.From)
	assert.Equal(t, models.RoleTutor, msg.Role)

	// A stamped sender is kept
	require.NoError(t, b.Send(ctx, signaling.Message{Type: signaling.TypeAnswer, From: "relayed", To: "a"}))
	msg, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, signaling.TypeAnswer, msg.Type)
	assert.Equal(t, "relayed", msg.From)

	// Closing one end closes both
	require.NoError(t, a.Close())
	_, err = b.Receive(ctx)
	assert.True(t, errors.Is(err, signaling.ErrClosed))
	assert.True(t, errors.Is(b.Send(ctx, signaling.Message{Type: signaling.TypeBye}), signaling.ErrClosed))
}

func newRelayServer(t *testing.T) (*signaling.Relay, string) {
	t.Helper()

	relay := signaling.NewRelay()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ch := signaling.NewWSChannel(conn)
		defer ch.Close()

		_ = relay.Serve(r.Context(), "s1", r.URL.Query().Get("peer"), ch)
	}))
	t.Cleanup(srv.Close)

	return relay, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, ch signaling.Channel) signaling.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := ch.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestRelay(t *testing.T) {
	relay, url := newRelayServer(t)
	ctx := context.Background()

	a, err := signaling.Dial(ctx, url, "secret", "peer-a")
	require.NoError(t, err)
	defer a.Close()
	require.Eventually(t, func() bool { return len(relay.Peers("s1")) == 1 }, 2*time.Second, 10*time.Millisecond)

	b, err := signaling.Dial(ctx, url, "secret", "peer-b")
	require.NoError(t, err)
	defer b.Close()
	require.Eventually(t, func() bool { return len(relay.Peers("s1")) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"peer-a", "peer-b"}, relay.Peers("s1"))

	// Broadcast join, stamped with the sender
	require.NoError(t, b.Send(ctx, signaling.Message{Type: signaling.TypeJoin, From: "spoofed"}))
	msg := receive(t, a)
	assert.Equal(t, signaling.TypeJoin, msg.Type)
	assert.Equal(t, "peer-b", msg.From)

	// Addressed offer with a session description
	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, a.Send(ctx, signaling.Message{Type: signaling.TypeOffer, To: "peer-b", SDP: offer}))
	msg = receive(t, b)
	assert.Equal(t, signaling.TypeOffer, msg.Type)
	require.NotNil(t, msg.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, msg.SDP.Type)
	assert.Equal(t, "v=0", msg.SDP.SDP)

	// Candidate round trip
	mid := "0"
	require.NoError(t, b.Send(ctx, signaling.Message{Type: signaling.TypeCandidate, To: "peer-a", Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid}}))
	msg = receive(t, a)
	require.NotNil(t, msg.Candidate)
	assert.Equal(t, "0", *msg.Candidate.SDPMid)

	// Dropping a peer announces a bye
	require.NoError(t, b.Close())
	msg = receive(t, a)
	assert.Equal(t, signaling.TypeBye, msg.Type)
	assert.Equal(t, "peer-b", msg.From)
	require.Eventually(t, func() bool { return len(relay.Peers("s1")) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelayRejectsDuplicatePeer(t *testing.T) {
	relay := signaling.NewRelay()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, client := signaling.Pipe("relay", "peer-a")
	defer client.Close()
	go func() { _ = relay.Serve(ctx, "s1", "peer-a", server) }()
	require.Eventually(t, func() bool { return len(relay.Peers("s1")) == 1 }, time.Second, 5*time.Millisecond)

	other, _ := signaling.Pipe("relay", "peer-a")
	err := relay.Serve(ctx, "s1", "peer-a", other)
	assert.True(t, errors.Is(err, signaling.ErrDuplicatePeer))

	relay.CloseSession("s1")
	assert.Empty(t, relay.Peers("s1"))
}
