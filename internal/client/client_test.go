package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/client"
	"github.com/navikt/liveroom/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]interface{}
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recordedRequest) {
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		requests = append(requests, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func testAuth(t *testing.T, role models.Role) *auth.Context {
	token, err := auth.NewSigner("secret", time.Hour).Issue("user1", "Ada", role)
	require.NoError(t, err)
	ac, err := auth.NewContext(token)
	require.NoError(t, err)
	return ac
}

func TestClientEndpoints(t *testing.T) {
	session := models.Session{ID: "s1", Title: "Algebra", Status: models.SessionStatusLive}

	srv, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/live-session/s1/messages":
			json.NewEncoder(w).Encode([]models.ChatMessage{{ID: models.Confirmed("m1"), Message: "hi"}})
		case r.URL.Path == "/live-session/s1/message":
			json.NewEncoder(w).Encode(models.ChatMessage{ID: models.Confirmed("m2"), Message: "hello"})
		case r.URL.Path == "/live-session/course/c1" || r.URL.Path == "/live-session/tutor":
			json.NewEncoder(w).Encode([]models.Session{session})
		case r.Method == http.MethodDelete || r.URL.Path == "/live-session/s1/leave":
			w.WriteHeader(http.StatusNoContent)
		default:
			json.NewEncoder(w).Encode(session)
		}
	})

	ac := testAuth(t, models.RoleTutor)
	c := client.New(srv.URL+"/", ac)
	ctx := context.Background()

	_, err := c.CreateSession(ctx, models.CreateSessionRequest{CourseID: "c1", Title: "Algebra"})
	require.NoError(t, err)
	list, err := c.ListCourseSessions(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = c.ListTutorSessions(ctx)
	require.NoError(t, err)
	got, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Algebra", got.Title)
	_, err = c.StartSession(ctx, "s1")
	require.NoError(t, err)
	_, err = c.EndSession(ctx, "s1", "https://cdn.example.com/rec.mp4")
	require.NoError(t, err)
	_, err = c.JoinSession(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, c.LeaveSession(ctx, "s1"))
	title := "Geometry"
	_, err = c.UpdateSession(ctx, "s1", models.UpdateSessionRequest{Title: &title})
	require.NoError(t, err)
	require.NoError(t, c.DeleteSession(ctx, "s1"))
	sent, err := c.SendMessage(ctx, "s1", "hello", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.Confirmed("m2"), sent.ID)
	msgs, err := c.FetchMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	expected := []struct{ method, path string }{
		{http.MethodPost, "/live-session"},
		{http.MethodGet, "/live-session/course/c1"},
		{http.MethodGet, "/live-session/tutor"},
		{http.MethodGet, "/live-session/s1"},
		{http.MethodPut, "/live-session/s1/start"},
		{http.MethodPut, "/live-session/s1/end"},
		{http.MethodPost, "/live-session/s1/join"},
		{http.MethodPost, "/live-session/s1/leave"},
		{http.MethodPut, "/live-session/s1"},
		{http.MethodDelete, "/live-session/s1"},
		{http.MethodPost, "/live-session/s1/message"},
		{http.MethodGet, "/live-session/s1/messages"},
	}
	require.Len(t, *requests, len(expected))
	for i, e := range expected {
		r := (*requests)[i]
		assert.Equal(t, e.method, r.Method, "request %d", i)
		assert.Equal(t, e.path, r.Path, "request %d", i)
		assert.Equal(t, "Bearer "+ac.Token(), r.Auth, "request %d", i)
	}

	// Body shapes
	assert.Equal(t, "https://cdn.example.com/rec.mp4", (*requests)[5].Body["recordingUrl"])
	assert.Equal(t, "hello", (*requests)[10].Body["message"])
	assert.Contains(t, (*requests)[10].Body, "timestamp")
}

func TestClientErrors(t *testing.T) {
	t.Run("backend message is surfaced", func(t *testing.T) {
		srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"Only the tutor can start this session"}`))
		})

		_, err := client.New(srv.URL, nil).StartSession(context.Background(), "s1")
		require.Error(t, err)

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "Only the tutor can start this session", client.UserMessage(err))
	})

	t.Run("fallback message", func(t *testing.T) {
		srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		err := client.New(srv.URL, nil).DeleteSession(context.Background(), "s1")
		require.Error(t, err)
		assert.Equal(t, client.FallbackMessage, client.UserMessage(err))
	})

	t.Run("network error", func(t *testing.T) {
		srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()

		_, err := client.New(srv.URL, nil).GetSession(context.Background(), "s1")
		require.Error(t, err)
		assert.Equal(t, client.FallbackMessage, client.UserMessage(err))
	})
}

func TestStreamURLs(t *testing.T) {
	c := client.New("https://lms.example.com/api", nil)
	assert.Equal(t, "https://lms.example.com/api/live-session/s1/events", c.EventsURL("s1"))
	assert.Equal(t, "wss://lms.example.com/api/live-session/s1/signal", c.SignalURL("s1"))

	c = client.New("http://localhost:8080", nil)
	assert.Equal(t, "ws://localhost:8080/live-session/s1/signal", c.SignalURL("s1"))
}
