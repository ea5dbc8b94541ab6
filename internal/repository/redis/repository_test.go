// Package redis_test provides tests for the Redis repository
package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/repository/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Repository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Enabled:    true,
		Host:       mr.Host(),
		Port:       mr.Port(),
		KeyPrefix:  "test:",
		SessionTTL: 24 * time.Hour,
	}

	repo, err := redis.NewRepository(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo, mr
}

// TestRedisWithURI tests connection with URI format
func TestRedisWithURI(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Enabled:   true,
		URI:       fmt.Sprintf("redis://%s:%s", mr.Host(), mr.Port()),
		KeyPrefix: "test:",
	}

	repo, err := redis.NewRepository(cfg)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "uri", Title: "URI Test"}))

	retrieved, err := repo.GetSession(ctx, "uri")
	require.NoError(t, err)
	assert.Equal(t, "URI Test", retrieved.Title)
}

func TestRedisConnectionFailure(t *testing.T) {
	_, err := redis.NewRepository(config.RedisConfig{Enabled: true, URI: "not-a-uri"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Port()
	mr.Close()

	_, err = redis.NewRepository(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: addr})
	assert.Error(t, err)
}

func TestRedisSessionOperations(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	started := now.Add(-time.Minute)
	session := &models.Session{
		ID:              "s1",
		CourseID:        "c1",
		TutorID:         "u1",
		TutorName:       "Ada",
		Title:           "Algebra",
		ScheduledAt:     now,
		Duration:        60,
		MaxParticipants: 10,
		Status:          models.SessionStatusLive,
		StartedAt:       &started,
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, session))

		got, err := repo.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, session.Title, got.Title)
		assert.Equal(t, models.SessionStatusLive, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.True(t, started.Equal(*got.StartedAt))

		assert.True(t, mr.Exists("test:sessions:s1"))
		assert.Equal(t, 24*time.Hour, mr.TTL("test:sessions:s1"))
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "s0", ScheduledAt: now.Add(-time.Hour)}))

		sessions, err := repo.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "s0", sessions[0].ID)
		assert.Equal(t, "s1", sessions[1].ID)
	})

	t.Run("ExpiredSessionsArePruned", func(t *testing.T) {
		mr.FastForward(25 * time.Hour)

		sessions, err := repo.ListSessions(ctx)
		require.NoError(t, err)
		assert.Empty(t, sessions)

		members, err := mr.Members("test:sessions")
		if err == nil {
			assert.Empty(t, members)
		}

		_, err = repo.GetSession(ctx, "s1")
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, session))
		require.NoError(t, repo.AddParticipant(ctx, "s1", models.Participant{ID: "u1", Name: "Ada"}))
		require.NoError(t, repo.AppendMessage(ctx, "s1", models.ChatMessage{ID: models.Confirmed("m1"), Message: "hi"}))

		require.NoError(t, repo.DeleteSession(ctx, "s1"))
		assert.False(t, mr.Exists("test:sessions:s1"))
		assert.False(t, mr.Exists("test:sessions:s1:participants"))
		assert.False(t, mr.Exists("test:sessions:s1:messages"))

		assert.ErrorIs(t, repo.DeleteSession(ctx, "s1"), errs.ErrNotFound)
	})
}

func TestRedisParticipantOperations(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "s1", Status: models.SessionStatusLive}))

	now := time.Now().UTC()
	ada := models.Participant{ID: "u1", Name: "Ada", Role: models.RoleTutor, JoinedAt: now}
	bo := models.Participant{ID: "u2", Name: "Bo", Role: models.RoleStudent, JoinedAt: now.Add(time.Second)}

	require.NoError(t, repo.AddParticipant(ctx, "s1", bo))
	require.NoError(t, repo.AddParticipant(ctx, "s1", ada))
	require.NoError(t, repo.AddParticipant(ctx, "s1", ada))

	count, err := repo.CountParticipants(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	participants, err := repo.ListParticipants(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "Ada", participants[0].Name)
	assert.Equal(t, models.RoleTutor, participants[0].Role)

	// Participants expire together with the session
	assert.Equal(t, 24*time.Hour, mr.TTL("test:sessions:s1:participants"))

	require.NoError(t, repo.RemoveParticipant(ctx, "s1", "u2"))
	count, err = repo.CountParticipants(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.ClearParticipants(ctx, "s1"))
	count, err = repo.CountParticipants(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, repo.AddParticipant(ctx, "missing", ada), errs.ErrNotFound)
	_, err = repo.ListParticipants(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRedisMessageOperations(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "s1"}))

	msgs, err := repo.ListMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	ts := time.Date(2025, 5, 8, 15, 0, 0, 0, time.UTC)
	first := models.ChatMessage{ID: models.Confirmed("m1"), UserID: "u1", UserName: "Ada", UserRole: models.RoleTutor, Message: "welcome", Timestamp: ts}
	second := models.ChatMessage{ID: models.Confirmed("m2"), UserID: "u2", UserName: "Bo", UserRole: models.RoleStudent, Message: "thanks", Timestamp: ts.Add(time.Second)}

	require.NoError(t, repo.AppendMessage(ctx, "s1", first))
	require.NoError(t, repo.AppendMessage(ctx, "s1", second))

	msgs, err = repo.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.Confirmed("m1"), msgs[0].ID)
	assert.Equal(t, "welcome", msgs[0].Message)
	assert.True(t, msgs[0].IsFromTutor())
	assert.True(t, ts.Equal(msgs[0].Timestamp))
	assert.Equal(t, "thanks", msgs[1].Message)

	assert.ErrorIs(t, repo.AppendMessage(ctx, "missing", first), errs.ErrNotFound)
}
