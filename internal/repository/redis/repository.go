// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/models"
	"github.com/redis/go-redis/v9"
)

// Repository implements the repository interface with Redis storage.
//
// Keys, relative to the configured prefix:
//
//	sessions                       set of session IDs
//	sessions:{id}                  session JSON
//	sessions:{id}:participants     hash of participant ID to participant JSON
//	sessions:{id}:messages         list of chat message JSON in append order
type Repository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}

		// Use DB from config if not specified in the URI
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}

		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.SessionTTL,
	}, nil
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) indexKey() string {
	return r.keyPrefix + "sessions"
}

func (r *Repository) sessionKey(id string) string {
	return fmt.Sprintf("%ssessions:%s", r.keyPrefix, id)
}

func (r *Repository) participantsKey(sessionID string) string {
	return fmt.Sprintf("%ssessions:%s:participants", r.keyPrefix, sessionID)
}

func (r *Repository) messagesKey(sessionID string) string {
	return fmt.Sprintf("%ssessions:%s:messages", r.keyPrefix, sessionID)
}

// requireSession returns errs.ErrNotFound unless the session key exists
func (r *Repository) requireSession(ctx context.Context, id string) error {
	exists, err := r.client.Exists(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check if session exists: %w", err)
	}
	if exists == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// touch extends the TTL of a session's secondary keys to match the session
func (r *Repository) touch(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if r.ttl <= 0 {
		return
	}
	for _, key := range keys {
		pipe.Expire(ctx, key, r.ttl)
	}
}

// SaveSession creates or replaces a session
func (r *Repository) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(session.ID), data, r.ttl)
	pipe.SAdd(ctx, r.indexKey(), session.ID)
	r.touch(ctx, pipe, r.participantsKey(session.ID), r.messagesKey(session.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// ListSessions returns all sessions ordered by scheduled time. IDs whose
// session has expired are pruned from the index.
func (r *Repository) ListSessions(ctx context.Context) ([]*models.Session, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(ids) == 0 {
		return []*models.Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}

	// Use MGET to retrieve all session data in a single roundtrip
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}

	sessions := make([]*models.Session, 0, len(values))
	var stale []interface{}

	for i, v := range values {
		strData, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var session models.Session
		if err := json.Unmarshal([]byte(strData), &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ScheduledAt.Before(sessions[j].ScheduledAt)
	})
	return sessions, nil
}

// DeleteSession removes a session with its participants and messages
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	if err := r.requireSession(ctx, id); err != nil {
		return err
	}

	// Use a pipeline to delete all keys in one operation
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(id), r.participantsKey(id), r.messagesKey(id))
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// AddParticipant adds or replaces a participant of a session
func (r *Repository) AddParticipant(ctx context.Context, sessionID string, participant models.Participant) error {
	if err := r.requireSession(ctx, sessionID); err != nil {
		return err
	}

	data, err := json.Marshal(participant)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	key := r.participantsKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, participant.ID, data)
	r.touch(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// RemoveParticipant removes a participant from a session
func (r *Repository) RemoveParticipant(ctx context.Context, sessionID string, participantID string) error {
	if err := r.requireSession(ctx, sessionID); err != nil {
		return err
	}

	if err := r.client.HDel(ctx, r.participantsKey(sessionID), participantID).Err(); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	return nil
}

// ListParticipants returns the participants of a session ordered by join time
func (r *Repository) ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	if err := r.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	values, err := r.client.HVals(ctx, r.participantsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	participants := make([]models.Participant, 0, len(values))
	for _, v := range values {
		var p models.Participant
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		participants = append(participants, p)
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants, nil
}

// CountParticipants counts the participants of a session
func (r *Repository) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	if err := r.requireSession(ctx, sessionID); err != nil {
		return 0, err
	}

	count, err := r.client.HLen(ctx, r.participantsKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}

	return int(count), nil
}

// ClearParticipants removes every participant from a session
func (r *Repository) ClearParticipants(ctx context.Context, sessionID string) error {
	if err := r.requireSession(ctx, sessionID); err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.participantsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}

	return nil
}

// AppendMessage adds a message to the end of a session's chat log
func (r *Repository) AppendMessage(ctx context.Context, sessionID string, message models.ChatMessage) error {
	if err := r.requireSession(ctx, sessionID); err != nil {
		return err
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := r.messagesKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	r.touch(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

// ListMessages returns a session's chat log
func (r *Repository) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if err := r.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	values, err := r.client.LRange(ctx, r.messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]models.ChatMessage, 0, len(values))
	for _, v := range values {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, nil
}
