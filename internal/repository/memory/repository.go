// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/models"
)

// sessionState contains everything stored for one session
type sessionState struct {
	session      models.Session
	participants map[string]models.Participant
	messages     []models.ChatMessage
}

// Repository implements the repository interface with in-memory storage
type Repository struct {
	sessions map[string]*sessionState
	mu       sync.RWMutex
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		sessions: make(map[string]*sessionState),
	}
}

// Close implements the repository interface; there is nothing to release
func (r *Repository) Close() error {
	return nil
}

// SaveSession creates or replaces a session, keeping its participants and messages
func (r *Repository) SaveSession(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.sessions[session.ID]
	if !exists {
		state = &sessionState{
			participants: make(map[string]models.Participant),
		}
		r.sessions[session.ID] = state
	}
	state.session = *session

	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[id]
	if !ok {
		return nil, errs.ErrNotFound
	}

	// Return a copy so callers cannot modify stored state
	session := state.session
	return &session, nil
}

// ListSessions returns all sessions ordered by scheduled time
func (r *Repository) ListSessions(ctx context.Context) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*models.Session, 0, len(r.sessions))
	for _, state := range r.sessions {
		session := state.session
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ScheduledAt.Before(sessions[j].ScheduledAt)
	})
	return sessions, nil
}

// DeleteSession removes a session with its participants and messages
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.sessions, id)

	return nil
}

// AddParticipant adds or replaces a participant of a session
func (r *Repository) AddParticipant(ctx context.Context, sessionID string, participant models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return errs.ErrNotFound
	}
	state.participants[participant.ID] = participant

	return nil
}

// RemoveParticipant removes a participant from a session
func (r *Repository) RemoveParticipant(ctx context.Context, sessionID string, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return errs.ErrNotFound
	}
	delete(state.participants, participantID)

	return nil
}

// ListParticipants returns the participants of a session ordered by join time
func (r *Repository) ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return nil, errs.ErrNotFound
	}

	participants := make([]models.Participant, 0, len(state.participants))
	for _, p := range state.participants {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants, nil
}

// CountParticipants counts the participants of a session
func (r *Repository) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return 0, errs.ErrNotFound
	}

	return len(state.participants), nil
}

// ClearParticipants removes every participant from a session
func (r *Repository) ClearParticipants(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return errs.ErrNotFound
	}
	state.participants = make(map[string]models.Participant)

	return nil
}

// AppendMessage adds a message to the end of a session's chat log
func (r *Repository) AppendMessage(ctx context.Context, sessionID string, message models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return errs.ErrNotFound
	}
	state.messages = append(state.messages, message)

	return nil
}

// ListMessages returns a session's chat log
func (r *Repository) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return nil, errs.ErrNotFound
	}

	return append([]models.ChatMessage{}, state.messages...), nil
}
