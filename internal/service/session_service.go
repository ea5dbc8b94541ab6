package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/repository"
	"github.com/navikt/liveroom/internal/utils"
)

// SessionUpdateCallback is a function type for session update callbacks
type SessionUpdateCallback func(*models.Session)

// MessageCallback is called after a chat message has been persisted
type MessageCallback func(sessionID string, message models.ChatMessage)

// SessionService provides business logic for working with live sessions
type SessionService struct {
	repo             repository.Repository
	now              func() time.Time
	updateCallbacks  []SessionUpdateCallback
	messageCallbacks []MessageCallback

	// mu serialises status changes and joins so capacity checks hold
	mu sync.Mutex
}

// NewSessionService creates a new SessionService with the given repository
func NewSessionService(repo repository.Repository) *SessionService {
	return &SessionService{
		repo:             repo,
		now:              time.Now,
		updateCallbacks:  make([]SessionUpdateCallback, 0),
		messageCallbacks: make([]MessageCallback, 0),
	}
}

// RegisterUpdateCallback registers a callback function to be called when session data changes
func (s *SessionService) RegisterUpdateCallback(callback SessionUpdateCallback) {
	s.updateCallbacks = append(s.updateCallbacks, callback)
}

// RegisterMessageCallback registers a callback function to be called for every new chat message
func (s *SessionService) RegisterMessageCallback(callback MessageCallback) {
	s.messageCallbacks = append(s.messageCallbacks, callback)
}

// notifyUpdate calls all registered callbacks with the updated session
func (s *SessionService) notifyUpdate(session *models.Session) {
	for _, callback := range s.updateCallbacks {
		callback(session)
	}
}

func (s *SessionService) notifyMessage(sessionID string, message models.ChatMessage) {
	for _, callback := range s.messageCallbacks {
		callback(sessionID, message)
	}
}

// requireOwner checks that actor is the tutor who owns the session
func requireOwner(actor models.Participant, session *models.Session) error {
	if actor.Role != models.RoleTutor || actor.ID != session.TutorID {
		return errs.ErrForbidden
	}
	return nil
}

// withCount fills in the participant count of a session
func (s *SessionService) withCount(ctx context.Context, session *models.Session) *models.Session {
	count, err := s.repo.CountParticipants(ctx, session.ID)
	if err != nil {
		count = 0 // Default to 0 if there's an error
	}
	session.ParticipantCount = count
	return session
}

// Create schedules a new session owned by the calling tutor
func (s *SessionService) Create(ctx context.Context, actor models.Participant, req models.CreateSessionRequest) (*models.Session, error) {
	if actor.Role != models.RoleTutor {
		return nil, errs.ErrForbidden
	}
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:              uuid.NewString(),
		CourseID:        req.CourseID,
		TutorID:         actor.ID,
		TutorName:       actor.Name,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		ScheduledAt:     req.ScheduledAt,
		Duration:        req.Duration,
		MaxParticipants: req.MaxParticipants,
		Status:          models.SessionStatusScheduled,
	}

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Session %s scheduled by %s", session.ID, utils.SanitizeLogString(actor.Name))
	return session, nil
}

// Get returns a session with its current participant count
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withCount(ctx, session), nil
}

// ListByCourse returns the sessions of a course ordered by scheduled time
func (s *SessionService) ListByCourse(ctx context.Context, courseID string) ([]*models.Session, error) {
	return s.list(ctx, func(session *models.Session) bool {
		return session.CourseID == courseID
	})
}

// ListByTutor returns the sessions owned by a tutor ordered by scheduled time
func (s *SessionService) ListByTutor(ctx context.Context, tutorID string) ([]*models.Session, error) {
	return s.list(ctx, func(session *models.Session) bool {
		return session.TutorID == tutorID
	})
}

func (s *SessionService) list(ctx context.Context, keep func(*models.Session) bool) ([]*models.Session, error) {
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Session, 0, len(sessions))
	for _, session := range sessions {
		if !keep(session) {
			continue
		}
		result = append(result, s.withCount(ctx, session))
	}
	return result, nil
}

// Update applies the non-nil fields of req to a session that has not finished
func (s *SessionService) Update(ctx context.Context, actor models.Participant, id string, req models.UpdateSessionRequest) (*models.Session, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, session); err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot update a %s session: %w", session.Status, errs.ErrInvalidTransition)
	}

	if req.Title != nil {
		session.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		session.Description = *req.Description
	}
	if req.ScheduledAt != nil {
		session.ScheduledAt = *req.ScheduledAt
	}
	if req.Duration != nil {
		session.Duration = *req.Duration
	}
	if req.MaxParticipants != nil {
		session.MaxParticipants = *req.MaxParticipants
	}

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	session = s.withCount(ctx, session)
	s.notifyUpdate(session)
	return session, nil
}

// Start moves a scheduled session to live
func (s *SessionService) Start(ctx context.Context, actor models.Participant, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, session); err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusScheduled {
		return nil, fmt.Errorf("cannot start a %s session: %w", session.Status, errs.ErrInvalidTransition)
	}

	now := s.now()
	session.Status = models.SessionStatusLive
	session.StartedAt = &now

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	log.Printf("Session %s started", utils.SanitizeLogString(id))
	session = s.withCount(ctx, session)
	s.notifyUpdate(session)
	return session, nil
}

// End completes a live session, records the optional recording URL and
// removes every participant
func (s *SessionService) End(ctx context.Context, actor models.Participant, id string, recordingURL string) (*models.Session, error) {
	if err := models.Validate(models.EndSessionRequest{RecordingURL: recordingURL}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, session); err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusLive {
		return nil, fmt.Errorf("cannot end a %s session: %w", session.Status, errs.ErrInvalidTransition)
	}

	now := s.now()
	session.Status = models.SessionStatusCompleted
	session.EndedAt = &now
	if recordingURL != "" {
		session.RecordingURL = recordingURL
	}

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if err := s.repo.ClearParticipants(ctx, id); err != nil {
		log.Printf("Error clearing participants of session %s: %v", utils.SanitizeLogString(id), err)
	}

	log.Printf("Session %s ended", utils.SanitizeLogString(id))
	session.ParticipantCount = 0
	s.notifyUpdate(session)
	return session, nil
}

// Delete removes a session that is not live, together with its chat
func (s *SessionService) Delete(ctx context.Context, actor models.Participant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := requireOwner(actor, session); err != nil {
		return err
	}
	if session.Status == models.SessionStatusLive {
		return fmt.Errorf("cannot delete a live session: %w", errs.ErrInvalidTransition)
	}

	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return err
	}

	log.Printf("Session %s deleted", utils.SanitizeLogString(id))
	return nil
}

// Join adds a participant to a live session. Joining again is idempotent and
// does not count against the limit.
func (s *SessionService) Join(ctx context.Context, participant models.Participant, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusLive {
		return nil, errs.ErrNotLive
	}

	participants, err := s.repo.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	session.ParticipantCount = len(participants)

	for _, p := range participants {
		if p.ID == participant.ID {
			return session, nil
		}
	}
	if session.IsFull() {
		return nil, errs.ErrSessionFull
	}

	participant.JoinedAt = s.now()
	if err := s.repo.AddParticipant(ctx, id, participant); err != nil {
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	log.Printf("Participant %s joined session %s", utils.SanitizeLogString(participant.Name), utils.SanitizeLogString(id))
	session.ParticipantCount++
	s.notifyUpdate(session)
	return session, nil
}

// Leave removes a participant from a session
func (s *SessionService) Leave(ctx context.Context, participant models.Participant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.RemoveParticipant(ctx, id, participant.ID); err != nil {
		return err
	}

	log.Printf("Participant %s left session %s", utils.SanitizeLogString(participant.Name), utils.SanitizeLogString(id))
	if session, err := s.Get(ctx, id); err == nil {
		s.notifyUpdate(session)
	}
	return nil
}

// Participants returns who is currently in a session
func (s *SessionService) Participants(ctx context.Context, id string) ([]models.Participant, error) {
	return s.repo.ListParticipants(ctx, id)
}

// SendMessage persists a chat message in a live session and assigns its ID.
// The client timestamp is kept when present.
func (s *SessionService) SendMessage(ctx context.Context, author models.Participant, id string, req models.SendMessageRequest) (models.ChatMessage, error) {
	req.Message = strings.TrimSpace(req.Message)
	if err := models.Validate(req); err != nil {
		return models.ChatMessage{}, err
	}

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if session.Status != models.SessionStatusLive {
		return models.ChatMessage{}, errs.ErrNotLive
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	message := models.ChatMessage{
		ID:        models.Confirmed(uuid.NewString()),
		UserID:    author.ID,
		UserName:  author.Name,
		UserRole:  author.Role,
		Message:   req.Message,
		Timestamp: ts,
	}

	if err := s.repo.AppendMessage(ctx, id, message); err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to save message: %w", err)
	}

	s.notifyMessage(id, message)
	return message, nil
}

// Messages returns the chat log of a session
func (s *SessionService) Messages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	return s.repo.ListMessages(ctx, id)
}
