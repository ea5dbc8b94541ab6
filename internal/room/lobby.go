package room

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/navikt/liveroom/internal/models"
)

// SessionLister is the part of the REST client the dashboard uses
type SessionLister interface {
	ListCourseSessions(ctx context.Context, courseID string) ([]models.Session, error)
	ListTutorSessions(ctx context.Context) ([]models.Session, error)
}

// Lobby is the dashboard: it lists sessions, offers the actions available
// on each and opens rooms
type Lobby struct {
	opts       Options
	lister     SessionLister
	controller *Controller

	mu        sync.Mutex
	courseID  string
	onRefresh func([]models.Session)
}

// NewLobby creates a lobby. opts is used for every room it opens.
func NewLobby(lister SessionLister, opts Options) *Lobby {
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	l := &Lobby{
		opts:       opts,
		lister:     lister,
		controller: NewController(opts.API, opts.Auth, opts.Confirmer, opts.Notifier),
	}
	l.controller.OnSuccess(func(ctx context.Context, action Action, _ *models.Session) {
		l.refresh(ctx)
	})
	return l
}

// Controller returns the controller used for dashboard actions. Every
// successful action refreshes the session list.
func (l *Lobby) Controller() *Controller {
	return l.controller
}

// OnRefresh registers a function receiving the session list again after
// each successful dashboard action. The list is the one last requested with
// Sessions, or the tutor's own sessions if none was.
func (l *Lobby) OnRefresh(fn func([]models.Session)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRefresh = fn
}

// Sessions lists a course's sessions, or the tutor's own sessions when
// courseID is empty
func (l *Lobby) Sessions(ctx context.Context, courseID string) ([]models.Session, error) {
	l.mu.Lock()
	l.courseID = courseID
	l.mu.Unlock()

	var (
		sessions []models.Session
		err      error
	)
	if courseID == "" {
		sessions, err = l.lister.ListTutorSessions(ctx)
	} else {
		sessions, err = l.lister.ListCourseSessions(ctx, courseID)
	}
	if err != nil {
		return nil, l.controller.fail("Failed to list sessions", err)
	}
	return sessions, nil
}

// Actions returns the actions the current user has on a session
func (l *Lobby) Actions(session models.Session) []Action {
	return Actions(session, l.role())
}

// JoinFromDashboard opens the room of a live session and joins it
func (l *Lobby) JoinFromDashboard(ctx context.Context, session models.Session) (*Room, error) {
	if l.opts.Auth == nil || l.opts.Auth.Token() == "" {
		l.opts.Notifier.Notify(LevelError, "Please log in to join the session.")
		return nil, ErrNotAuthenticated
	}
	if !Allowed(session, l.role(), ActionJoin) {
		l.opts.Notifier.Notify(LevelWarning, "This session is not live.")
		return nil, fmt.Errorf("cannot join session in status %s: %w", session.Status, ErrNotLive)
	}

	r := New(session.ID, l.opts)
	if err := r.Join(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (l *Lobby) refresh(ctx context.Context) {
	l.mu.Lock()
	fn, courseID := l.onRefresh, l.courseID
	l.mu.Unlock()
	if fn == nil {
		return
	}

	sessions, err := l.Sessions(ctx, courseID)
	if err != nil {
		log.Printf("Failed to refresh sessions: %v", err)
		return
	}
	fn(sessions)
}

func (l *Lobby) role() models.Role {
	if l.opts.Auth == nil {
		return models.RoleStudent
	}
	return l.opts.Auth.Role()
}
