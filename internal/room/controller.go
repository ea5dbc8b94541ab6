package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/client"
	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/utils"
)

var (
	// ErrNotAuthenticated is returned when no token is available
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrCancelled is returned when the user declines a confirmation
	ErrCancelled = errors.New("cancelled by user")
	// ErrForbidden is returned when the user's role does not allow an action
	ErrForbidden = errs.ErrForbidden
	// ErrNotLive is returned when joining a session that is not live
	ErrNotLive = errs.ErrNotLive
)

// API is the part of the REST client the room and controller use
type API interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	StartSession(ctx context.Context, id string) (*models.Session, error)
	EndSession(ctx context.Context, id, recordingURL string) (*models.Session, error)
	JoinSession(ctx context.Context, id string) (*models.Session, error)
	LeaveSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	FetchMessages(ctx context.Context, id string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, id, text string, ts time.Time) (models.ChatMessage, error)
}

// Controller performs the lifecycle actions on a session: start, end, leave
// and delete. Each action is a single call; failures are reported to the
// notifier and returned.
type Controller struct {
	api       API
	auth      *auth.Context
	confirmer Confirmer
	notifier  Notifier
	onSuccess func(ctx context.Context, action Action, session *models.Session)
}

// NewController creates a controller. A nil confirmer confirms everything;
// a nil notifier logs.
func NewController(api API, ac *auth.Context, confirmer Confirmer, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Controller{
		api:       api,
		auth:      ac,
		confirmer: confirmer,
		notifier:  notifier,
	}
}

// OnSuccess registers a function called after every successful action, e.g.
// to refresh the dashboard or to tear down the room. The session is nil for
// delete and leave.
func (c *Controller) OnSuccess(fn func(ctx context.Context, action Action, session *models.Session)) {
	c.onSuccess = fn
}

// Start makes a scheduled session live
func (c *Controller) Start(ctx context.Context, id string) (*models.Session, error) {
	if err := c.requireTutor("start the session"); err != nil {
		return nil, err
	}

	session, err := c.api.StartSession(ctx, id)
	if err != nil {
		return nil, c.fail("Failed to start session", err)
	}

	log.Printf("Started session %s", utils.SanitizeLogString(id))
	c.notifier.Notify(LevelInfo, "Session started")
	c.succeeded(ctx, ActionStart, session)
	return session, nil
}

// End completes a live session after confirmation. recordingURL is optional.
func (c *Controller) End(ctx context.Context, id, recordingURL string) (*models.Session, error) {
	if err := c.requireTutor("end the session"); err != nil {
		return nil, err
	}
	if err := confirm(ctx, c.confirmer, "End this session for everyone?"); err != nil {
		return nil, err
	}

	session, err := c.api.EndSession(ctx, id, recordingURL)
	if err != nil {
		return nil, c.fail("Failed to end session", err)
	}

	log.Printf("Ended session %s", utils.SanitizeLogString(id))
	c.notifier.Notify(LevelInfo, "Session ended")
	c.succeeded(ctx, ActionEnd, session)
	return session, nil
}

// Delete removes a session after confirmation
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.requireTutor("delete the session"); err != nil {
		return err
	}
	if err := confirm(ctx, c.confirmer, "Delete this session? This cannot be undone."); err != nil {
		return err
	}

	if err := c.api.DeleteSession(ctx, id); err != nil {
		return c.fail("Failed to delete session", err)
	}

	log.Printf("Deleted session %s", utils.SanitizeLogString(id))
	c.notifier.Notify(LevelInfo, "Session deleted")
	c.succeeded(ctx, ActionDelete, nil)
	return nil
}

// Leave removes the current user from a session's participants
func (c *Controller) Leave(ctx context.Context, id string) error {
	if err := c.api.LeaveSession(ctx, id); err != nil {
		return c.fail("Failed to leave session", err)
	}

	log.Printf("Left session %s", utils.SanitizeLogString(id))
	return nil
}

func (c *Controller) requireTutor(what string) error {
	if c.auth != nil && c.auth.IsTutor() {
		return nil
	}
	err := fmt.Errorf("only the tutor can %s: %w", what, ErrForbidden)
	c.notifier.Notify(LevelError, "Only the tutor can "+what+".")
	return err
}

func (c *Controller) fail(prefix string, err error) error {
	c.notifier.Notify(LevelError, client.UserMessage(err))
	return fmt.Errorf("%s: %w", prefix, err)
}

func (c *Controller) succeeded(ctx context.Context, action Action, session *models.Session) {
	if c.onSuccess != nil {
		c.onSuccess(ctx, action, session)
	}
}
