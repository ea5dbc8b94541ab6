package api

import (
	"context"

	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/service"
)

// SessionServicer defines the session service operations needed by API handlers
type SessionServicer interface {
	// Session management
	Create(ctx context.Context, actor models.Participant, req models.CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	ListByCourse(ctx context.Context, courseID string) ([]*models.Session, error)
	ListByTutor(ctx context.Context, tutorID string) ([]*models.Session, error)
	Update(ctx context.Context, actor models.Participant, id string, req models.UpdateSessionRequest) (*models.Session, error)
	Delete(ctx context.Context, actor models.Participant, id string) error

	// Lifecycle and presence
	Start(ctx context.Context, actor models.Participant, id string) (*models.Session, error)
	End(ctx context.Context, actor models.Participant, id string, recordingURL string) (*models.Session, error)
	Join(ctx context.Context, participant models.Participant, id string) (*models.Session, error)
	Leave(ctx context.Context, participant models.Participant, id string) error
	Participants(ctx context.Context, id string) ([]models.Participant, error)

	// Chat
	SendMessage(ctx context.Context, author models.Participant, id string, req models.SendMessageRequest) (models.ChatMessage, error)
	Messages(ctx context.Context, id string) ([]models.ChatMessage, error)

	// Change notification for the event stream and signaling relay
	RegisterUpdateCallback(callback service.SessionUpdateCallback)
	RegisterMessageCallback(callback service.MessageCallback)
}
