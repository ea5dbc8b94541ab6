// Package repository defines interfaces for data storage
package repository

import (
	"context"

	"github.com/navikt/liveroom/internal/models"
)

// Repository defines the interface for storing and retrieving live sessions,
// their participants and their chat logs. Lookups of unknown sessions return
// errs.ErrNotFound.
type Repository interface {
	// Session operations
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Participant operations
	AddParticipant(ctx context.Context, sessionID string, participant models.Participant) error
	RemoveParticipant(ctx context.Context, sessionID string, participantID string) error
	ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error)
	CountParticipants(ctx context.Context, sessionID string) (int, error)
	ClearParticipants(ctx context.Context, sessionID string) error

	// Chat operations, messages are returned in the order they were appended
	AppendMessage(ctx context.Context, sessionID string, message models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)

	// Close releases the underlying storage
	Close() error
}
