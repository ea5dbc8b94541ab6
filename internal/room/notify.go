package room

import (
	"context"
	"fmt"
	"log"

	"github.com/navikt/liveroom/internal/utils"
)

// Level is the severity of a notification
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// String returns the string representation of a level
func (l Level) String() string {
	return [...]string{"info", "warning", "error"}[l]
}

// Notifier shows short messages to the user
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to a Notifier
type NotifierFunc func(level Level, message string)

// Notify implements Notifier
func (f NotifierFunc) Notify(level Level, message string) {
	f(level, message)
}

// LogNotifier writes notifications to the standard logger
type LogNotifier struct{}

// Notify implements Notifier
func (LogNotifier) Notify(level Level, message string) {
	log.Printf("[%s] %s", level, utils.SanitizeLogString(message))
}

// Confirmer asks the user to confirm a destructive action
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmerFunc adapts a function to a Confirmer
type ConfirmerFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer
func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm accepts every prompt
var AlwaysConfirm = ConfirmerFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// confirm asks c, treating a nil confirmer as consent
func confirm(ctx context.Context, c Confirmer, prompt string) error {
	if c == nil {
		return nil
	}
	ok, err := c.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to confirm: %w", err)
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}
