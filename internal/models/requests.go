package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// CreateSessionRequest is the request body for POST /live-session
type CreateSessionRequest struct {
	CourseID        string    `json:"courseId" validate:"required"`
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description" validate:"max=2000"`
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	Duration        int       `json:"duration" validate:"gte=1,lte=480"`
	MaxParticipants int       `json:"maxParticipants" validate:"gte=0"`
}

// UpdateSessionRequest is the request body for PUT /live-session/:id.
// Only non-nil fields are applied.
type UpdateSessionRequest struct {
	Title           *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description     *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	Duration        *int       `json:"duration,omitempty" validate:"omitempty,gte=1,lte=480"`
	MaxParticipants *int       `json:"maxParticipants,omitempty" validate:"omitempty,gte=0"`
}

// EndSessionRequest is the request body for PUT /live-session/:id/end
type EndSessionRequest struct {
	RecordingURL string `json:"recordingUrl,omitempty" validate:"omitempty,url"`
}

// SendMessageRequest is the request body for POST /live-session/:id/message
type SendMessageRequest struct {
	Message   string    `json:"message" validate:"required,max=500"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenRequest is the request body for the development token endpoint
type TokenRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name" validate:"required,max=100"`
	Role   Role   `json:"role" validate:"required,oneof=tutor student"`
}

// TokenResponse is returned by the development token endpoint
type TokenResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the JSON error envelope returned by the backend
type ErrorResponse struct {
	Message string `json:"message"`
}

// ErrInvalidRequest is wrapped by every validation failure
var ErrInvalidRequest = errors.New("invalid request")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Use JSON tag names in errors instead of Go struct names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks a request struct against its validate tags and returns a
// readable error naming the offending JSON fields
func Validate(req interface{}) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}
