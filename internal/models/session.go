package models

import (
	"time"
)

// SessionStatus represents the current status of a live session
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusLive      SessionStatus = "live"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal returns true once a session can no longer change status
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Valid reports whether s is one of the known statuses
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusLive, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// Role is the role of a user inside a session
type Role string

const (
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
	// RoleSystem marks locally generated room notices
	RoleSystem Role = "system"
)

// Participant represents a user present in a live session
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt,omitempty"`
}

// Session represents a scheduled live video meeting tied to a course
type Session struct {
	ID               string        `json:"_id"`
	CourseID         string        `json:"courseId"`
	TutorID          string        `json:"tutorId"`
	TutorName        string        `json:"tutorName,omitempty"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	ScheduledAt      time.Time     `json:"scheduledAt"`
	Duration         int           `json:"duration"` // in minutes
	MaxParticipants  int           `json:"maxParticipants"`
	Status           SessionStatus `json:"status"`
	ParticipantCount int           `json:"participantCount"`
	RecordingURL     string        `json:"recordingUrl,omitempty"`
	StartedAt        *time.Time    `json:"startedAt,omitempty"`
	EndedAt          *time.Time    `json:"endedAt,omitempty"`
}

// IsFull returns true if the session has reached its participant limit.
// A zero limit means unlimited.
func (s *Session) IsFull() bool {
	return s.MaxParticipants > 0 && s.ParticipantCount >= s.MaxParticipants
}

// LocalMediaState is a snapshot of the local capture controls
type LocalMediaState struct {
	Muted         bool `json:"muted"`
	VideoOff      bool `json:"videoOff"`
	ScreenSharing bool `json:"screenSharing"`
}
