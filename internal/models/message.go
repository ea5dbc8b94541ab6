package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MaxMessageLength is the maximum chat message length in characters
const MaxMessageLength = 500

// MessageID identifies a chat message. It is either Pending, carrying a
// client-generated numeric placeholder, or Confirmed, carrying the ID the
// backend assigned once the message was persisted.
type MessageID struct {
	local  int64
	server string
}

// Pending returns a placeholder ID for a message not yet persisted
func Pending(localID int64) MessageID {
	return MessageID{local: localID}
}

// Confirmed returns the ID of a message persisted by the backend
func Confirmed(serverID string) MessageID {
	return MessageID{server: serverID}
}

// IsPending reports whether the backend has not confirmed the message yet
func (id MessageID) IsPending() bool {
	return id.server == ""
}

// LocalID returns the placeholder of a pending ID
func (id MessageID) LocalID() (int64, bool) {
	return id.local, id.IsPending()
}

// ServerID returns the backend-assigned ID of a confirmed message
func (id MessageID) ServerID() (string, bool) {
	return id.server, !id.IsPending()
}

// String returns the string representation of a message ID
func (id MessageID) String() string {
	if id.IsPending() {
		return "pending:" + strconv.FormatInt(id.local, 10)
	}
	return id.server
}

// MarshalJSON encodes confirmed IDs as strings and placeholders as numbers
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.IsPending() {
		return []byte(strconv.FormatInt(id.local, 10)), nil
	}
	return json.Marshal(id.server)
}

// UnmarshalJSON accepts either a string (confirmed) or a number (pending)
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return fmt.Errorf("empty message id")
		}
		*id = Confirmed(s)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %s: %w", data, err)
	}
	*id = Pending(n)
	return nil
}

// ChatMessage represents a single entry of a session's chat log
type ChatMessage struct {
	ID        MessageID `json:"_id"`
	UserID    string    `json:"userId,omitempty"`
	UserName  string    `json:"userName"`
	UserRole  Role      `json:"userRole"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	// Failed is set when delivery to the backend errored
	Failed bool `json:"failed,omitempty"`
	// Local is set on messages sent from this client until a fetched
	// list contains them
	Local bool `json:"-"`
}

// IsFromTutor returns true if the message was written by a tutor
func (m ChatMessage) IsFromTutor() bool {
	return m.UserRole == RoleTutor
}
