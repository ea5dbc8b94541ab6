package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/navikt/liveroom/internal/models"
)

// Bubble is the display form of a chat message
type Bubble struct {
	Key      string
	Text     string
	Author   string
	Time     time.Time
	IsTutor  bool
	IsOwn    bool
	IsSystem bool
	Pending  bool
	Failed   bool
}

// Bubbles maps messages to bubbles as seen by self
func Bubbles(msgs []models.ChatMessage, self models.Participant) []Bubble {
	out := make([]Bubble, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewBubble(m, self))
	}
	return out
}

// NewBubble maps a single message
func NewBubble(m models.ChatMessage, self models.Participant) Bubble {
	own := false
	switch {
	case m.UserRole == models.RoleSystem:
	case m.UserID != "" && self.ID != "":
		own = m.UserID == self.ID
	case m.Local:
		// Names are not unique, so they only identify messages sent from here
		own = m.UserName == self.Name
	}

	return Bubble{
		Key:      m.ID.String(),
		Text:     m.Message,
		Author:   m.UserName,
		Time:     m.Timestamp,
		IsTutor:  m.IsFromTutor(),
		IsOwn:    own,
		IsSystem: m.UserRole == models.RoleSystem,
		Pending:  m.ID.IsPending() && m.UserRole != models.RoleSystem,
		Failed:   m.Failed,
	}
}

// Render formats a bubble as a single terminal line
func (b Bubble) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] ", b.Time.Local().Format("15:04"))

	switch {
	case b.IsSystem:
		sb.WriteString("* ")
	case b.IsOwn:
		sb.WriteString("you: ")
	case b.IsTutor:
		fmt.Fprintf(&sb, "%s (tutor): ", b.Author)
	default:
		fmt.Fprintf(&sb, "%s: ", b.Author)
	}
	sb.WriteString(b.Text)

	switch {
	case b.Failed:
		sb.WriteString("  (not delivered)")
	case b.Pending:
		sb.WriteString("  (sending)")
	}
	return sb.String()
}
