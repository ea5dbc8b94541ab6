package room

import (
	"github.com/navikt/liveroom/internal/models"
)

// Action is something the user can do with a session from the dashboard
type Action string

const (
	ActionJoin   Action = "join"
	ActionStart  Action = "start"
	ActionEnd    Action = "end"
	ActionDelete Action = "delete"
)

// Actions returns the actions available on a session for a role. Anyone may
// join a live session; the tutor may start a scheduled session, end a live
// one and delete any session that is not live.
func Actions(session models.Session, role models.Role) []Action {
	var actions []Action

	if session.Status == models.SessionStatusLive {
		actions = append(actions, ActionJoin)
	}

	if role == models.RoleTutor {
		switch session.Status {
		case models.SessionStatusScheduled:
			actions = append(actions, ActionStart)
		case models.SessionStatusLive:
			actions = append(actions, ActionEnd)
		}
		if session.Status != models.SessionStatusLive {
			actions = append(actions, ActionDelete)
		}
	}

	return actions
}

// Allowed reports whether action is available on a session for a role
func Allowed(session models.Session, role models.Role, action Action) bool {
	for _, a := range Actions(session, role) {
		if a == action {
			return true
		}
	}
	return false
}
