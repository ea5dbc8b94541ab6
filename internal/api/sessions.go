package api

import (
	"log"
	"net/http"

	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/utils"
)

// SessionHandler handles the /live-session REST endpoints
type SessionHandler struct {
	sessions SessionServicer
}

// NewSessionHandler creates a new session handler backed by the given service
func NewSessionHandler(sessions SessionServicer) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// caller returns the authenticated participant; RequireAuth guarantees one
func caller(r *http.Request) models.Participant {
	p, _ := participantFrom(r.Context())
	return p
}

// createSession handles POST /live-session
func (h *SessionHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	session, err := h.sessions.Create(r.Context(), caller(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// listCourseSessions handles GET /live-session/course/{courseId}
func (h *SessionHandler) listCourseSessions(w http.ResponseWriter, r *http.Request, courseID string) {
	sessions, err := h.sessions.ListByCourse(r.Context(), courseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// listTutorSessions handles GET /live-session/tutor
func (h *SessionHandler) listTutorSessions(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	if p.Role != models.RoleTutor {
		writeError(w, http.StatusForbidden, "Only tutors have their own sessions")
		return
	}

	sessions, err := h.sessions.ListByTutor(r.Context(), p.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// getSession handles GET /live-session/{id}
func (h *SessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// updateSession handles PUT /live-session/{id}
func (h *SessionHandler) updateSession(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSessionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	session, err := h.sessions.Update(r.Context(), caller(r), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// deleteSession handles DELETE /live-session/{id}
func (h *SessionHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), caller(r), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ErrorResponse{Message: "Session deleted successfully"})
}

// startSession handles PUT /live-session/{id}/start
func (h *SessionHandler) startSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Start(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// endSession handles PUT /live-session/{id}/end with an optional recording URL
func (h *SessionHandler) endSession(w http.ResponseWriter, r *http.Request) {
	var req models.EndSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	session, err := h.sessions.End(r.Context(), caller(r), r.PathValue("id"), req.RecordingURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// joinSession handles POST /live-session/{id}/join
func (h *SessionHandler) joinSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Join(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// leaveSession handles POST /live-session/{id}/leave
func (h *SessionHandler) leaveSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Leave(r.Context(), caller(r), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ErrorResponse{Message: "Left session"})
}

// listParticipants handles GET /live-session/{id}/participants
func (h *SessionHandler) listParticipants(w http.ResponseWriter, r *http.Request, id string) {
	participants, err := h.sessions.Participants(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, participants)
}

// sendMessage handles POST /live-session/{id}/message
func (h *SessionHandler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	id := r.PathValue("id")
	msg, err := h.sessions.SendMessage(r.Context(), caller(r), id, req)
	if err != nil {
		log.Printf("Message to session %s rejected: %v", utils.SanitizeLogString(id), err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// listMessages handles GET /live-session/{id}/messages
func (h *SessionHandler) listMessages(w http.ResponseWriter, r *http.Request, id string) {
	msgs, err := h.sessions.Messages(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}
