package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/signaling"
	"github.com/navikt/liveroom/internal/utils"
)

// SignalHandler upgrades GET /live-session/{id}/signal to a WebSocket and
// attaches it to the signaling relay of the session
type SignalHandler struct {
	sessions       SessionServicer
	relay          *signaling.Relay
	originPatterns []string
}

// NewSignalHandler creates a signaling handler. originPatterns lists the
// browser origins allowed to open the socket besides the backend's own host.
func NewSignalHandler(sessions SessionServicer, relay *signaling.Relay, originPatterns []string) *SignalHandler {
	return &SignalHandler{
		sessions:       sessions,
		relay:          relay,
		originPatterns: originPatterns,
	}
}

// ServeHTTP handles the WebSocket handshake and relays until the peer leaves
func (h *SignalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	peerID := r.URL.Query().Get("peer")
	if peerID == "" {
		writeError(w, http.StatusBadRequest, "Missing peer ID")
		return
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if session.Status != models.SessionStatusLive {
		writeError(w, http.StatusConflict, "Session is not live")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Printf("WebSocket handshake for session %s failed: %v", utils.SanitizeLogString(id), err)
		return
	}

	ch := signaling.NewWSChannel(conn)
	defer ch.Close()

	if err := h.relay.Serve(r.Context(), id, peerID, ch); err != nil {
		if errors.Is(err, signaling.ErrDuplicatePeer) {
			conn.Close(websocket.StatusPolicyViolation, "peer already connected")
			return
		}
		log.Printf("Signaling for peer %s in session %s ended: %v",
			utils.SanitizeLogString(peerID), utils.SanitizeLogString(id), err)
	}
}

// closeEnded disconnects the signaling peers of sessions that have finished
func (h *SignalHandler) closeEnded(session *models.Session) {
	if session.Status.IsTerminal() {
		h.relay.CloseSession(session.ID)
	}
}
