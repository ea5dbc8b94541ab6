package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/navikt/liveroom/internal/chat"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/utils"
	"github.com/r3labs/sse/v2"
)

// EventHub publishes per-session server-sent events. Each session is one
// stream; clients are told about new chat messages and session changes and
// fetch the details over REST.
type EventHub struct {
	server *sse.Server
}

// NewEventHub creates an event hub. Streams are created on first subscribe.
func NewEventHub() *EventHub {
	server := sse.New()
	server.AutoStream = true
	server.AutoReplay = false

	return &EventHub{server: server}
}

// ServeHTTP streams the events of the session named by the id path value
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log.Printf("Event stream client connected to session %s from %s", utils.SanitizeLogString(id), r.RemoteAddr)

	// The sse server selects the stream from the query string
	r = r.Clone(r.Context())
	q := r.URL.Query()
	q.Set("stream", id)
	r.URL.RawQuery = q.Encode()

	h.server.ServeHTTP(w, r)
	log.Printf("Event stream client disconnected from session %s", utils.SanitizeLogString(id))
}

// PublishSession announces a change of a session's status or participants
func (h *EventHub) PublishSession(session *models.Session) {
	h.publish(session.ID, chat.EventSession, session)
}

// PublishMessage announces a new chat message
func (h *EventHub) PublishMessage(sessionID string, message models.ChatMessage) {
	h.publish(sessionID, chat.EventMessage, message)
}

func (h *EventHub) publish(sessionID, event string, payload interface{}) {
	if !h.server.StreamExists(sessionID) {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error encoding %s event: %v", event, err)
		return
	}

	h.server.Publish(sessionID, &sse.Event{
		Event: []byte(event),
		Data:  data,
	})
}

// Close disconnects every subscriber
func (h *EventHub) Close() {
	h.server.Close()
}
