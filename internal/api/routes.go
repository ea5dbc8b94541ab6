package api

import (
	"net/http"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/signaling"
)

// RouteConfig holds the dependencies of the HTTP routes
type RouteConfig struct {
	Sessions SessionServicer
	Signer   *auth.Signer
	Events   *EventHub
	Relay    *signaling.Relay
	// DevTokens routes POST /auth/token
	DevTokens bool
	// AllowedOrigins are browser origins allowed by CORS and the WebSocket handshake
	AllowedOrigins []string
	// Ready reports readiness; nil means always ready
	Ready func() bool
}

// SetupRoutes configures the HTTP routes for the API and wires the session
// service's change notifications to the event hub and signaling relay
func SetupRoutes(cfg RouteConfig) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints for Kubernetes
	mux.HandleFunc("GET /health/live", HealthLiveHandler)
	mux.HandleFunc("GET /health/ready", HealthReadyHandler(cfg.Ready))

	if cfg.DevTokens {
		mux.Handle("POST /auth/token", NewTokenHandler(cfg.Signer))
	}

	authn := NewAuthMiddleware(cfg.Signer)
	sessions := NewSessionHandler(cfg.Sessions)
	signal := NewSignalHandler(cfg.Sessions, cfg.Relay, cfg.AllowedOrigins)

	cfg.Sessions.RegisterUpdateCallback(cfg.Events.PublishSession)
	cfg.Sessions.RegisterUpdateCallback(signal.closeEnded)
	cfg.Sessions.RegisterMessageCallback(cfg.Events.PublishMessage)

	// Session management
	mux.HandleFunc("POST /live-session", authn.RequireAuth(sessions.createSession))
	mux.HandleFunc("GET /live-session/tutor", authn.RequireAuth(sessions.listTutorSessions))
	mux.HandleFunc("GET /live-session/{id}", authn.RequireAuth(sessions.getSession))
	mux.HandleFunc("PUT /live-session/{id}", authn.RequireAuth(sessions.updateSession))
	mux.HandleFunc("DELETE /live-session/{id}", authn.RequireAuth(sessions.deleteSession))

	// Lifecycle, presence and chat
	mux.HandleFunc("PUT /live-session/{id}/start", authn.RequireAuth(sessions.startSession))
	mux.HandleFunc("PUT /live-session/{id}/end", authn.RequireAuth(sessions.endSession))
	mux.HandleFunc("POST /live-session/{id}/join", authn.RequireAuth(sessions.joinSession))
	mux.HandleFunc("POST /live-session/{id}/leave", authn.RequireAuth(sessions.leaveSession))
	mux.HandleFunc("POST /live-session/{id}/message", authn.RequireAuth(sessions.sendMessage))

	// GET /live-session/course/{courseId} overlaps the per-session GET
	// resources, so both are dispatched from one pattern
	mux.HandleFunc("GET /live-session/{id}/{resource}", authn.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		id, resource := r.PathValue("id"), r.PathValue("resource")
		if id == "course" {
			sessions.listCourseSessions(w, r, resource)
			return
		}

		switch resource {
		case "messages":
			sessions.listMessages(w, r, id)
		case "participants":
			sessions.listParticipants(w, r, id)
		case "events":
			cfg.Events.ServeHTTP(w, r)
		case "signal":
			signal.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusNotFound, "Not found")
		}
	}))

	return CORSMiddleware(cfg.AllowedOrigins, HTTPProtocolMiddleware(mux))
}
