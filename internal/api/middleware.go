package api

import (
	"context"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/utils"
)

type participantKey struct{}

// participantFrom returns the authenticated caller of a request
func participantFrom(ctx context.Context) (models.Participant, bool) {
	p, ok := ctx.Value(participantKey{}).(models.Participant)
	return p, ok
}

// AuthMiddleware authenticates requests with tokens issued by the backend signer
type AuthMiddleware struct {
	signer *auth.Signer
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(signer *auth.Signer) *AuthMiddleware {
	return &AuthMiddleware{signer: signer}
}

// RequireAuth is a middleware that validates Bearer tokens. WebSocket and
// event stream clients that cannot set headers may pass the token in the
// token query parameter.
func (a *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Please log in to continue")
			return
		}

		claims, err := a.signer.Verify(token)
		if err != nil {
			log.Printf("Rejected token %s: %v", utils.MaskToken(token), err)
			writeError(w, http.StatusUnauthorized, "Your session has expired, please log in again")
			return
		}
		if claims.Role != models.RoleTutor && claims.Role != models.RoleStudent {
			writeError(w, http.StatusForbidden, "Unknown role")
			return
		}

		participant := models.Participant{
			ID:   claims.Subject,
			Name: claims.Name,
			Role: claims.Role,
		}
		next(w, r.WithContext(context.WithValue(r.Context(), participantKey{}, participant)))
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// HTTPProtocolMiddleware keeps long-lived event stream responses from being
// buffered by proxies and stops browsers from attempting HTTP/3
func HTTPProtocolMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", "clear")

		if path.Base(r.URL.Path) == "events" {
			w.Header().Set("X-Accel-Buffering", "no")
			w.Header().Set("Cache-Control", "no-cache, no-transform")
		}

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows the configured browser origins to call the API.
// Origins are host[:port] patterns as accepted by the WebSocket handshake.
func CORSMiddleware(allowed []string, next http.Handler) http.Handler {
	if len(allowed) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, allowed) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Add("Vary", "Origin")
		}

		// Handle CORS preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowed []string) bool {
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	for _, pattern := range allowed {
		if ok, _ := path.Match(pattern, host); ok {
			return true
		}
	}
	return false
}
