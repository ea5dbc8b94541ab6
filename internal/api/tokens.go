package api

import (
	"log"
	"net/http"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/utils"
)

// TokenHandler mints tokens for local development. It is only routed when
// development tokens are enabled.
type TokenHandler struct {
	signer *auth.Signer
}

// NewTokenHandler creates a token handler
func NewTokenHandler(signer *auth.Signer) *TokenHandler {
	return &TokenHandler{signer: signer}
}

// ServeHTTP handles POST /auth/token
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := models.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.signer.Issue(req.UserID, req.Name, req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	log.Printf("Issued development token for %s (%s)", utils.SanitizeLogString(req.Name), req.Role)
	writeJSON(w, http.StatusOK, models.TokenResponse{Token: token})
}
