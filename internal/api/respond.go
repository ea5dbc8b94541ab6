package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/navikt/liveroom/internal/errs"
	"github.com/navikt/liveroom/internal/models"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError writes the {"message"} envelope the client surfaces to users
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message})
}

// writeServiceError maps a service error to a status code and user message
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, errs.ErrForbidden):
		writeError(w, http.StatusForbidden, "Only the tutor of this session can do that")
	case errors.Is(err, errs.ErrNotLive):
		writeError(w, http.StatusConflict, "Session is not live")
	case errors.Is(err, errs.ErrSessionFull):
		writeError(w, http.StatusConflict, "Session is full")
	case errors.Is(err, errs.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

// decodeBody decodes a JSON request body into v. An empty body is accepted
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	defer r.Body.Close()

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	log.Printf("Error decoding request body: %v", err)
	writeError(w, http.StatusBadRequest, "Invalid request body")
	return false
}
