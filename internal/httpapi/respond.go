package httpapi

import (
	"encoding/json"
	"net/http"

	"tma_demo_bot/internal/domain"
	"tma_demo_bot/internal/logging"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a classified error onto a JSON error response. Server-side
// failures are logged with their full chain; the body only carries the public
// message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, event string, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	log := s.requestLogger(r, event).WithFields(logging.Fields{
		"kind":   string(kind),
		"status": status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Warn("request rejected")
	}

	writeJSON(w, status, errorBody{Error: domain.PublicMessage(err)})
}
