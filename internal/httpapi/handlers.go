package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/dispatch"
	"tma_demo_bot/internal/domain"
	"tma_demo_bot/internal/logging"
)

var errInvalidUserID = errors.New("user id must be numeric")

// flexibleID accepts a JSON number or a numeric string.
type flexibleID int64

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}

	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*id = 0
			return nil
		}
	}

	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errInvalidUserID
	}
	*id = flexibleID(parsed)
	return nil
}

type pingBody struct {
	UserID  flexibleID `json:"userId" validate:"required"`
	Action  string     `json:"action" validate:"max=64"`
	Message string     `json:"message" validate:"max=1024"`
}

type okBody struct {
	OK bool `json:"ok"`
}

type sinkStatus struct {
	LastError string    `json:"lastError"`
	At        time.Time `json:"at"`
}

type healthBody struct {
	Status         string              `json:"status"`
	Timestamp      time.Time           `json:"timestamp"`
	ActiveSessions int64               `json:"activeSessions"`
	Database       string              `json:"database"`
	Environment    config.Integrations `json:"environment"`
	Sink           *sinkStatus         `json:"sink,omitempty"`
}

type healthzBody struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update models.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		s.requestLogger(r, "webhook_decode").WithError(err).Warn("failed to decode telegram update")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}

	if missing := s.cfg.MissingRequired(); len(missing) > 0 || s.dispatcher == nil {
		s.requestLogger(r, "webhook_config").WithField("missing", missing).Error("webhook refused: bot is not configured")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Configuration error"})
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), &update)
	if err != nil {
		s.writeError(w, r, "webhook_dispatch", err)
		return
	}

	s.requestLogger(r, "webhook_handled").WithFields(logging.Fields{
		"update_id": update.ID,
		"kind":      string(result.Kind),
	}).Debug("webhook update handled")

	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var body pingBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		if errors.Is(err, errInvalidUserID) {
			s.writeError(w, r, "api_ping", domain.ValidationError("api ping", "User ID must be numeric", err))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}

	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, r, "api_ping", domain.ValidationError("api ping", validationMessage(err), err))
		return
	}

	if signed, ok := signedUserID(r.Context()); ok && signed != int64(body.UserID) {
		s.requestLogger(r, "api_ping").WithFields(logging.Fields{
			"signed_user_id": signed,
			"user_id":        int64(body.UserID),
		}).Warn("ping user does not match init data")
		writeJSON(w, http.StatusForbidden, errorBody{Error: "User ID does not match init data"})
		return
	}

	if s.dispatcher == nil {
		s.writeError(w, r, "api_ping", domain.ConfigurationError("api ping", "Configuration error"))
		return
	}

	resp, err := s.dispatcher.APIPing(r.Context(), dispatch.PingRequest{
		UserID:  int64(body.UserID),
		Action:  body.Action,
		Message: body.Message,
	})
	if err != nil {
		s.writeError(w, r, "api_ping", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Invalid request"
	}

	first := fieldErrs[0]
	switch {
	case first.Field() == "UserID":
		return "User ID is required"
	case first.Tag() == "max":
		return strings.ToLower(first.Field()) + " is too long"
	default:
		return "Invalid " + strings.ToLower(first.Field())
	}
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	// An id that cannot name a user is reported like any other unknown user.
	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || userID == 0 {
		s.writeError(w, r, "api_user", domain.NotFoundError("lookup user", "User not found"))
		return
	}

	if s.dispatcher == nil {
		s.writeError(w, r, "api_user", domain.ConfigurationError("lookup user", "Configuration error"))
		return
	}

	view, err := s.dispatcher.LookupUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, "api_user", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		s.requestLogger(r, "api_metrics").Error("metrics gateway is not configured")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to fetch metrics"})
		return
	}

	snapshot, err := s.metrics.Snapshot(r.Context())
	if err != nil {
		s.requestLogger(r, "api_metrics").WithError(err).Error("failed to build metrics snapshot")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to fetch metrics"})
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthBody{
		Status:      "ok",
		Timestamp:   s.now().UTC(),
		Database:    "connected",
		Environment: s.cfg.Integrations(),
	}

	count, err := s.countSessions(r)
	if err != nil {
		resp.Status = "degraded"
		resp.Database = "unavailable"
		s.requestLogger(r, "health_store_error").WithError(err).Warn("session count failed during health check")
	}
	resp.ActiveSessions = count

	if s.cfg.SinkFailuresInHealth && s.metrics != nil {
		if failure, ok := s.metrics.LastSinkFailure(); ok {
			resp.Sink = &sinkStatus{LastError: failure.Error, At: failure.At}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) countSessions(r *http.Request) (int64, error) {
	if s.sessions == nil {
		return 0, errors.New("session store is not configured")
	}

	ctx, cancel := s.callContext(r.Context(), config.DefaultCallTimeout)
	defer cancel()

	return s.sessions.Count(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzBody{Status: "ok"}

	if s.sessions == nil {
		resp.Status = "degraded"
		resp.Store = "error"
		s.requestLogger(r, "healthz_store_missing").Warn("session store is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(r.Context(), storePingTimeout)
		err := s.sessions.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Store = "error"
			s.requestLogger(r, "healthz_store_error").WithError(err).Warn("store ping failed during health check")
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
