package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"tma_demo_bot/internal/logging"
	"tma_demo_bot/internal/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	headerInitData  = "X-Telegram-Init-Data"
	authSchemeTMA   = "tma "
	unmatchedRoute  = "unmatched"
	preflightRoute  = "preflight"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization, " + headerInitData + ", " + headerRequestID,
}

type signedUserKey struct{}

// signedUserID returns the Telegram user proven by validated init data.
func signedUserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(signedUserKey{}).(int64)
	return id, ok && id != 0
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		requestID := strings.TrimSpace(r.Header.Get(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		rec := &statusRecorder{ResponseWriter: w}
		req := r.WithContext(logging.WithRequestID(r.Context(), requestID))
		next.ServeHTTP(rec, req)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := req.Pattern
		switch {
		case r.Method == http.MethodOptions:
			route = preflightRoute
		case route == "":
			route = unmatchedRoute
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()

		s.logger.WithFields(logging.Fields{
			"event":       "http_request",
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": s.now().Sub(start).Milliseconds(),
		}).Debug("handled http request")
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for key, value := range corsHeaders {
			w.Header().Set(key, value)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				s.requestLogger(r, "http_panic").WithField("panic", recovered).Error("recovered from handler panic")
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireInitData validates signed Mini App init data when the deployment
// demands it and stores the signed user in the request context.
func (s *Server) requireInitData(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RequireInitData {
			next(w, r)
			return
		}

		log := s.requestLogger(r, "init_data")
		if s.cfg.TelegramToken == "" {
			log.Error("init data validation requires a bot token")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Configuration error"})
			return
		}

		raw := initDataFrom(r)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Missing init data"})
			return
		}
		if err := initdata.Validate(raw, s.cfg.TelegramToken, s.cfg.InitDataTTL); err != nil {
			log.WithError(err).Warn("rejected invalid init data")
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Invalid init data"})
			return
		}
		parsed, err := initdata.Parse(raw)
		if err != nil {
			log.WithError(err).Warn("failed to parse init data")
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid init data format"})
			return
		}

		ctx := r.Context()
		if parsed.User.ID != 0 {
			ctx = context.WithValue(ctx, signedUserKey{}, parsed.User.ID)
		}
		next(w, r.WithContext(ctx))
	}
}

func initDataFrom(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get(headerInitData)); raw != "" {
		return raw
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len(authSchemeTMA) && strings.EqualFold(auth[:len(authSchemeTMA)], authSchemeTMA) {
		return strings.TrimSpace(auth[len(authSchemeTMA):])
	}
	return ""
}

func (s *Server) requestLogger(r *http.Request, event string) *logrus.Entry {
	return s.logger.WithFields(logging.Fields{
		"event":      event,
		"request_id": logging.RequestID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}

// callContext bounds a single store or snapshot call made by a handler.
func (s *Server) callContext(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := s.cfg.CallTimeout
	if timeout <= 0 {
		timeout = fallback
	}
	return context.WithTimeout(ctx, timeout)
}
