package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"servicebay/internal/ratelimit"
	"servicebay/internal/util"
	"servicebay/services/booking/internal/app"
)

const maxBodyBytes = 1 << 20

// Authenticator resolves a bearer token to the caller's user ID.
type Authenticator interface {
	VerifySubject(token string) (string, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Auth           Authenticator
	GenerateLimit  ratelimit.Limiter
	CORSOrigins    []string
	TrustedProxies *util.TrustedProxies
	Clock          func() time.Time
}

// Server exposes HTTP endpoints for the booking service.
type Server struct {
	app            *app.App
	auth           Authenticator
	generateLimit  ratelimit.Limiter
	corsOrigins    []string
	trustedProxies *util.TrustedProxies
	now            func() time.Time
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("authenticator required")
	}
	s := &Server{
		app:            cfg.App,
		auth:           cfg.Auth,
		generateLimit:  cfg.GenerateLimit,
		corsOrigins:    cfg.CORSOrigins,
		trustedProxies: cfg.TrustedProxies,
		now:            cfg.Clock,
		router:         chi.NewRouter(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("booking", util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.router))))
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { notFound(w, "not found") })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { methodNotAllowed(w) })

	r.Get("/healthz", s.handleHealth)

	// catalog
	r.Get("/services", s.handleListServices)
	r.Get("/services/{id}", s.handleGetService)
	r.Post("/services/seed", s.withUser(s.handleSeedCatalog))

	// appointments
	r.Post("/appointments", s.withUser(s.handleCreateAppointment))
	r.Get("/appointments", s.withOptionalUser(s.handleListAppointments))
	r.Get("/appointments/overview", s.withOptionalUser(s.handleOverview))
	r.Patch("/appointments/{id}/status", s.withUser(s.handleUpdateStatus))
	r.Post("/appointments/{id}/cancel", s.withUser(s.handleCancel))

	// reports
	r.Get("/appointments/{id}/report", s.withOptionalUser(s.handleGetReport))
	r.Post("/appointments/{id}/report", s.withUser(s.handleCreateReport))
	r.Post("/appointments/{id}/report/generate", s.withUser(s.handleGenerateReport))
	r.Get("/reports", s.withOptionalUser(s.handleListReports))
	r.Post("/reports/{id}/export", s.withUser(s.handleExportReport))
	r.Get("/jobs/{id}", s.withUser(s.handleGetJob))

	r.Get("/reminders", s.withOptionalUser(s.handleListReminders))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// withUser requires a valid bearer token.
func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, ok := s.verify(r, token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	}
}

// withOptionalUser lets anonymous callers through with an empty user ID. A
// token that is present but invalid is still rejected.
func (s *Server) withOptionalUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			next(w, r, "")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, ok := s.verify(r, token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) verify(r *http.Request, token string) (string, bool) {
	userID, err := s.auth.VerifySubject(token)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("token rejected",
			"path", r.URL.Path,
			"ip", util.ClientIP(r, s.trustedProxies),
			"err", err,
		)
		return "", false
	}
	return userID, true
}

// allowGenerate applies the per-user generation limit. Limiter failures deny
// the request.
func (s *Server) allowGenerate(w http.ResponseWriter, r *http.Request, userID string) bool {
	if s.generateLimit == nil {
		return true
	}
	decision, err := s.generateLimit.Allow(r.Context(), "generate|"+userID)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
		return false
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.Allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.ResetIn.Seconds()))))
	writeAppError(w, r, app.ErrRateLimited)
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(out); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusBadGateway:
		return "PROVIDER_FAILED"
	case http.StatusServiceUnavailable:
		return "SERVICE_NOT_CONFIGURED"
	case http.StatusGatewayTimeout:
		return "PROVIDER_TIMEOUT"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}

// writeAppError maps app errors to HTTP statuses. Internal details are only
// logged.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *app.ProviderError
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound):
		notFound(w, "not found")
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many report generation requests")
	case errors.Is(err, app.ErrConfiguration):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &pe) && pe.Timeout:
		util.LoggerFromContext(r.Context()).Warn("provider timeout", "err", err)
		writeError(w, http.StatusGatewayTimeout, "report generation timed out")
	case errors.As(err, &pe):
		util.LoggerFromContext(r.Context()).Warn("provider failure", "err", err)
		writeError(w, http.StatusBadGateway, "report generation failed")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func listResponse[T any](items []T) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{
		"items": items,
		"count": len(items),
	}
}
