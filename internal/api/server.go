// Package api provides the HTTP server for MOODI.
// It exposes the reflection generators, the mood submission pipeline and the
// gamification state over JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/moodi-app/moodi/internal/app/credit"
	"github.com/moodi-app/moodi/internal/app/engagement"
	"github.com/moodi-app/moodi/internal/app/mood"
	"github.com/moodi-app/moodi/internal/app/reflection"
	"github.com/moodi-app/moodi/internal/domain"
	"github.com/moodi-app/moodi/internal/health"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Services are the application services the server exposes.
type Services struct {
	Game      *engagement.Service
	Moods     *mood.Service
	Generator *reflection.Generator
	Ledger    *credit.Service
}

// Server is the MOODI HTTP API server.
type Server struct {
	svc            Services
	log            *zap.Logger
	health         *health.Checker
	limiter        *rateLimiter
	version        string
	timeout        time.Duration
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(svc Services, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		svc:     svc,
		log:     log.Named("api"),
		version: "dev",
		timeout: 60 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker reported by /health.
func (s *Server) SetHealth(h *health.Checker) { s.health = h }

// SetVersion sets the version reported by /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// SetRequestTimeout bounds each request. Non-positive values are ignored.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetRateLimit enables per-client rate limiting on LLM-backed routes.
// rps <= 0 disables it.
func (s *Server) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = newRateLimiter(rps, burst)
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"version": s.version,
			})
		})

		// LLM-backed routes
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/reflection", s.handleReflection)
			r.Post("/notification", s.handleNotification)
			r.Post("/referral-caption", s.handleReferralCaption)
			r.Post("/users/{userID}/moods", s.handleSubmitMood)
		})

		r.Get("/users/{userID}/moods", s.handleListMoods)
		r.Get("/users/{userID}/game", s.handleGetGame)
		r.Post("/users/{userID}/game", s.handleCreateGame)
		r.Get("/users/{userID}/ledger", s.handleLedger)

		r.Post("/referrals", s.handleCreateReferral)
		r.Post("/referrals/{referralID}/accept", s.handleAcceptReferral)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// writeDomainError maps err onto a status and writes it. Validation errors
// carry their problem list.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	body := map[string]any{
		"message": err.Error(),
		"type":    errorType(status),
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body["problems"] = verr.Problems
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// requestSubjects are the validation subjects that describe client input.
// Any other subject means the model produced invalid output.
var requestSubjects = map[string]bool{
	"payload":              true,
	"notification request": true,
	"caption request":      true,
	"submission":           true,
}

func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) && !requestSubjects[verr.Subject] {
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrSelfReferral):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUserIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStateNotFound), errors.Is(err, domain.ErrReferralNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrReferralAlreadyAccepted), errors.Is(err, domain.ErrReferralExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusBadGateway:
		return "generation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
