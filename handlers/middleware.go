package handlers

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"sfaptracker/apperr"
	"sfaptracker/auth"
	"sfaptracker/i18n"
	"sfaptracker/models"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionKey
)

const RequestIDHeader = "X-Request-ID"

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"style-src 'self' 'unsafe-inline' https://cdn.tailwindcss.com https://cdnjs.cloudflare.com https://unpkg.com https://cdn.jsdelivr.net",
	"script-src 'self' 'unsafe-inline' https://cdn.tailwindcss.com https://cdnjs.cloudflare.com https://unpkg.com https://cdn.jsdelivr.net",
	"img-src 'self' data: https: blob:",
	"font-src 'self' https://cdnjs.cloudflare.com",
	"connect-src 'self'",
}, "; ")

func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", contentSecurityPolicy)

		// Static assets may be cached; API answers and the app shell may not.
		if strings.HasPrefix(r.URL.Path, "/api/") || path.Ext(r.URL.Path) == "" {
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
			h.Set("Pragma", "no-cache")
		}
		next.ServeHTTP(w, r)
	})
}

// NewCORS allows credentialed requests from the configured origins only.
func NewCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token", RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", RequestIDHeader},
		AllowCredentials: true,
	})
}

// CSRFFailureHandler answers a rejected CSRF check with a JSON 403.
func CSRFFailureHandler(log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Warn("csrf check failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(csrf.FailureReason(r)))
		sendJSON(w, http.StatusForbidden, map[string]any{
			"success": false,
			"message": i18n.T(i18n.DetectLanguage(r), "CSRFInvalid"),
		})
	})
}

// RequestID tags the request with the incoming X-Request-ID or a new UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogger logs one line per request and turns panics into 500s.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					log.Error("panic serving request",
						zap.Any("panic", p),
						zap.String("request_id", RequestIDFrom(r.Context())),
						zap.String("path", r.URL.Path))
					sendJSON(rec, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal server error"})
				}

				fields := []zap.Field{
					zap.String("request_id", RequestIDFrom(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", rec.status),
					zap.Duration("latency", time.Since(start)),
					zap.String("ip", getClientIP(r)),
				}
				switch {
				case rec.status >= 500:
					log.Error("request", fields...)
				case rec.status >= 400:
					log.Warn("request", fields...)
				default:
					log.Info("request", fields...)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

type session struct {
	user    *models.User
	isAdmin bool
}

func sessionFrom(r *http.Request) session {
	s, _ := r.Context().Value(sessionKey).(session)
	return s
}

// loadSession resolves the session cookie to a stored user. A cookie naming
// a deleted user counts as no session.
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	email := auth.GetEmail(r)
	if email == "" {
		return nil, apperr.Auth("AuthenticationRequired")
	}
	user, err := h.Users.GetUser(r.Context(), email)
	if apperr.Is(err, apperr.KindNotFound) {
		auth.ClearSession(w, r)
		return nil, apperr.Auth("AuthenticationRequired")
	}
	if err != nil {
		return nil, err
	}
	isAdmin, err := h.Users.IsAdmin(r.Context(), email)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(r.Context(), sessionKey, session{user: user, isAdmin: isAdmin})
	return r.WithContext(ctx), nil
}

func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2, err := h.loadSession(w, r)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		next(w, r2)
	}
}

func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2, err := h.loadSession(w, r)
		if err != nil {
			h.sendAdminError(w, r, err)
			return
		}
		if !sessionFrom(r2).isAdmin {
			h.sendAdminError(w, r2, apperr.Forbidden("AdminRequired"))
			return
		}
		next(w, r2)
	}
}
