package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"sfaptracker/apperr"
	"sfaptracker/directory"
	"sfaptracker/i18n"
	"sfaptracker/progress"
)

// maxBodyBytes leaves room for a signature image in a validation request.
const maxBodyBytes = 10 << 20

type Handler struct {
	DB             *sql.DB
	Users          *directory.Service
	Progress       *progress.Service
	Log            *zap.Logger
	CaptchaEnabled bool

	loginLimiter    *rateLimiter
	registerLimiter *rateLimiter
	forgotLimiter   *rateLimiter
}

func NewHandler(conn *sql.DB, users *directory.Service, prog *progress.Service, log *zap.Logger) *Handler {
	return &Handler{
		DB:              conn,
		Users:           users,
		Progress:        prog,
		Log:             log,
		loginLimiter:    newRateLimiter(),
		registerLimiter: newRateLimiter(),
		forgotLimiter:   newRateLimiter(),
	}
}

func RegisterHandlers(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/login", h.LoginHandler)
	mux.HandleFunc("POST /api/register", h.RegisterHandler)
	mux.HandleFunc("POST /api/logout", h.LogoutHandler)
	mux.HandleFunc("POST /api/forgot-password", h.ForgotPasswordHandler)
	mux.HandleFunc("POST /api/reset-password", h.ResetPasswordHandler)
	mux.HandleFunc("GET /api/captcha", h.CaptchaHandler)
	mux.Handle("GET /api/captcha/{file}", captchaImages())
	mux.HandleFunc("GET /api/csrf-token", CSRFTokenHandler)
	mux.HandleFunc("GET /api/user", h.requireAuth(h.UserHandler))

	mux.HandleFunc("GET /api/competencies", h.requireAuth(h.CompetenciesHandler))
	mux.HandleFunc("GET /api/competencies/list", h.requireAuth(h.CompetencyListHandler))
	mux.HandleFunc("POST /api/competencies/{id}/viewed", h.requireAuth(h.MarkViewedHandler))
	mux.HandleFunc("POST /api/competencies/{id}/ready", h.requireAuth(h.ReadyHandler))
	mux.HandleFunc("POST /api/competencies/{id}/validate", h.requireAuth(h.ValidateHandler))
	mux.HandleFunc("PUT /api/competencies/{id}/validate", h.requireAuth(h.UpdateValidationHandler))
	mux.HandleFunc("GET /api/progress/{id}/signature", h.requireAuth(h.SignatureHandler))

	mux.HandleFunc("GET /api/admin/users", h.requireAdmin(h.AdminListUsersHandler))
	mux.HandleFunc("POST /api/admin/users", h.requireAdmin(h.AdminCreateUserHandler))
	mux.HandleFunc("PUT /api/admin/users/{email}", h.requireAdmin(h.AdminUpdateUserHandler))
	mux.HandleFunc("DELETE /api/admin/users/{email}", h.requireAdmin(h.AdminDeleteUserHandler))
	mux.HandleFunc("POST /api/admin/users/{email}/reset-password", h.requireAdmin(h.AdminResetPasswordHandler))
	mux.HandleFunc("GET /api/admin/progress-overview", h.requireAdmin(h.ProgressOverviewHandler))
	mux.HandleFunc("GET /api/admin/admins", h.requireAdmin(h.ListAdminsHandler))
	mux.HandleFunc("POST /api/admin/admins", h.requireAdmin(h.AddAdminHandler))
	mux.HandleFunc("DELETE /api/admin/admins/{email}", h.requireAdmin(h.RemoveAdminHandler))
	mux.HandleFunc("GET /api/admin/export/users", h.requireAdmin(h.ExportUsersHandler))
	mux.HandleFunc("GET /api/admin/export/progress", h.requireAdmin(h.ExportProgressHandler))
	mux.HandleFunc("GET /api/admin/export/by-company", h.requireAdmin(h.ExportByCompanyHandler))
	mux.HandleFunc("GET /api/admin/custom-report", h.requireAdmin(h.CustomReportHandler))

	mux.HandleFunc("/api/", NotFoundHandler)
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendSuccess answers a user route.
func sendSuccess(w http.ResponseWriter, r *http.Request, key string, extra map[string]any) {
	body := map[string]any{"success": true}
	if key != "" {
		body["message"] = i18n.T(i18n.DetectLanguage(r), key)
	}
	for k, v := range extra {
		body[k] = v
	}
	sendJSON(w, http.StatusOK, body)
}

// sendError answers a user route with {success:false, message}.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	e := h.report(r, err)
	sendJSON(w, e.Status(), map[string]any{
		"success": false,
		"message": e.Message(i18n.DetectLanguage(r)),
	})
}

// sendAdminError answers an admin route with {error}.
func (h *Handler) sendAdminError(w http.ResponseWriter, r *http.Request, err error) {
	e := h.report(r, err)
	sendJSON(w, e.Status(), map[string]string{"error": e.Message(i18n.DetectLanguage(r))})
}

func (h *Handler) report(r *http.Request, err error) *apperr.Error {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		h.Log.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	return e
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.BadRequest("InvalidRequestBody")
}

func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"message": i18n.T(i18n.DetectLanguage(r), "EndpointNotFound"),
	})
}
