package handlers

import (
	"net/http"
	"strings"

	"github.com/dchest/captcha"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"sfaptracker/apperr"
	"sfaptracker/auth"
	"sfaptracker/directory"
)

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !h.loginLimiter.Allow(ip) {
		h.sendError(w, r, apperr.RateLimited("TooManyAttempts"))
		return
	}

	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		h.sendError(w, r, apperr.Validation("EmailAndPasswordRequired"))
		return
	}

	user, err := h.Users.Authenticate(r.Context(), input.Email, input.Password)
	if err != nil {
		if apperr.Is(err, apperr.KindAuth) {
			h.loginLimiter.RecordFailure(ip)
		}
		h.sendError(w, r, err)
		return
	}
	h.loginLimiter.Reset(ip)

	isAdmin, err := h.Users.IsAdmin(r.Context(), user.Email)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if err := auth.SetSession(w, r, user.Email); err != nil {
		h.sendError(w, r, apperr.Internal(err))
		return
	}
	h.Log.Info("user logged in", zap.String("email", user.Email))
	sendJSON(w, http.StatusOK, map[string]any{"success": true, "user": user.Session(isAdmin)})
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !h.registerLimiter.Allow(ip) {
		h.sendError(w, r, apperr.RateLimited("TooManyAttempts"))
		return
	}
	// Every attempt counts, successful or not.
	h.registerLimiter.RecordFailure(ip)

	var input struct {
		directory.RegisterInput
		CaptchaID       string `json:"captchaId"`
		CaptchaSolution string `json:"captchaSolution"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}
	if h.CaptchaEnabled && !captcha.VerifyString(input.CaptchaID, input.CaptchaSolution) {
		h.sendError(w, r, apperr.Validation("CaptchaInvalid"))
		return
	}

	if err := h.Users.Register(r.Context(), input.RegisterInput); err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "RegistrationSuccessful", nil)
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := auth.ClearSession(w, r); err != nil {
		h.sendError(w, r, apperr.Internal(err))
		return
	}
	sendSuccess(w, r, "LoggedOut", nil)
}

func (h *Handler) UserHandler(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	sendJSON(w, http.StatusOK, s.user.Session(s.isAdmin))
}

func (h *Handler) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !h.forgotLimiter.Allow(ip) {
		h.sendError(w, r, apperr.RateLimited("TooManyAttempts"))
		return
	}
	h.forgotLimiter.RecordFailure(ip)

	var input struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}
	if err := h.Users.ForgotPassword(r.Context(), input.Email); err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "ResetEmailSent", nil)
}

func (h *Handler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}
	if err := h.Users.ResetPasswordWithToken(r.Context(), input.Token, input.Password); err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "PasswordResetSuccessful", nil)
}

// CaptchaHandler issues a new registration captcha.
func (h *Handler) CaptchaHandler(w http.ResponseWriter, r *http.Request) {
	id := captcha.New()
	sendJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"enabled":   h.CaptchaEnabled,
		"captchaId": id,
		"imageUrl":  "/api/captcha/" + id + ".png",
	})
}

func captchaImages() http.Handler {
	return captcha.Server(captcha.StdWidth, captcha.StdHeight)
}

// CSRFTokenHandler hands the client the token to echo in X-CSRF-Token.
func CSRFTokenHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"csrfToken": csrf.Token(r)})
}
