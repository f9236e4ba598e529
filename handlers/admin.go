package handlers

import (
	"bytes"
	"mime"
	"net/http"

	"sfaptracker/apperr"
	"sfaptracker/directory"
	"sfaptracker/reports"
)

func (h *Handler) AdminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.ListUsers(r.Context())
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, users)
}

func (h *Handler) AdminCreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var input directory.CreateUserInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	password, err := h.Users.CreateUser(r.Context(), input)
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendSuccess(w, r, "UserCreated", map[string]any{"tempPassword": password})
}

func (h *Handler) AdminUpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var input directory.UpdateUserInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	user, err := h.Users.UpdateUser(r.Context(), r.PathValue("email"), input)
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendSuccess(w, r, "UserUpdated", map[string]any{"user": user})
}

func (h *Handler) AdminDeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.DeleteUser(r.Context(), r.PathValue("email")); err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendSuccess(w, r, "UserDeleted", nil)
}

func (h *Handler) AdminResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	password, err := h.Users.ResetPassword(r.Context(), r.PathValue("email"))
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendSuccess(w, r, "", map[string]any{"newPassword": password})
}

func (h *Handler) ProgressOverviewHandler(w http.ResponseWriter, r *http.Request) {
	overview, err := reports.NewBuilder(h.DB).Overview(r.Context())
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, overview)
}

func (h *Handler) ListAdminsHandler(w http.ResponseWriter, r *http.Request) {
	admins, err := h.Users.ListAdmins(r.Context())
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, admins)
}

func (h *Handler) AddAdminHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	if err := h.Users.AddAdmin(r.Context(), input.Email); err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendSuccess(w, r, "AdminAdded", nil)
}

func (h *Handler) RemoveAdminHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.RemoveAdmin(r.Context(), r.PathValue("email")); err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	sendSuccess(w, r, "AdminRemoved", nil)
}

func (h *Handler) ExportUsersHandler(w http.ResponseWriter, r *http.Request) {
	t, err := reports.NewBuilder(h.DB).Users(r.Context())
	h.sendCSV(w, r, "users-export.csv", t, err)
}

func (h *Handler) ExportProgressHandler(w http.ResponseWriter, r *http.Request) {
	t, err := reports.NewBuilder(h.DB).Progress(r.Context())
	h.sendCSV(w, r, "progress-export.csv", t, err)
}

func (h *Handler) ExportByCompanyHandler(w http.ResponseWriter, r *http.Request) {
	t, err := reports.NewBuilder(h.DB).ByCompany(r.Context())
	h.sendCSV(w, r, "company-breakdown-report.csv", t, err)
}

// CustomReportHandler renders ?type=&value=&format= as a CSV attachment.
func (h *Handler) CustomReportHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := reports.ParseRequest(q.Get("type"), q.Get("value"), q.Get("format"))
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	t, err := reports.NewBuilder(h.DB).Custom(r.Context(), req)
	h.sendCSV(w, r, req.Filename(), t, err)
}

func (h *Handler) sendCSV(w http.ResponseWriter, r *http.Request, filename string, t *reports.Table, err error) {
	if err != nil {
		h.sendAdminError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteCSV(&buf, t); err != nil {
		h.sendAdminError(w, r, apperr.Internal(err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
