package handlers

import (
	"net/http"

	"sfaptracker/apperr"
	"sfaptracker/catalog"
	"sfaptracker/progress"
)

// CompetenciesHandler returns the catalog merged with the caller's progress,
// grouped by category in display order.
func (h *Handler) CompetenciesHandler(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	groups, err := catalog.Aggregate(r.Context(), h.DB, s.user.Email)
	if err != nil {
		h.sendError(w, r, apperr.Internal(err))
		return
	}
	sendSuccess(w, r, "", map[string]any{
		"categories":   groups.Categories(),
		"competencies": groups,
	})
}

func (h *Handler) CompetencyListHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := catalog.Grouped(r.Context(), h.DB)
	if err != nil {
		h.sendError(w, r, apperr.Internal(err))
		return
	}
	sendSuccess(w, r, "", map[string]any{
		"categories":   groups.Categories(),
		"competencies": groups,
	})
}

func (h *Handler) MarkViewedHandler(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	viewed, err := h.Progress.MarkViewed(r.Context(), s.user.Email, r.PathValue("id"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "MarkedAsViewed", map[string]any{"viewedDate": viewed})
}

func (h *Handler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		SelfRating int `json:"selfRating"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	s := sessionFrom(r)
	handoff, err := h.Progress.SubmitSelfRating(r.Context(), s.user.Email, r.PathValue("id"), input.SelfRating)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "SelfRatingSaved", map[string]any{"handoffDate": handoff})
}

type validationRequest struct {
	ApprenticeEmail      string `json:"apprenticeEmail"`
	Rating               *int   `json:"rating"`
	SignatureDataURL     string `json:"signatureDataUrl"`
	Comments             string `json:"comments"`
	ManualValidationDate string `json:"manualValidationDate"`
	MentorName           string `json:"mentorName"`
}

// ValidateHandler records a mentor sign-off. The mentor signs on the
// apprentice's session, so no admin check applies.
func (h *Handler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	var input validationRequest
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	p, err := h.Progress.Validate(r.Context(), progress.ValidateInput{
		CompetencyID:    r.PathValue("id"),
		ApprenticeEmail: input.ApprenticeEmail,
		Rating:          input.Rating,
		Signature:       input.SignatureDataURL,
		Comments:        input.Comments,
		MentorName:      input.MentorName,
		ManualDate:      input.ManualValidationDate,
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "ValidationSaved", map[string]any{"dateValidated": p.DateValidated})
}

func (h *Handler) UpdateValidationHandler(w http.ResponseWriter, r *http.Request) {
	var input validationRequest
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	p, err := h.Progress.UpdateValidation(r.Context(), progress.UpdateInput{
		CompetencyID:    r.PathValue("id"),
		ApprenticeEmail: input.ApprenticeEmail,
		Rating:          input.Rating,
		Comments:        input.Comments,
		MentorName:      input.MentorName,
		ManualDate:      input.ManualValidationDate,
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "ValidationUpdated", map[string]any{"dateValidated": p.DateValidated})
}

func (h *Handler) SignatureHandler(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	sig, err := h.Progress.Signature(r.Context(), r.PathValue("id"), s.user.Email, s.isAdmin)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendSuccess(w, r, "", map[string]any{"signature": sig})
}
