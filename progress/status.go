// Package progress owns the per-competency progress rows: status derivation
// and the viewed, ready and validation transitions.
package progress

import "sfaptracker/models"

// DeriveStatus maps the populated stage fields of p to a status. A nil row
// is pending. A mentor rating with a validation date wins over everything
// else.
func DeriveStatus(p *models.Progress) models.Status {
	switch {
	case p == nil:
		return models.StatusPending
	case p.Rating != nil && p.DateValidated != nil:
		return models.StatusReviewed
	case p.HandoffDate != nil:
		return models.StatusReady
	case p.SelfRating != nil:
		return models.StatusSelfRated
	case p.ViewedDate != nil:
		return models.StatusViewed
	default:
		return models.StatusPending
	}
}
