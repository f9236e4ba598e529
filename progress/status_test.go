package progress

import (
	"testing"
	"time"

	"sfaptracker/models"
)

func TestDeriveStatusNil(t *testing.T) {
	if got := DeriveStatus(nil); got != models.StatusPending {
		t.Errorf("Expected pending for missing row, got %s", got)
	}
}

// Every combination of rating+dateValidated, handoffDate, selfRating and
// viewedDate maps to exactly one status.
func TestDeriveStatusAllCombinations(t *testing.T) {
	now := time.Now()
	rating := 4
	self := 2

	for mask := 0; mask < 16; mask++ {
		p := &models.Progress{}
		reviewed := mask&1 != 0
		ready := mask&2 != 0
		selfRated := mask&4 != 0
		viewed := mask&8 != 0

		if reviewed {
			p.Rating = &rating
			p.DateValidated = &now
		}
		if ready {
			p.HandoffDate = &now
		}
		if selfRated {
			p.SelfRating = &self
		}
		if viewed {
			p.ViewedDate = &now
		}

		var want models.Status
		switch {
		case reviewed:
			want = models.StatusReviewed
		case ready:
			want = models.StatusReady
		case selfRated:
			want = models.StatusSelfRated
		case viewed:
			want = models.StatusViewed
		default:
			want = models.StatusPending
		}

		if got := DeriveStatus(p); got != want {
			t.Errorf("mask %04b: expected %s, got %s", mask, want, got)
		}
	}
}

func TestDeriveStatusNeedsBothRatingAndDate(t *testing.T) {
	now := time.Now()
	zero := 0

	onlyRating := &models.Progress{Rating: &zero, HandoffDate: &now}
	if got := DeriveStatus(onlyRating); got != models.StatusReady {
		t.Errorf("Rating without validation date: expected ready, got %s", got)
	}

	onlyDate := &models.Progress{DateValidated: &now, ViewedDate: &now}
	if got := DeriveStatus(onlyDate); got != models.StatusViewed {
		t.Errorf("Validation date without rating: expected viewed, got %s", got)
	}

	zeroRating := &models.Progress{Rating: &zero, DateValidated: &now}
	if got := DeriveStatus(zeroRating); got != models.StatusReviewed {
		t.Errorf("Rating 0 is a real rating: expected reviewed, got %s", got)
	}
}
