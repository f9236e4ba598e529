package models

import "time"

const RoleApprentice = "Apprentice"

type User struct {
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Company      string    `json:"company"`
	Cohort       string    `json:"cohort"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionUser is what the client sees of the logged-in user.
type SessionUser struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	Company   string `json:"company"`
	Cohort    string `json:"cohort"`
	Role      string `json:"role"`
	IsAdmin   bool   `json:"isAdmin"`
}

func (u User) Session(isAdmin bool) SessionUser {
	return SessionUser{
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FirstName + " " + u.LastName,
		Company:   u.Company,
		Cohort:    u.Cohort,
		Role:      u.Role,
		IsAdmin:   isAdmin,
	}
}

type Competency struct {
	ID            string    `json:"id" yaml:"id"`
	Category      string    `json:"category" yaml:"category"`
	Text          string    `json:"text" yaml:"text"`
	ReferenceCode string    `json:"referenceCode" yaml:"referenceCode"`
	What          string    `json:"what" yaml:"what"`
	LooksLike     string    `json:"looksLike" yaml:"looksLike"`
	Critical      string    `json:"critical" yaml:"critical"`
	CreatedAt     time.Time `json:"createdAt" yaml:"-"`
}

// Progress is one apprentice's record for one competency. Every stage field
// is nullable; status is derived from which ones are set.
type Progress struct {
	ID              string
	ApprenticeEmail string
	CompetencyID    string
	SelfRating      *int
	Rating          *int
	ViewedDate      *time.Time
	HandoffDate     *time.Time
	DateValidated   *time.Time
	MentorName      string
	Signature       string
	Comments        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProgressID is the composite key of a progress row.
func ProgressID(email, competencyID string) string {
	return email + "_" + competencyID
}

// ProgressView is the progress payload sent to clients. The signature image
// is fetched separately.
type ProgressView struct {
	ProgressID    string     `json:"progressId"`
	Apprentice    string     `json:"apprentice"`
	CompetencyID  string     `json:"competencyId"`
	SelfRating    *int       `json:"selfRating"`
	Rating        *int       `json:"rating"`
	MentorName    string     `json:"mentorName"`
	HasSignature  bool       `json:"hasSignature"`
	Comments      string     `json:"comments"`
	ViewedDate    *time.Time `json:"viewedDate"`
	HandoffDate   *time.Time `json:"handoffDate"`
	DateValidated *time.Time `json:"dateValidated"`
}

func (p *Progress) View() *ProgressView {
	if p == nil {
		return nil
	}
	return &ProgressView{
		ProgressID:    p.ID,
		Apprentice:    p.ApprenticeEmail,
		CompetencyID:  p.CompetencyID,
		SelfRating:    p.SelfRating,
		Rating:        p.Rating,
		MentorName:    p.MentorName,
		HasSignature:  p.Signature != "",
		Comments:      p.Comments,
		ViewedDate:    p.ViewedDate,
		HandoffDate:   p.HandoffDate,
		DateValidated: p.DateValidated,
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusViewed    Status = "viewed"
	StatusSelfRated Status = "selfRated"
	StatusReady     Status = "ready"
	StatusReviewed  Status = "reviewed"
)

// CompetencyView is a catalog entry joined with the caller's progress.
type CompetencyView struct {
	Competency
	Status   Status        `json:"status"`
	Progress *ProgressView `json:"progress"`
}

type Admin struct {
	Email     string    `json:"email"`
	Builtin   bool      `json:"builtin"`
	CreatedAt time.Time `json:"createdAt"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
}

// UserSummary is a directory row with progress counters.
type UserSummary struct {
	User
	IsAdmin            bool    `json:"isAdmin"`
	TotalProgress      int     `json:"totalProgress"`
	CompletedProgress  int     `json:"completedProgress"`
	ProgressPercentage float64 `json:"progressPercentage"`
}
