package progress

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"sfaptracker/apperr"
	"sfaptracker/db"
	"sfaptracker/models"
)

const (
	MinSelfRating   = 1
	MaxSelfRating   = 3
	MinMentorRating = 0
	MaxMentorRating = 5

	signaturePrefix = "data:image/"
)

const progressColumns = `id, apprenticeEmail, competencyId, selfRating, rating, viewedDate, handoffDate,
	dateValidated, mentorName, signature, comments, createdAt, updatedAt`

// Service runs the progress transitions. Each transition is a single upsert
// keyed by the apprentice email and competency id, so repeating one never
// creates a second row and later stages only ever add fields.
type Service struct {
	db  *sql.DB
	log *zap.Logger
	Now func() time.Time
}

func NewService(conn *sql.DB, log *zap.Logger) *Service {
	return &Service{db: conn, log: log, Now: time.Now}
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

// ValidateInput is a mentor's sign-off on an apprentice's competency.
type ValidateInput struct {
	CompetencyID    string
	ApprenticeEmail string
	Rating          *int
	Signature       string
	Comments        string
	MentorName      string
	// ManualDate overrides the validation date. YYYY-MM-DD or RFC 3339.
	ManualDate string
}

// UpdateInput edits an existing review. The signature is left as is.
type UpdateInput struct {
	CompetencyID    string
	ApprenticeEmail string
	Rating          *int
	Comments        string
	MentorName      string
	ManualDate      string
}

// MarkViewed records the first time the apprentice opened the competency and
// returns that time. Later calls return the original date.
func (s *Service) MarkViewed(ctx context.Context, email, competencyID string) (time.Time, error) {
	email = normalizeEmail(email)
	if err := s.requireCompetency(ctx, competencyID); err != nil {
		return time.Time{}, err
	}

	now := s.now()
	id := models.ProgressID(email, competencyID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (id, apprenticeEmail, competencyId, viewedDate, createdAt, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			updatedAt = CASE WHEN progress.viewedDate IS NULL THEN excluded.updatedAt ELSE progress.updatedAt END,
			viewedDate = COALESCE(progress.viewedDate, excluded.viewedDate)`,
		id, email, competencyID, now, now, now)
	if err != nil {
		return time.Time{}, apperr.Internal(err)
	}

	var viewed sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT viewedDate FROM progress WHERE id = ?", id).Scan(&viewed); err != nil {
		return time.Time{}, apperr.Internal(err)
	}
	return viewed.Time, nil
}

// SubmitSelfRating hands the competency off for review with the apprentice's
// own rating. It returns the handoff date.
func (s *Service) SubmitSelfRating(ctx context.Context, email, competencyID string, rating int) (time.Time, error) {
	if rating < MinSelfRating || rating > MaxSelfRating {
		return time.Time{}, apperr.Validation("InvalidSelfRating", MinSelfRating, MaxSelfRating)
	}
	email = normalizeEmail(email)
	if err := s.requireCompetency(ctx, competencyID); err != nil {
		return time.Time{}, err
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (id, apprenticeEmail, competencyId, selfRating, viewedDate, handoffDate, createdAt, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			selfRating = excluded.selfRating,
			handoffDate = excluded.handoffDate,
			viewedDate = COALESCE(progress.viewedDate, excluded.viewedDate),
			updatedAt = excluded.updatedAt`,
		models.ProgressID(email, competencyID), email, competencyID, rating, now, now, now, now)
	if err != nil {
		return time.Time{}, apperr.Internal(err)
	}
	return now, nil
}

// Validate records a mentor's rating and signature, creating the row if the
// apprentice never opened the competency.
func (s *Service) Validate(ctx context.Context, in ValidateInput) (*models.Progress, error) {
	email := normalizeEmail(in.ApprenticeEmail)
	if email == "" {
		return nil, apperr.Validation("ApprenticeEmailRequired")
	}
	if err := checkMentorRating(in.Rating); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(in.Signature, signaturePrefix) {
		return nil, apperr.Validation("SignatureRequired")
	}
	mentor := strings.TrimSpace(in.MentorName)
	if mentor == "" {
		return nil, apperr.Validation("MentorNameRequired")
	}
	manual, err := ParseValidationDate(in.ManualDate)
	if err != nil {
		return nil, err
	}
	if err := s.requireCompetency(ctx, in.CompetencyID); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, email); err != nil {
		return nil, err
	}

	now := s.now()
	validated := now
	if manual != nil {
		validated = *manual
	}

	id := models.ProgressID(email, in.CompetencyID)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (id, apprenticeEmail, competencyId, rating, dateValidated, mentorName, signature,
			comments, viewedDate, handoffDate, createdAt, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			rating = excluded.rating,
			dateValidated = excluded.dateValidated,
			mentorName = excluded.mentorName,
			signature = excluded.signature,
			comments = excluded.comments,
			viewedDate = COALESCE(progress.viewedDate, excluded.viewedDate),
			handoffDate = COALESCE(progress.handoffDate, excluded.handoffDate),
			updatedAt = excluded.updatedAt`,
		id, email, in.CompetencyID, *in.Rating, validated, mentor, in.Signature,
		in.Comments, validated, validated, now, now)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.log.Info("competency validated",
		zap.String("apprentice", email),
		zap.String("competency", in.CompetencyID),
		zap.String("mentor", mentor),
		zap.Int("rating", *in.Rating))

	return s.Get(ctx, id)
}

// UpdateValidation edits an existing review. The validation date is the
// manual date when given, else the stored one, else now.
func (s *Service) UpdateValidation(ctx context.Context, in UpdateInput) (*models.Progress, error) {
	email := normalizeEmail(in.ApprenticeEmail)
	if email == "" {
		return nil, apperr.Validation("ApprenticeEmailRequired")
	}
	if err := checkMentorRating(in.Rating); err != nil {
		return nil, err
	}
	mentor := strings.TrimSpace(in.MentorName)
	if mentor == "" {
		return nil, apperr.Validation("MentorNameRequired")
	}
	manual, err := ParseValidationDate(in.ManualDate)
	if err != nil {
		return nil, err
	}

	id := models.ProgressID(email, in.CompetencyID)
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	validated := now
	switch {
	case manual != nil:
		validated = *manual
	case existing.DateValidated != nil:
		validated = *existing.DateValidated
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE progress SET rating = ?, comments = ?, dateValidated = ?, mentorName = ?, updatedAt = ?
		 WHERE id = ?`,
		*in.Rating, in.Comments, validated, mentor, now, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.Get(ctx, id)
}

// Signature returns the stored signature image of a progress row. Only the
// apprentice it belongs to and administrators may read it.
func (s *Service) Signature(ctx context.Context, progressID, requester string, isAdmin bool) (string, error) {
	var owner, signature string
	err := s.db.QueryRowContext(ctx,
		"SELECT apprenticeEmail, signature FROM progress WHERE id = ?", progressID).Scan(&owner, &signature)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("ProgressNotFound")
	}
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !isAdmin && owner != normalizeEmail(requester) {
		return "", apperr.Forbidden("AccessDenied")
	}
	if signature == "" {
		return "", apperr.NotFound("SignatureNotFound")
	}
	return signature, nil
}

// Get loads one progress row.
func (s *Service) Get(ctx context.Context, id string) (*models.Progress, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+progressColumns+" FROM progress WHERE id = ?", id)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("ProgressNotFound")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return p, nil
}

// ListByApprentice returns every progress row of one apprentice.
func ListByApprentice(ctx context.Context, q db.DBTX, email string) ([]models.Progress, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+progressColumns+" FROM progress WHERE apprenticeEmail = ? ORDER BY competencyId",
		normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ParseValidationDate accepts an empty string, a calendar date or an
// RFC 3339 timestamp.
func ParseValidationDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, apperr.Validation("InvalidValidationDate")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(sc scanner) (*models.Progress, error) {
	var (
		p                          models.Progress
		selfRating, rating         sql.NullInt64
		viewed, handoff, validated sql.NullTime
		createdAt, updatedAt       sql.NullTime
	)
	err := sc.Scan(&p.ID, &p.ApprenticeEmail, &p.CompetencyID, &selfRating, &rating, &viewed, &handoff,
		&validated, &p.MentorName, &p.Signature, &p.Comments, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.SelfRating = db.IntPtr(selfRating)
	p.Rating = db.IntPtr(rating)
	p.ViewedDate = db.TimePtr(viewed)
	p.HandoffDate = db.TimePtr(handoff)
	p.DateValidated = db.TimePtr(validated)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

func checkMentorRating(rating *int) error {
	if rating == nil || *rating < MinMentorRating || *rating > MaxMentorRating {
		return apperr.Validation("InvalidRating", MinMentorRating, MaxMentorRating)
	}
	return nil
}

func (s *Service) requireCompetency(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM competencies WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("CompetencyNotFound")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Service) requireUser(ctx context.Context, email string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email = ?", email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("UserNotFound")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
