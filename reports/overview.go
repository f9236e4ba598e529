package reports

import (
	"context"
	"database/sql"

	"sfaptracker/apperr"
)

// Overview is the administrator dashboard summary.
type Overview struct {
	TotalUsers             int            `json:"totalUsers"`
	TotalCompetencies      int            `json:"totalCompetencies"`
	CompletedCompetencies  int            `json:"completedCompetencies"`
	InProgressCompetencies int            `json:"inProgressCompetencies"`
	NotStartedCompetencies int            `json:"notStartedCompetencies"`
	UserProgress           []UserProgress `json:"userProgress"`
}

type UserProgress struct {
	Email              string  `json:"email"`
	FirstName          string  `json:"firstName"`
	LastName           string  `json:"lastName"`
	Company            string  `json:"company"`
	TotalProgress      int     `json:"totalProgress"`
	Completed          int     `json:"completed"`
	InProgress         int     `json:"inProgress"`
	NotStarted         int     `json:"notStarted"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// Overview counts completed, in-progress and untouched competencies per
// user and across all users. Completed means a mentor rating exists.
func (b *Builder) Overview(ctx context.Context) (*Overview, error) {
	o := &Overview{UserProgress: []UserProgress{}}

	if err := b.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&o.TotalUsers); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := b.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM competencies").Scan(&o.TotalCompetencies); err != nil {
		return nil, apperr.Internal(err)
	}

	rows, err := b.q.QueryContext(ctx, `
		SELECT u.email, u.firstName, u.lastName, u.company,
		       COUNT(p.id) AS totalProgress,
		       COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) AS completed,
		       COUNT(CASE WHEN p.rating IS NULL AND p.selfRating IS NOT NULL THEN 1 END) AS inProgress,
		       ROUND(COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) * 100.0 /
		             (SELECT COUNT(*) FROM competencies), 2) AS percentage
		FROM users u
		LEFT JOIN progress p ON u.email = p.apprenticeEmail
		GROUP BY u.email
		ORDER BY percentage DESC, u.lastName`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			up         UserProgress
			percentage sql.NullFloat64
		)
		if err := rows.Scan(&up.Email, &up.FirstName, &up.LastName, &up.Company,
			&up.TotalProgress, &up.Completed, &up.InProgress, &percentage); err != nil {
			return nil, apperr.Internal(err)
		}
		up.NotStarted = o.TotalCompetencies - up.TotalProgress
		up.ProgressPercentage = percentage.Float64

		o.CompletedCompetencies += up.Completed
		o.InProgressCompetencies += up.InProgress
		o.NotStartedCompetencies += up.NotStarted
		o.UserProgress = append(o.UserProgress, up)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return o, nil
}
