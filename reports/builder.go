package reports

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"sfaptracker/apperr"
	"sfaptracker/db"
)

const dateLayout = "2006-01-02"

// Table is a rendered report: a header and rows of the same width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Builder runs the report queries.
type Builder struct {
	q db.DBTX
}

func NewBuilder(q db.DBTX) *Builder {
	return &Builder{q: q}
}

var (
	detailedHeader = []string{"First Name", "Last Name", "Email", "Company", "Cohort", "Category", "Competency",
		"Reference Code", "What This Means", "What It Looks Like", "Why Critical", "Rating", "Date Validated",
		"Mentor", "Comments", "Self Rating"}
	summaryHeader = []string{"First Name", "Last Name", "Email", "Company", "Cohort", "Completion Summary",
		"Total Competencies", "Completed", "In Progress", "Not Started", "Progress %"}
	competenciesHeader = []string{"First Name", "Last Name", "Email", "Company", "Cohort", "Category",
		"Competency", "Reference Code", "Status"}
)

// Custom renders the report selected by req.
func (b *Builder) Custom(ctx context.Context, req Request) (*Table, error) {
	where, args := req.where()

	var (
		t   *Table
		err error
	)
	switch req.Format {
	case FormatDetailed:
		t, err = b.detailed(ctx, where, args)
	case FormatSummary:
		t, err = b.summary(ctx, where, args)
	case FormatCompetencies:
		t, err = b.competencies(ctx, where, args)
	default:
		return nil, apperr.BadRequest("InvalidReportFormat")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("%s %s report: %w", req.Type, req.Format, err))
	}
	return t, nil
}

func (b *Builder) detailed(ctx context.Context, where string, args []any) (*Table, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT u.firstName, u.lastName, u.email, u.company, u.cohort,
		       c.category, c.text, c.referenceCode, c.what, c.looksLike, c.critical,
		       p.rating, p.dateValidated, p.mentorName, p.comments, p.selfRating
		FROM users u
		CROSS JOIN competencies c
		LEFT JOIN progress p ON u.email = p.apprenticeEmail AND c.id = p.competencyId
		`+where+`
		ORDER BY u.lastName, u.firstName, c.category, c.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{Header: detailedHeader}
	for rows.Next() {
		var (
			first, last, email, company, cohort    string
			category, text, ref, what, looks, crit string
			rating, selfRating                     sql.NullInt64
			validated                              sql.NullTime
			mentor, comments                       sql.NullString
		)
		if err := rows.Scan(&first, &last, &email, &company, &cohort, &category, &text, &ref, &what, &looks, &crit,
			&rating, &validated, &mentor, &comments, &selfRating); err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, []string{first, last, email, company, cohort, category, text, ref, what, looks, crit,
			formatInt(rating), formatDate(validated), mentor.String, comments.String, formatInt(selfRating)})
	}
	return t, rows.Err()
}

func (b *Builder) summary(ctx context.Context, where string, args []any) (*Table, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT u.firstName, u.lastName, u.email, u.company, u.cohort,
		       COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) AS completed,
		       COUNT(CASE WHEN p.rating IS NULL AND p.selfRating IS NOT NULL THEN 1 END) AS inProgress,
		       (SELECT COUNT(*) FROM competencies) AS total,
		       ROUND(COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) * 100.0 /
		             (SELECT COUNT(*) FROM competencies), 2) AS percentage
		FROM users u
		LEFT JOIN progress p ON u.email = p.apprenticeEmail
		`+where+`
		GROUP BY u.email
		ORDER BY u.lastName, u.firstName`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{Header: summaryHeader}
	for rows.Next() {
		var (
			first, last, email, company, cohort string
			completed, inProgress, total        int
			percentage                          sql.NullFloat64
		)
		if err := rows.Scan(&first, &last, &email, &company, &cohort, &completed, &inProgress, &total, &percentage); err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, []string{first, last, email, company, cohort,
			fmt.Sprintf("%d out of %d competencies completed", completed, total),
			strconv.Itoa(total),
			strconv.Itoa(completed),
			strconv.Itoa(inProgress),
			strconv.Itoa(total - completed - inProgress),
			formatPercent(percentage.Float64)})
	}
	return t, rows.Err()
}

func (b *Builder) competencies(ctx context.Context, where string, args []any) (*Table, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT u.firstName, u.lastName, u.email, u.company, u.cohort,
		       c.category, c.text, c.referenceCode,
		       CASE WHEN p.rating IS NOT NULL THEN 'Completed'
		            WHEN p.selfRating IS NOT NULL THEN 'In Progress'
		            ELSE 'Not Started' END AS status
		FROM users u
		CROSS JOIN competencies c
		LEFT JOIN progress p ON u.email = p.apprenticeEmail AND c.id = p.competencyId
		`+where+`
		ORDER BY u.lastName, u.firstName, c.category, c.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{Header: competenciesHeader}
	for rows.Next() {
		row := make([]string, len(competenciesHeader))
		dest := make([]any, len(row))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

// Users is the user export with per-user progress counts.
func (b *Builder) Users(ctx context.Context) (*Table, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT u.firstName, u.lastName, u.email, u.company, u.cohort, u.role, u.createdAt,
		       COUNT(p.id) AS totalProgress,
		       COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) AS completed
		FROM users u
		LEFT JOIN progress p ON u.email = p.apprenticeEmail
		GROUP BY u.email
		ORDER BY u.lastName, u.firstName`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	t := &Table{Header: []string{"First Name", "Last Name", "Email", "Company", "Cohort", "Role", "Created At",
		"Total Progress", "Completed"}}
	for rows.Next() {
		var (
			first, last, email, company, cohort, role string
			createdAt                                 sql.NullTime
			total, completed                          int
		)
		if err := rows.Scan(&first, &last, &email, &company, &cohort, &role, &createdAt, &total, &completed); err != nil {
			return nil, apperr.Internal(err)
		}
		t.Rows = append(t.Rows, []string{first, last, email, company, cohort, role, formatDate(createdAt),
			strconv.Itoa(total), strconv.Itoa(completed)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// Progress is the full users × competencies progress export.
func (b *Builder) Progress(ctx context.Context) (*Table, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT u.firstName, u.lastName, u.email, u.company, c.category, c.text, c.referenceCode,
		       p.rating, p.dateValidated, p.mentorName, p.comments, p.selfRating
		FROM users u
		CROSS JOIN competencies c
		LEFT JOIN progress p ON u.email = p.apprenticeEmail AND c.id = p.competencyId
		ORDER BY u.lastName, u.firstName, c.category, c.id`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	t := &Table{Header: []string{"First Name", "Last Name", "Email", "Company", "Category", "Competency",
		"Reference Code", "Rating", "Date Validated", "Mentor", "Comments", "Self Rating"}}
	for rows.Next() {
		var (
			first, last, email, company, category, text, ref string
			rating, selfRating                               sql.NullInt64
			validated                                        sql.NullTime
			mentor, comments                                 sql.NullString
		)
		if err := rows.Scan(&first, &last, &email, &company, &category, &text, &ref,
			&rating, &validated, &mentor, &comments, &selfRating); err != nil {
			return nil, apperr.Internal(err)
		}
		t.Rows = append(t.Rows, []string{first, last, email, company, category, text, ref,
			formatInt(rating), formatDate(validated), mentor.String, comments.String, formatInt(selfRating)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// ByCompany is the per-user completion export ordered by company.
func (b *Builder) ByCompany(ctx context.Context) (*Table, error) {
	rows, err := b.q.QueryContext(ctx, `
		SELECT u.company, u.firstName, u.lastName, u.email, u.cohort,
		       COUNT(p.id) AS totalProgress,
		       COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) AS completed,
		       ROUND(COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) * 100.0 /
		             (SELECT COUNT(*) FROM competencies), 2) AS percentage
		FROM users u
		LEFT JOIN progress p ON u.email = p.apprenticeEmail
		GROUP BY u.email
		ORDER BY u.company, u.lastName, u.firstName`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	t := &Table{Header: []string{"Company", "First Name", "Last Name", "Email", "Cohort", "Total Progress",
		"Completed", "Progress %"}}
	for rows.Next() {
		var (
			company, first, last, email, cohort string
			total, completed                    int
			percentage                          sql.NullFloat64
		)
		if err := rows.Scan(&company, &first, &last, &email, &cohort, &total, &completed, &percentage); err != nil {
			return nil, apperr.Internal(err)
		}
		if company == "" {
			company = "N/A"
		}
		t.Rows = append(t.Rows, []string{company, first, last, email, cohort,
			strconv.Itoa(total), strconv.Itoa(completed), formatPercent(percentage.Float64)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return t, nil
}

func formatInt(n sql.NullInt64) string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatInt(n.Int64, 10)
}

func formatDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.UTC().Format(dateLayout)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
