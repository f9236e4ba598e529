package reports

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfaptracker/apperr"
	"sfaptracker/db"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.InitDB(context.Background(), filepath.Join(t.TempDir(), "tracker.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	exec := func(query string, args ...any) {
		t.Helper()
		_, err := conn.Exec(query, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO competencies (id, category, text, referenceCode) VALUES
		('QC01', 'Quality Control', 'Measure "true" lumber', 'Q-1'),
		('G02', 'General Competencies', 'Attention to detail', ''),
		('G01', 'General Competencies', 'Team member', 'G-1')`)
	exec(`INSERT INTO users (email, firstName, lastName, company, cohort, password) VALUES
		('c@x.com', 'Cara', 'Cole', 'Acme', '2024', 'x'),
		('a@x.com', 'Ann', 'Able', 'Acme', '2024', 'x'),
		('b@x.com', 'Bob', 'Baker', 'Beta', '2023', 'x'),
		('d@x.com', 'Dee', 'Dunn', '', '2023', 'x')`)

	validated := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)
	exec(`INSERT INTO progress (id, apprenticeEmail, competencyId, rating, dateValidated, mentorName, comments)
		VALUES ('a@x.com_G01', 'a@x.com', 'G01', 4, ?, 'Bob', 'Good, "steady" work')`, validated)
	exec(`INSERT INTO progress (id, apprenticeEmail, competencyId, selfRating, handoffDate)
		VALUES ('a@x.com_G02', 'a@x.com', 'G02', 2, ?)`, validated)
	exec(`INSERT INTO progress (id, apprenticeEmail, competencyId, rating, dateValidated, mentorName)
		VALUES ('c@x.com_G01', 'c@x.com', 'G01', 0, ?, 'Eve')`, validated)
	return conn
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name, typ, value, format string
		wantErr                  string
		want                     Request
	}{
		{name: "individual without value", typ: "individual", format: "detailed", wantErr: "ReportEmailRequired"},
		{name: "cohort without value", typ: "cohort", value: "  ", format: "summary", wantErr: "ReportCohortRequired"},
		{name: "company without value", typ: "company", format: "competencies", wantErr: "ReportCompanyRequired"},
		{name: "missing type", format: "summary", wantErr: "ReportTypeAndFormatRequired"},
		{name: "unknown type", typ: "team", value: "x", format: "summary", wantErr: "InvalidReportType"},
		{name: "unknown format", typ: "all", format: "pdf", wantErr: "InvalidReportFormat"},
		{name: "format checked before value", typ: "individual", format: "pdf", wantErr: "InvalidReportFormat"},
		{name: "all ignores value", typ: "all", value: "ignored", format: "summary", want: Request{Type: TypeAll, Format: FormatSummary}},
		{name: "individual lower-cases email", typ: "individual", value: "A@X.com", format: "detailed", want: Request{Type: TypeIndividual, Value: "a@x.com", Format: FormatDetailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.typ, tt.value, tt.format)
			if tt.wantErr != "" {
				var e *apperr.Error
				require.True(t, errors.As(err, &e), "expected *apperr.Error, got %v", err)
				assert.Equal(t, apperr.KindBadRequest, e.Kind)
				assert.Equal(t, tt.wantErr, e.Key)
				assert.Equal(t, 400, e.Status())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "all-all-summary-report.csv", Request{Type: TypeAll, Format: FormatSummary}.Filename())
	assert.Equal(t, "cohort-2024-detailed-report.csv", Request{Type: TypeCohort, Value: "2024", Format: FormatDetailed}.Filename())
}

func TestSummaryAll(t *testing.T) {
	b := NewBuilder(newTestDB(t))
	req, err := ParseRequest("all", "", "summary")
	require.NoError(t, err)

	table, err := b.Custom(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, summaryHeader, table.Header)
	want := [][]string{
		{"Ann", "Able", "a@x.com", "Acme", "2024", "1 out of 3 competencies completed", "3", "1", "1", "1", "33.33"},
		{"Bob", "Baker", "b@x.com", "Beta", "2023", "0 out of 3 competencies completed", "3", "0", "0", "3", "0"},
		{"Cara", "Cole", "c@x.com", "Acme", "2024", "1 out of 3 competencies completed", "3", "1", "0", "2", "33.33"},
		{"Dee", "Dunn", "d@x.com", "", "2023", "0 out of 3 competencies completed", "3", "0", "0", "3", "0"},
	}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	// One row per user, Progress % = completed*100/total rounded to 2 decimals.
	for _, row := range table.Rows {
		total, _ := strconv.Atoi(row[6])
		completed, _ := strconv.Atoi(row[7])
		pct := math.Round(float64(completed)*100/float64(total)*100) / 100
		assert.Equal(t, strconv.FormatFloat(pct, 'f', -1, 64), row[10])
	}
}

func TestDetailedIndividual(t *testing.T) {
	b := NewBuilder(newTestDB(t))
	req, err := ParseRequest("individual", "a@x.com", "detailed")
	require.NoError(t, err)

	table, err := b.Custom(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	var ids []string
	for _, row := range table.Rows {
		ids = append(ids, row[6])
		assert.Len(t, row, len(detailedHeader))
	}
	assert.Equal(t, []string{"Team member", "Attention to detail", `Measure "true" lumber`}, ids)

	g01 := table.Rows[0]
	assert.Equal(t, "4", g01[11])
	assert.Equal(t, "2024-05-02", g01[12])
	assert.Equal(t, "Bob", g01[13])
	assert.Equal(t, `Good, "steady" work`, g01[14])
	assert.Equal(t, "", g01[15])

	g02 := table.Rows[1]
	assert.Equal(t, "", g02[11])
	assert.Equal(t, "2", g02[15])
}

func TestCompetenciesByCompany(t *testing.T) {
	b := NewBuilder(newTestDB(t))
	req, err := ParseRequest("company", "Acme", "competencies")
	require.NoError(t, err)

	table, err := b.Custom(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, table.Rows, 6)

	var statuses []string
	for _, row := range table.Rows {
		statuses = append(statuses, row[2]+" "+row[5]+" "+row[8])
	}
	want := []string{
		"a@x.com General Competencies Completed",
		"a@x.com General Competencies In Progress",
		"a@x.com Quality Control Not Started",
		"c@x.com General Competencies Completed",
		"c@x.com General Competencies Not Started",
		"c@x.com Quality Control Not Started",
	}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterValueIsBound(t *testing.T) {
	b := NewBuilder(newTestDB(t))
	req, err := ParseRequest("cohort", "2024' OR '1'='1", "summary")
	require.NoError(t, err)

	table, err := b.Custom(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, &Table{
		Header: []string{"Name", "Note"},
		Rows: [][]string{
			{"Ann", `said "hi"`},
			{"Bob, Jr.", ""},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "\"Name\",\"Note\"\n\"Ann\",\"said \"\"hi\"\"\"\n\"Bob, Jr.\",\"\"", buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, &Table{Header: []string{"Only"}}))
	assert.Equal(t, `"Only"`, buf.String())
}

func TestFixedExports(t *testing.T) {
	b := NewBuilder(newTestDB(t))
	ctx := context.Background()

	users, err := b.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users.Rows, 4)
	assert.Equal(t, []string{"Ann", "Able", "a@x.com", "Acme", "2024", "Apprentice"}, users.Rows[0][:6])
	assert.Len(t, users.Rows[0][6], len("2006-01-02"))
	assert.Equal(t, []string{"2", "1"}, users.Rows[0][7:])

	prog, err := b.Progress(ctx)
	require.NoError(t, err)
	assert.Len(t, prog.Rows, 12)
	assert.Equal(t, "0", prog.Rows[6][7], "a zero rating is still a rating")

	byCompany, err := b.ByCompany(ctx)
	require.NoError(t, err)
	require.Len(t, byCompany.Rows, 4)
	assert.Equal(t, "N/A", byCompany.Rows[0][0])
	assert.Equal(t, []string{"Acme", "Ann", "Able", "a@x.com", "2024", "2", "1", "33.33"}, byCompany.Rows[1])
}

func TestOverview(t *testing.T) {
	b := NewBuilder(newTestDB(t))

	o, err := b.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, o.TotalUsers)
	assert.Equal(t, 3, o.TotalCompetencies)
	assert.Equal(t, 2, o.CompletedCompetencies)
	assert.Equal(t, 1, o.InProgressCompetencies)
	assert.Equal(t, 9, o.NotStartedCompetencies)
	require.Len(t, o.UserProgress, 4)
	assert.Equal(t, "a@x.com", o.UserProgress[0].Email)
	assert.Equal(t, 33.33, o.UserProgress[0].ProgressPercentage)
	assert.Equal(t, 1, o.UserProgress[0].NotStarted)
}

func TestQueryFailureIsInternal(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("FROM users u").WithArgs("2024").WillReturnError(errors.New("database is locked"))

	_, err = NewBuilder(conn).Custom(context.Background(), Request{Type: TypeCohort, Value: "2024", Format: FormatSummary})
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.NoError(t, mock.ExpectationsWereMet())
}
