// Package reports builds the administrator reports: the custom report by
// type and format, the fixed CSV exports and the progress overview.
package reports

import (
	"fmt"
	"strings"

	"sfaptracker/apperr"
)

type Type string

const (
	TypeIndividual Type = "individual"
	TypeCohort     Type = "cohort"
	TypeCompany    Type = "company"
	TypeAll        Type = "all"
)

type Format string

const (
	FormatDetailed     Format = "detailed"
	FormatSummary      Format = "summary"
	FormatCompetencies Format = "competencies"
)

// filters holds the only SQL that varies with the report type. The filter
// value is always bound as a parameter.
var filters = map[Type]struct {
	where      string
	missingKey string
}{
	TypeIndividual: {"WHERE u.email = ?", "ReportEmailRequired"},
	TypeCohort:     {"WHERE u.cohort = ?", "ReportCohortRequired"},
	TypeCompany:    {"WHERE u.company = ?", "ReportCompanyRequired"},
	TypeAll:        {"", ""},
}

var formats = map[Format]bool{
	FormatDetailed:     true,
	FormatSummary:      true,
	FormatCompetencies: true,
}

// Request is a validated custom report request.
type Request struct {
	Type   Type
	Value  string
	Format Format
}

// ParseRequest checks type and format against their fixed sets before
// anything else, then requires a filter value for every type except all.
func ParseRequest(typ, value, format string) (Request, error) {
	typ = strings.TrimSpace(typ)
	format = strings.TrimSpace(format)
	value = strings.TrimSpace(value)

	if typ == "" || format == "" {
		return Request{}, apperr.BadRequest("ReportTypeAndFormatRequired")
	}
	f, ok := filters[Type(typ)]
	if !ok {
		return Request{}, apperr.BadRequest("InvalidReportType")
	}
	if !formats[Format(format)] {
		return Request{}, apperr.BadRequest("InvalidReportFormat")
	}

	req := Request{Type: Type(typ), Format: Format(format)}
	if req.Type == TypeAll {
		return req, nil
	}
	if value == "" {
		return Request{}, apperr.BadRequest(f.missingKey)
	}
	if req.Type == TypeIndividual {
		value = strings.ToLower(value)
	}
	req.Value = value
	return req, nil
}

func (r Request) where() (string, []any) {
	f := filters[r.Type]
	if f.where == "" {
		return "", nil
	}
	return f.where, []any{r.Value}
}

// Filename is the attachment name of the rendered report.
func (r Request) Filename() string {
	value := r.Value
	if value == "" {
		value = "all"
	}
	return fmt.Sprintf("%s-%s-%s-report.csv", r.Type, value, r.Format)
}
