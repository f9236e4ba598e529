package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"sfaptracker/models"
)

// DefaultSheet is read from workbooks that contain it; otherwise the first
// sheet is used.
const DefaultSheet = "Competencies"

// Spreadsheet rows are positional: id, category, text, reference code,
// what it means, what it looks like, why it is critical. The first row is a
// header. Rows without an id or text are skipped and a missing category
// falls back to "General".
func parseRows(rows [][]string) []models.Competency {
	cell := func(row []string, i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var out []models.Competency
	for i, row := range rows {
		if i == 0 {
			continue
		}
		c := models.Competency{
			ID:            cell(row, 0),
			Category:      cell(row, 1),
			Text:          cell(row, 2),
			ReferenceCode: cell(row, 3),
			What:          cell(row, 4),
			LooksLike:     cell(row, 5),
			Critical:      cell(row, 6),
		}
		if c.ID == "" || c.Text == "" {
			continue
		}
		if c.Category == "" {
			c.Category = "General"
		}
		out = append(out, c)
	}
	return out
}

// ReadXLSX reads competencies from a workbook. An empty sheet name selects
// DefaultSheet or the first sheet.
func ReadXLSX(r io.Reader, sheet string) ([]models.Competency, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	switch {
	case sheet == "" && slices.Contains(sheets, DefaultSheet):
		sheet = DefaultSheet
	case sheet == "":
		sheet = sheets[0]
	case !slices.Contains(sheets, sheet):
		return nil, fmt.Errorf("sheet %q not found, available: %s", sheet, strings.Join(sheets, ", "))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return parseRows(rows), nil
}

// ReadCSV reads competencies from comma-separated text with the same column
// layout as ReadXLSX.
func ReadCSV(r io.Reader) ([]models.Competency, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return parseRows(rows), nil
}

// ReadFile picks the reader from the file extension.
func ReadFile(path, sheet string) ([]models.Competency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, sheet)
	case ".csv":
		return ReadCSV(f)
	case ".yaml", ".yml":
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported catalog file %s: expected .xlsx, .csv or .yaml", filepath.Base(path))
	}
}
