// Package catalog reads the competency catalog, groups it by category in
// display order and joins it with an apprentice's progress.
package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"sfaptracker/db"
	"sfaptracker/models"
	"sfaptracker/progress"
)

// CategoryOrder is the display order of the known categories. Categories
// not listed here follow in the order they first appear.
var CategoryOrder = []string{
	"General Competencies",
	"Demonstrate Safe Work Practices",
	"Quality Control",
	"Saw Guides",
	"Knives and Chippers",
	"Circular Saws",
	"Band Saws",
	"Mill Machine Set-Up",
}

// Groups holds items bucketed by category. It marshals to a JSON object
// whose keys follow the display order.
type Groups[T any] struct {
	seen  []string
	items map[string][]T
}

func NewGroups[T any]() *Groups[T] {
	return &Groups[T]{items: make(map[string][]T)}
}

func (g *Groups[T]) Add(category string, item T) {
	if _, ok := g.items[category]; !ok {
		g.seen = append(g.seen, category)
	}
	g.items[category] = append(g.items[category], item)
}

// Categories returns the non-empty categories in display order.
func (g *Groups[T]) Categories() []string {
	out := make([]string, 0, len(g.seen))
	for _, c := range CategoryOrder {
		if _, ok := g.items[c]; ok {
			out = append(out, c)
		}
	}
	for _, c := range g.seen {
		if !slices.Contains(CategoryOrder, c) {
			out = append(out, c)
		}
	}
	return out
}

func (g *Groups[T]) Get(category string) []T {
	return g.items[category]
}

// Len is the number of items across all categories.
func (g *Groups[T]) Len() int {
	n := 0
	for _, items := range g.items {
		n += len(items)
	}
	return n
}

func (g *Groups[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range g.Categories() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(g.items[c])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ListItem is the short form of a competency used for blank forms.
type ListItem struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	ReferenceCode string `json:"referenceCode"`
}

const competencyColumns = "id, category, text, referenceCode, what, looksLike, critical, createdAt"

// List returns the whole catalog ordered by category and id.
func List(ctx context.Context, q db.DBTX) ([]models.Competency, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+competencyColumns+" FROM competencies ORDER BY category, id")
	if err != nil {
		return nil, fmt.Errorf("list competencies: %w", err)
	}
	defer rows.Close()

	var out []models.Competency
	for rows.Next() {
		var c models.Competency
		var createdAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Category, &c.Text, &c.ReferenceCode, &c.What, &c.LooksLike, &c.Critical, &createdAt); err != nil {
			return nil, fmt.Errorf("scan competency: %w", err)
		}
		c.CreatedAt = createdAt.Time
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of competencies in the catalog.
func Count(ctx context.Context, q db.DBTX) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM competencies").Scan(&n); err != nil {
		return 0, fmt.Errorf("count competencies: %w", err)
	}
	return n, nil
}

// Aggregate joins the catalog with the progress of one apprentice. Every
// competency appears exactly once; those without a progress row are pending.
func Aggregate(ctx context.Context, q db.DBTX, email string) (*Groups[models.CompetencyView], error) {
	comps, err := List(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := progress.ListByApprentice(ctx, q, email)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	byCompetency := make(map[string]*models.Progress, len(rows))
	for i := range rows {
		byCompetency[rows[i].CompetencyID] = &rows[i]
	}

	groups := NewGroups[models.CompetencyView]()
	for _, c := range comps {
		p := byCompetency[c.ID]
		groups.Add(c.Category, models.CompetencyView{
			Competency: c,
			Status:     progress.DeriveStatus(p),
			Progress:   p.View(),
		})
	}
	return groups, nil
}

// Grouped returns the catalog alone, grouped by category.
func Grouped(ctx context.Context, q db.DBTX) (*Groups[ListItem], error) {
	comps, err := List(ctx, q)
	if err != nil {
		return nil, err
	}
	groups := NewGroups[ListItem]()
	for _, c := range comps {
		groups.Add(c.Category, ListItem{ID: c.ID, Text: c.Text, ReferenceCode: c.ReferenceCode})
	}
	return groups, nil
}
