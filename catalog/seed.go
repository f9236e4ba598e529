package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sfaptracker/apperr"
	"sfaptracker/db"
	"sfaptracker/models"
)

//go:embed competencies.yaml
var defaultCatalog []byte

type catalogFile struct {
	Competencies []models.Competency `yaml:"competencies"`
}

// Default returns the built-in competency catalog.
func Default() ([]models.Competency, error) {
	return ParseYAML(defaultCatalog)
}

// ParseYAML decodes a catalog document with a top-level competencies list.
func ParseYAML(data []byte) ([]models.Competency, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return f.Competencies, nil
}

// Store writes items into the catalog in one transaction, updating entries
// whose id already exists. With replace set the catalog is emptied first
// and progress on competencies that did not come back is deleted.
func Store(ctx context.Context, conn *sql.DB, items []models.Competency, replace bool) (int, error) {
	for i := range items {
		items[i].ID = strings.TrimSpace(items[i].ID)
		items[i].Category = strings.TrimSpace(items[i].Category)
		items[i].Text = strings.TrimSpace(items[i].Text)
		if items[i].ID == "" || items[i].Category == "" || items[i].Text == "" {
			return 0, apperr.Validation("InvalidCompetency", i+1)
		}
	}

	now := time.Now().UTC()
	err := db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		if replace {
			if _, err := tx.ExecContext(ctx, "DELETE FROM competencies"); err != nil {
				return err
			}
		}
		for _, c := range items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO competencies (id, category, text, referenceCode, what, looksLike, critical, createdAt)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET
					category = excluded.category,
					text = excluded.text,
					referenceCode = excluded.referenceCode,
					what = excluded.what,
					looksLike = excluded.looksLike,
					critical = excluded.critical`,
				c.ID, c.Category, c.Text, c.ReferenceCode, c.What, c.LooksLike, c.Critical, now)
			if err != nil {
				return fmt.Errorf("store competency %s: %w", c.ID, err)
			}
		}
		if replace {
			_, err := tx.ExecContext(ctx,
				"DELETE FROM progress WHERE competencyId NOT IN (SELECT id FROM competencies)")
			if err != nil {
				return fmt.Errorf("drop orphaned progress: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Seed stores the built-in catalog.
func Seed(ctx context.Context, conn *sql.DB, replace bool) (int, error) {
	items, err := Default()
	if err != nil {
		return 0, err
	}
	return Store(ctx, conn, items, replace)
}

// EnsureSeeded seeds the built-in catalog when the table is empty and
// reports whether it did.
func EnsureSeeded(ctx context.Context, conn *sql.DB) (bool, error) {
	n, err := Count(ctx, conn)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := Seed(ctx, conn, false); err != nil {
		return false, err
	}
	return true, nil
}
