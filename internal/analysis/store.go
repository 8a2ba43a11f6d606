package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Store reads and seeds mapping rules in the tag_analysis table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ Source = (*Store)(nil)

// List returns all rules ordered by insertion.
func (s *Store) List(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag, description, analyses FROM tag_analysis ORDER BY id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("query tag_analysis: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			rule     Rule
			analyses string
		)
		if err := rows.Scan(&rule.Tag, &rule.Description, &analyses); err != nil {
			return nil, fmt.Errorf("scan tag_analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(analyses), &rule.Analyses); err != nil {
			return nil, fmt.Errorf("decode analyses for tag %q: %w", rule.Tag, err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag_analysis: %w", err)
	}
	return out, nil
}

// Seed upserts rules keyed by the normalized (tag, description), the same form
// the resolver matches on, so "T1" and " t1 " update one row. The latest
// spelling is kept for display. Existing rules not in the input are left alone.
func (s *Store) Seed(ctx context.Context, rules []Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule[%d]: %w", i, err)
		}
		analyses, err := json.Marshal(rule.Analyses)
		if err != nil {
			return fmt.Errorf("rule[%d]: marshal analyses: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO tag_analysis(tag, tag_key, description, description_key, analyses, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(tag_key, description_key) DO UPDATE SET
  tag = excluded.tag,
  description = excluded.description,
  analyses = excluded.analyses,
  updated_at = excluded.updated_at;
`, strings.TrimSpace(rule.Tag), normalize(rule.Tag),
			strings.TrimSpace(rule.Description), normalize(rule.Description),
			string(analyses), now)
		if err != nil {
			return fmt.Errorf("rule[%d]: upsert: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
