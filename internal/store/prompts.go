package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const promptSelectColumns = `id, category, task, scenario, requirements, weight, active, created_at, expires_at, total_submissions`

func scanPrompt(row pgx.Row) (Prompt, error) {
	var p Prompt
	err := row.Scan(&p.ID, &p.Category, &p.Task, &p.Scenario, &p.Requirements, &p.Weight, &p.Active, &p.CreatedAt, &p.ExpiresAt, &p.TotalSubmissions)
	return p, err
}

type CreatePromptParams struct {
	Category     string
	Task         string
	Scenario     string
	Requirements PromptRequirements
	Weight       float64
	ExpiresAt    *time.Time
}

// CreatePrompt inserts a new active prompt. Category, task and
// scenario are immutable after creation; only active can be toggled.
func (s *Store) CreatePrompt(ctx context.Context, p CreatePromptParams) (Prompt, error) {
	if p.Weight <= 0 {
		p.Weight = 1.0
	}
	return scanPrompt(s.Pool.QueryRow(ctx, `
		INSERT INTO prompts (id, category, task, scenario, requirements, weight, active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, now(), $7)
		RETURNING `+promptSelectColumns,
		NewID(), p.Category, p.Task, p.Scenario, p.Requirements, p.Weight, p.ExpiresAt))
}

// GetPrompt fetches a prompt by id.
func (s *Store) GetPrompt(ctx context.Context, id string) (Prompt, error) {
	p, err := scanPrompt(s.Pool.QueryRow(ctx, `
		SELECT `+promptSelectColumns+` FROM prompts WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Prompt{}, ErrNotFound
	}
	return p, err
}

// SetPromptActive toggles a prompt's active flag.
func (s *Store) SetPromptActive(ctx context.Context, id string, active bool) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE prompts SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActivePrompts lists active, unexpired prompts, optionally
// filtered by category.
func (s *Store) ListActivePrompts(ctx context.Context, category string) ([]Prompt, error) {
	var rows pgx.Rows
	var err error
	if category == "" {
		rows, err = s.Pool.Query(ctx, `
			SELECT `+promptSelectColumns+` FROM prompts
			WHERE active AND (expires_at IS NULL OR expires_at > now())
			ORDER BY created_at DESC
		`)
	} else {
		rows, err = s.Pool.Query(ctx, `
			SELECT `+promptSelectColumns+` FROM prompts
			WHERE active AND (expires_at IS NULL OR expires_at > now()) AND category = $1
			ORDER BY created_at DESC
		`, category)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PromptCategories reports distinct categories and how many active
// prompts exist in each.
func (s *Store) PromptCategories(ctx context.Context) ([]PromptCategoryCount, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT category, count(*) FROM prompts
		WHERE active GROUP BY category ORDER BY category ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PromptCategoryCount{}
	for rows.Next() {
		var c PromptCategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
