package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const cycleSelectColumns = `id, status, started_at, evaluating_at, completed_at, block_number`

func scanCycle(row pgx.Row) (Cycle, error) {
	var cycle Cycle
	err := row.Scan(&cycle.ID, &cycle.Status, &cycle.StartedAt, &cycle.EvaluatingAt, &cycle.CompletedAt, &cycle.BlockNumber)
	return cycle, err
}

// OpenCycle creates a new ACTIVE cycle. Fails with ErrAlreadyActive if
// one is already open: at most one cycle collects submissions at a
// time.
func (s *Store) OpenCycle(ctx context.Context) (Cycle, error) {
	var cycle Cycle
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var existing int64
		err := tx.QueryRow(ctx, `SELECT id FROM cycles WHERE status = $1 FOR UPDATE`, CycleActive).Scan(&existing)
		if err == nil {
			return ErrAlreadyActive
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		cycle, err = scanCycle(tx.QueryRow(ctx, `
			INSERT INTO cycles (status, started_at)
			VALUES ($1, now())
			RETURNING `+cycleSelectColumns, CycleActive))
		return err
	})
	return cycle, err
}

// GetOpenCycle returns the current ACTIVE cycle, or ErrNoOpenCycle.
func (s *Store) GetOpenCycle(ctx context.Context) (Cycle, error) {
	cycle, err := scanCycle(s.Pool.QueryRow(ctx, `
		SELECT `+cycleSelectColumns+` FROM cycles WHERE status = $1
	`, CycleActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return Cycle{}, ErrNoOpenCycle
	}
	return cycle, err
}

// GetEvaluatingCycle returns the cycle currently in EVALUATING, or
// ErrNotFound.
func (s *Store) GetEvaluatingCycle(ctx context.Context) (Cycle, error) {
	cycle, err := scanCycle(s.Pool.QueryRow(ctx, `
		SELECT `+cycleSelectColumns+` FROM cycles WHERE status = $1
	`, CycleEvaluating))
	if errors.Is(err, pgx.ErrNoRows) {
		return Cycle{}, ErrNotFound
	}
	return cycle, err
}

// GetCycle returns a cycle by id regardless of state.
func (s *Store) GetCycle(ctx context.Context, cycleID int64) (Cycle, error) {
	cycle, err := scanCycle(s.Pool.QueryRow(ctx, `
		SELECT `+cycleSelectColumns+` FROM cycles WHERE id = $1
	`, cycleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Cycle{}, ErrNotFound
	}
	return cycle, err
}

// GetCycleSummary returns the active, evaluating and last completed
// cycles plus the total count, in one round trip group.
func (s *Store) GetCycleSummary(ctx context.Context) (CycleSummary, error) {
	var summary CycleSummary

	active, err := s.GetOpenCycle(ctx)
	switch {
	case err == nil:
		summary.Active = &active
	case !errors.Is(err, ErrNoOpenCycle):
		return CycleSummary{}, err
	}

	evaluating, err := s.GetEvaluatingCycle(ctx)
	switch {
	case err == nil:
		summary.Evaluating = &evaluating
	case !errors.Is(err, ErrNotFound):
		return CycleSummary{}, err
	}

	last, err := scanCycle(s.Pool.QueryRow(ctx, `
		SELECT `+cycleSelectColumns+` FROM cycles
		WHERE status = $1 ORDER BY completed_at DESC LIMIT 1
	`, CycleCompleted))
	switch {
	case err == nil:
		summary.LastCompleted = &last
	case !errors.Is(err, pgx.ErrNoRows):
		return CycleSummary{}, err
	}

	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM cycles`).Scan(&summary.Total); err != nil {
		return CycleSummary{}, err
	}
	return summary, nil
}

// CloseCycleToEvaluating transitions an ACTIVE cycle to EVALUATING.
// Only an ACTIVE cycle may close; anything else is ErrWrongState.
func (s *Store) CloseCycleToEvaluating(ctx context.Context, cycleID int64) (Cycle, error) {
	var cycle Cycle
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var status CycleStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM cycles WHERE id = $1 FOR UPDATE`, cycleID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status != CycleActive {
			return ErrWrongState
		}
		var err error
		cycle, err = scanCycle(tx.QueryRow(ctx, `
			UPDATE cycles SET status = $1, evaluating_at = now()
			WHERE id = $2
			RETURNING `+cycleSelectColumns, CycleEvaluating, cycleID))
		return err
	})
	return cycle, err
}

// CompleteCycle transitions an EVALUATING cycle to COMPLETED. Every
// submission in the cycle must already be terminal (SCORED or
// REJECTED); the count is re-checked under lock here even when the
// caller verified it via CountNonterminalInCycle first.
func (s *Store) CompleteCycle(ctx context.Context, cycleID int64) (Cycle, error) {
	var cycle Cycle
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var status CycleStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM cycles WHERE id = $1 FOR UPDATE`, cycleID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status != CycleEvaluating {
			return ErrWrongState
		}
		var nonterminal int64
		err := tx.QueryRow(ctx, `
			SELECT count(*) FROM submissions
			WHERE cycle_id = $1 AND status IN ($2, $3)
		`, cycleID, SubmissionPending, SubmissionEvaluating).Scan(&nonterminal)
		if err != nil {
			return err
		}
		if nonterminal > 0 {
			return ErrHasPending
		}
		cycle, err = scanCycle(tx.QueryRow(ctx, `
			UPDATE cycles SET status = $1, completed_at = now()
			WHERE id = $2
			RETURNING `+cycleSelectColumns, CycleCompleted, cycleID))
		return err
	})
	return cycle, err
}

// SetCycleBlockNumber records the chain block at which a completed
// cycle's weights were signed, written back by the external validator.
func (s *Store) SetCycleBlockNumber(ctx context.Context, cycleID, blockNumber int64) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE cycles SET block_number = $1 WHERE id = $2 AND status = $3
	`, blockNumber, cycleID, CycleCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongState
	}
	return nil
}

// CountNonterminalInCycle reports how many submissions in a cycle are
// still PENDING or EVALUATING.
func (s *Store) CountNonterminalInCycle(ctx context.Context, cycleID int64) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM submissions
		WHERE cycle_id = $1 AND status IN ($2, $3)
	`, cycleID, SubmissionPending, SubmissionEvaluating).Scan(&n)
	return n, err
}
