package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyActive = errors.New("cycle already active")
	ErrWrongState    = errors.New("wrong state for transition")
	ErrHasPending    = errors.New("cycle has nonterminal submissions")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrLeaseLost     = errors.New("lease owner mismatch or expired")
	ErrUnknownPrompt = errors.New("unknown prompt")
	ErrNoOpenCycle   = errors.New("no open cycle")
	ErrDuplicate     = errors.New("duplicate submission")
)

// Store wraps Postgres access for the whole pipeline. All cross-row
// invariants (cycle state transitions, lease acquisition, rate limiting)
// are enforced inside single transactions here, never at the caller.
type Store struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}
