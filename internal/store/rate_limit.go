package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// RateLimitWindow is the sliding window the admission rate limit is
// measured over.
const RateLimitWindow = time.Hour

// incrementRateCounterTx enforces the sliding one-hour submission cap
// per miner inside the caller's admission transaction, so the rate
// check and the submission insert either both happen or neither does.
// Counted from a dedicated event log rather than the submissions table
// itself so a rejected-for-other-reasons admission never consumes the
// miner's quota.
func (s *Store) incrementRateCounterTx(ctx context.Context, tx pgx.Tx, minerUID int64, limitPerHour int) error {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM miner_rate_events
		WHERE miner_uid = $1 AND occurred_at >= now() - make_interval(secs => $2)
	`, minerUID, RateLimitWindow.Seconds()).Scan(&count)
	if err != nil {
		return err
	}
	if count >= limitPerHour {
		return ErrRateLimited
	}
	_, err = tx.Exec(ctx, `INSERT INTO miner_rate_events (miner_uid, occurred_at) VALUES ($1, now())`, minerUID)
	return err
}

// RateCounterFor returns the miner's current sliding-window count, for
// admin/debug introspection.
func (s *Store) RateCounterFor(ctx context.Context, minerUID int64) (RateCounter, error) {
	rc := RateCounter{MinerUID: minerUID, WindowStart: time.Now().Add(-RateLimitWindow)}
	err := s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM miner_rate_events
		WHERE miner_uid = $1 AND occurred_at >= now() - make_interval(secs => $2)
	`, minerUID, RateLimitWindow.Seconds()).Scan(&rc.Count)
	return rc, err
}
