package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// StoreCycleWeights persists the aggregator's output for a cycle inside
// one transaction, replacing any prior (re-run) weights for that cycle.
func (s *Store) StoreCycleWeights(ctx context.Context, cycleID int64, weights []CycleWeight, scores []MinerCycleScore) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cycle_weights WHERE cycle_id = $1`, cycleID); err != nil {
			return err
		}
		for _, w := range weights {
			_, err := tx.Exec(ctx, `
				INSERT INTO cycle_weights (cycle_id, miner_uid, weight, weight_u16, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, cycleID, w.MinerUID, w.Weight, w.WeightU16)
			if err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM miner_cycle_scores WHERE cycle_id = $1`, cycleID); err != nil {
			return err
		}
		for _, sc := range scores {
			_, err := tx.Exec(ctx, `
				INSERT INTO miner_cycle_scores (
					cycle_id, miner_uid, total_submissions, accepted_submissions, avg_score, total_score
				) VALUES ($1, $2, $3, $4, $5, $6)
			`, cycleID, sc.MinerUID, sc.TotalSubmissions, sc.AcceptedSubmissions, sc.AvgScore, sc.TotalScore)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetWeights returns the stored weights for a cycle.
func (s *Store) GetWeights(ctx context.Context, cycleID int64) ([]CycleWeight, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT cycle_id, miner_uid, weight, weight_u16, created_at
		FROM cycle_weights WHERE cycle_id = $1 ORDER BY miner_uid ASC
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CycleWeight{}
	for rows.Next() {
		var w CycleWeight
		if err := rows.Scan(&w.CycleID, &w.MinerUID, &w.Weight, &w.WeightU16, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetScores returns the per-miner cycle breakdown backing
// GET /v1/scores/{cycle_id}.
func (s *Store) GetScores(ctx context.Context, cycleID int64) ([]MinerCycleScore, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT cycle_id, miner_uid, total_submissions, accepted_submissions, avg_score, total_score
		FROM miner_cycle_scores WHERE cycle_id = $1 ORDER BY miner_uid ASC
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MinerCycleScore{}
	for rows.Next() {
		var sc MinerCycleScore
		if err := rows.Scan(&sc.CycleID, &sc.MinerUID, &sc.TotalSubmissions, &sc.AcceptedSubmissions, &sc.AvgScore, &sc.TotalScore); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ScoredSubmissionsForCycle returns every SCORED submission's final
// score grouped by miner, the raw input the aggregator reduces over.
func (s *Store) ScoredSubmissionsForCycle(ctx context.Context, cycleID int64) (map[int64][]float64, map[int64]int64, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT s.miner_uid, e.final_score
		FROM submissions s
		JOIN evaluations e ON e.submission_id = s.id
		WHERE s.cycle_id = $1 AND s.status = $2
	`, cycleID, SubmissionScored)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	scores := map[int64][]float64{}
	for rows.Next() {
		var minerUID int64
		var score float64
		if err := rows.Scan(&minerUID, &score); err != nil {
			return nil, nil, err
		}
		scores[minerUID] = append(scores[minerUID], score)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	totalRows, err := s.Pool.Query(ctx, `
		SELECT miner_uid, count(*) FROM submissions WHERE cycle_id = $1 GROUP BY miner_uid
	`, cycleID)
	if err != nil {
		return nil, nil, err
	}
	defer totalRows.Close()
	totals := map[int64]int64{}
	for totalRows.Next() {
		var minerUID, total int64
		if err := totalRows.Scan(&minerUID, &total); err != nil {
			return nil, nil, err
		}
		totals[minerUID] = total
	}
	return scores, totals, totalRows.Err()
}
