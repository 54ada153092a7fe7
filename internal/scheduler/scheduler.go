// Package scheduler drives the cycle state machine: it opens a fresh
// cycle when none is active, closes the active cycle once its duration
// elapses, and completes an evaluating cycle once every submission in
// it has reached a terminal state. Exactly one scheduler should run;
// if a second one ever does, the store's guarded transitions make the
// loser observe a wrong-state failure and move on.
package scheduler

import (
	"context"
	"errors"
	"time"

	"kibotos/internal/aggregator"
	"kibotos/internal/store"

	"github.com/rs/zerolog/log"
)

// Store is the slice of the persistence layer the scheduler needs.
type Store interface {
	GetCycleSummary(ctx context.Context) (store.CycleSummary, error)
	OpenCycle(ctx context.Context) (store.Cycle, error)
	CloseCycleToEvaluating(ctx context.Context, cycleID int64) (store.Cycle, error)
	CompleteCycle(ctx context.Context, cycleID int64) (store.Cycle, error)
	CountNonterminalInCycle(ctx context.Context, cycleID int64) (int64, error)
	ScoredSubmissionsForCycle(ctx context.Context, cycleID int64) (map[int64][]float64, map[int64]int64, error)
	StoreCycleWeights(ctx context.Context, cycleID int64, weights []store.CycleWeight, scores []store.MinerCycleScore) error
}

type Scheduler struct {
	Store         Store
	CycleDuration time.Duration
	CheckInterval time.Duration
	AutoStart     bool

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// Run ticks until the context is cancelled. Shutdown happens between
// iterations, never in the middle of a transition.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("cycle_duration", s.CycleDuration).
		Dur("check_interval", interval).
		Bool("auto_start", s.AutoStart).
		Msg("scheduler started")

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler tick failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one scheduler iteration: at most one state transition per
// phase, in a fixed order so cycle-boundary behavior is deterministic.
func (s *Scheduler) Tick(ctx context.Context) error {
	summary, err := s.Store.GetCycleSummary(ctx)
	if err != nil {
		return err
	}

	if summary.Active == nil && s.AutoStart {
		cycle, err := s.Store.OpenCycle(ctx)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyActive) {
				return nil
			}
			return err
		}
		log.Info().Int64("cycle", cycle.ID).Msg("opened cycle")
		summary.Active = &cycle
	}

	if summary.Active != nil && s.now().Sub(summary.Active.StartedAt) >= s.CycleDuration {
		cycle, err := s.Store.CloseCycleToEvaluating(ctx, summary.Active.ID)
		if err != nil {
			if errors.Is(err, store.ErrWrongState) {
				return nil
			}
			return err
		}
		log.Info().Int64("cycle", cycle.ID).Msg("cycle collecting window closed, evaluating")
	}

	if summary.Evaluating != nil {
		return s.tryComplete(ctx, summary.Evaluating.ID)
	}
	return nil
}

// tryComplete finishes an evaluating cycle once no submission in it is
// still PENDING or EVALUATING: aggregate scores into weights, persist
// them, and mark the cycle completed.
func (s *Scheduler) tryComplete(ctx context.Context, cycleID int64) error {
	nonterminal, err := s.Store.CountNonterminalInCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	if nonterminal > 0 {
		log.Debug().Int64("cycle", cycleID).Int64("nonterminal", nonterminal).Msg("cycle still evaluating")
		return nil
	}

	scores, totals, err := s.Store.ScoredSubmissionsForCycle(ctx, cycleID)
	if err != nil {
		return err
	}

	inputs := make([]aggregator.MinerTotals, 0, len(totals))
	for minerUID, total := range totals {
		inputs = append(inputs, aggregator.MinerTotals{
			MinerUID:         minerUID,
			Scores:           scores[minerUID],
			TotalSubmissions: total,
		})
	}
	results := aggregator.Compute(inputs)

	weights := make([]store.CycleWeight, 0, len(results))
	minerScores := make([]store.MinerCycleScore, 0, len(results))
	for _, r := range results {
		minerScores = append(minerScores, store.MinerCycleScore{
			CycleID:             cycleID,
			MinerUID:            r.MinerUID,
			TotalSubmissions:    r.TotalSubmissions,
			AcceptedSubmissions: r.AcceptedSubmissions,
			AvgScore:            r.AvgScore,
			TotalScore:          r.TotalScore,
		})
		if r.Weight > 0 {
			weights = append(weights, store.CycleWeight{
				CycleID:   cycleID,
				MinerUID:  r.MinerUID,
				Weight:    r.Weight,
				WeightU16: r.WeightU16,
			})
		}
	}

	if err := s.Store.StoreCycleWeights(ctx, cycleID, weights, minerScores); err != nil {
		return err
	}
	cycle, err := s.Store.CompleteCycle(ctx, cycleID)
	if err != nil {
		// CompleteCycle re-checks state and the nonterminal count under
		// lock; a competing scheduler that got there first surfaces
		// here and is absorbed, and the next tick re-reads the state.
		if errors.Is(err, store.ErrHasPending) || errors.Is(err, store.ErrWrongState) {
			log.Warn().Err(err).Int64("cycle", cycleID).Msg("complete deferred")
			return nil
		}
		return err
	}
	log.Info().Int64("cycle", cycle.ID).Int("miners", len(weights)).Msg("cycle completed")
	return nil
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
