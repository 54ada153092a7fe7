package evaluator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Worker leases submissions from the coordinator, runs the pipeline
// over them with bounded concurrency, and commits the outcomes. It is
// stateless: a crash just lets its leases expire and another worker
// picks the work up.
type Worker struct {
	ID            string
	API           *APIClient
	Pipeline      *Pipeline
	PollInterval  time.Duration
	BatchSize     int
	LeaseDuration time.Duration
	Concurrency   int
}

// Run polls for work until the context is cancelled. In-flight
// submissions get a short grace period on shutdown; anything unfinished
// is abandoned and reclaimed via lease expiry.
func (w *Worker) Run(ctx context.Context) error {
	concurrency := w.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	log.Info().Str("worker_id", w.ID).Int("concurrency", concurrency).Msg("evaluator worker started")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Info().Str("worker_id", w.ID).Msg("evaluator worker stopped")
			return ctx.Err()
		default:
		}

		work, err := w.API.Fetch(ctx, w.ID, w.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Warn().Err(err).Msg("fetch work failed")
			w.sleep(ctx)
			continue
		}
		if len(work) == 0 {
			w.sleep(ctx)
			continue
		}

		for _, item := range work {
			item := item
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				w.process(ctx, item)
			}()
		}
	}
}

func (w *Worker) process(ctx context.Context, work Work) {
	subID := work.Submission.ID
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	renewFailed := make(chan struct{})
	go w.keepLeaseAlive(runCtx, work, cancel, renewFailed)

	outcome, err := w.Pipeline.Run(runCtx, work)
	if err != nil {
		select {
		case <-renewFailed:
			// Lease moved on; the run was cancelled underneath us.
		default:
			log.Warn().Err(err).Str("submission", subID).Msg("pipeline run failed, leaving lease to expire")
		}
		return
	}

	// Commit with a short deadline independent of the (possibly
	// shutting down) run context.
	commitCtx, commitCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer commitCancel()
	if err := w.API.Submit(commitCtx, w.ID, subID, outcome); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			return
		}
		log.Warn().Err(err).Str("submission", subID).Msg("submit outcome failed")
		return
	}
	log.Info().
		Str("submission", subID).
		Str("kind", string(outcome.Kind)).
		Float64("final", outcome.FinalScore).
		Msg("evaluation committed")
}

// keepLeaseAlive renews the lease whenever less than a quarter of it
// remains. If a renewal is refused the run context is cancelled so the
// pipeline stops burning work another worker now owns.
func (w *Worker) keepLeaseAlive(ctx context.Context, work Work, cancel context.CancelFunc, renewFailed chan<- struct{}) {
	expiresAt := work.LeaseExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(w.LeaseDuration)
	}

	for {
		wait := time.Until(expiresAt) - w.LeaseDuration/4
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := w.API.Renew(ctx, w.ID, work.Submission.ID); err != nil {
			if ctx.Err() == nil {
				close(renewFailed)
				cancel()
			}
			return
		}
		expiresAt = time.Now().Add(w.LeaseDuration)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}
