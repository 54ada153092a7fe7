package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DuplicateWindowCycles bounds how many completed cycles (in addition
// to the current one) the quality stage's perceptual-hash
// near-duplicate search looks back over.
const DuplicateWindowCycles = 1

type AdmitSubmissionParams struct {
	PromptID          string
	MinerUID          int64
	MinerHotkey       string
	VideoHash         string
	VideoKey          string
	DurationSec       float64
	Width             int
	Height            int
	FPS               float64
	CameraType        string
	ActorType         string
	ActionDescription *string
	CameraIntrinsic   *string
	RobotModel        *string
	Environment       *string
	TaskSuccess       *bool
}

// AdmitSubmission inserts a PENDING submission into the open cycle.
// The active-cycle read, prompt check, dedup check, rate counter
// increment and insert all run in one transaction, so a failed
// admission never consumes rate budget and a submission is always
// bound to the cycle that was ACTIVE when it was admitted.
func (s *Store) AdmitSubmission(ctx context.Context, p AdmitSubmissionParams, rateLimitPerHour int) (Submission, error) {
	var sub Submission
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var cycleID int64
		if err := tx.QueryRow(ctx, `SELECT id FROM cycles WHERE status = $1 FOR UPDATE`, CycleActive).Scan(&cycleID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoOpenCycle
			}
			return err
		}

		var promptUsable bool
		err := tx.QueryRow(ctx, `
			SELECT active AND (expires_at IS NULL OR expires_at > now())
			FROM prompts WHERE id = $1
		`, p.PromptID).Scan(&promptUsable)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUnknownPrompt
		}
		if err != nil {
			return err
		}
		if !promptUsable {
			return ErrUnknownPrompt
		}

		var dupExists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM submissions
				WHERE miner_uid = $1 AND video_hash = $2 AND status <> $3
			)
		`, p.MinerUID, p.VideoHash, SubmissionRejected).Scan(&dupExists)
		if err != nil {
			return err
		}
		if dupExists {
			return ErrDuplicate
		}

		if err := s.incrementRateCounterTx(ctx, tx, p.MinerUID, rateLimitPerHour); err != nil {
			return err
		}

		sub = Submission{
			ID:                uuid.NewString(),
			CycleID:           cycleID,
			PromptID:          p.PromptID,
			MinerUID:          p.MinerUID,
			MinerHotkey:       p.MinerHotkey,
			VideoHash:         p.VideoHash,
			VideoKey:          p.VideoKey,
			DurationSec:       p.DurationSec,
			Width:             p.Width,
			Height:            p.Height,
			FPS:               p.FPS,
			CameraType:        p.CameraType,
			ActorType:         p.ActorType,
			ActionDescription: p.ActionDescription,
			CameraIntrinsic:   p.CameraIntrinsic,
			RobotModel:        p.RobotModel,
			Environment:       p.Environment,
			TaskSuccess:       p.TaskSuccess,
			Status:            SubmissionPending,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO submissions (
				id, cycle_id, prompt_id, miner_uid, miner_hotkey, video_hash, video_key,
				duration_sec, width, height, fps, camera_type, actor_type, action_description,
				camera_intrinsics, robot_model, environment, task_success, status, submitted_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now())
			RETURNING submitted_at
		`, sub.ID, sub.CycleID, sub.PromptID, sub.MinerUID, sub.MinerHotkey, sub.VideoHash, sub.VideoKey,
			sub.DurationSec, sub.Width, sub.Height, sub.FPS, sub.CameraType, sub.ActorType, sub.ActionDescription,
			sub.CameraIntrinsic, sub.RobotModel, sub.Environment, sub.TaskSuccess, sub.Status,
		).Scan(&sub.SubmittedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE prompts SET total_submissions = total_submissions + 1 WHERE id = $1`, p.PromptID)
		return err
	})
	return sub, err
}

// GetSubmission fetches a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id string) (Submission, error) {
	return scanSubmission(s.Pool.QueryRow(ctx, submissionSelectColumns+`FROM submissions WHERE id = $1`, id))
}

const submissionSelectColumns = `
	SELECT id, cycle_id, prompt_id, miner_uid, miner_hotkey, video_hash, video_key,
		duration_sec, width, height, fps, camera_type, actor_type, action_description,
		camera_intrinsics, robot_model, environment, task_success, status, submitted_at,
		evaluated_at, lease_owner, lease_expires_at
`

func scanSubmission(row pgx.Row) (Submission, error) {
	var sub Submission
	err := row.Scan(
		&sub.ID, &sub.CycleID, &sub.PromptID, &sub.MinerUID, &sub.MinerHotkey, &sub.VideoHash, &sub.VideoKey,
		&sub.DurationSec, &sub.Width, &sub.Height, &sub.FPS, &sub.CameraType, &sub.ActorType, &sub.ActionDescription,
		&sub.CameraIntrinsic, &sub.RobotModel, &sub.Environment, &sub.TaskSuccess, &sub.Status, &sub.SubmittedAt,
		&sub.EvaluatedAt, &sub.LeaseOwner, &sub.LeaseExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	return sub, err
}

// LeasePending claims up to batchSize PENDING (or expired-lease
// EVALUATING) submissions for workerID, using SKIP LOCKED so concurrent
// workers never block on or double-claim each other's rows.
func (s *Store) LeasePending(ctx context.Context, workerID string, batchSize int, leaseDuration time.Duration) ([]Submission, error) {
	var leased []Submission
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id FROM submissions
			WHERE status = $1
			   OR (status = $2 AND lease_expires_at < now())
			ORDER BY submitted_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		`, SubmissionPending, SubmissionEvaluating, batchSize)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			row := tx.QueryRow(ctx, `
				UPDATE submissions
				SET status = $1, lease_owner = $2, lease_expires_at = now() + make_interval(secs => $3)
				WHERE id = $4
				RETURNING id, cycle_id, prompt_id, miner_uid, miner_hotkey, video_hash, video_key,
					duration_sec, width, height, fps, camera_type, actor_type, action_description,
					camera_intrinsics, robot_model, environment, task_success, status, submitted_at,
					evaluated_at, lease_owner, lease_expires_at
			`, SubmissionEvaluating, workerID, leaseDuration.Seconds(), id)
			sub, err := scanSubmission(row)
			if err != nil {
				return err
			}
			leased = append(leased, sub)
		}
		return nil
	})
	return leased, err
}

// RenewLease extends an in-progress lease, guarded on lease ownership
// exactly like CommitEvaluation.
func (s *Store) RenewLease(ctx context.Context, workerID, submissionID string, extension time.Duration) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE submissions
		SET lease_expires_at = now() + make_interval(secs => $1)
		WHERE id = $2 AND status = $3 AND lease_owner = $4
	`, extension.Seconds(), submissionID, SubmissionEvaluating, workerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// CommitEvaluation persists the terminal result of a pipeline run and
// transitions the submission out of EVALUATING, guarded on lease
// ownership: a worker whose lease expired and was re-granted elsewhere
// gets ErrLeaseLost and writes nothing.
func (s *Store) CommitEvaluation(ctx context.Context, workerID string, eval Evaluation, finalStatus SubmissionStatus) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE submissions
			SET status = $1, evaluated_at = now(), lease_owner = NULL, lease_expires_at = NULL
			WHERE id = $2 AND status = $3 AND lease_owner = $4
		`, finalStatus, eval.SubmissionID, SubmissionEvaluating, workerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrLeaseLost
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO evaluations (
				submission_id, technical_ok, technical_score, relevance_score, quality_score,
				final_score, reject_reason, model_version, prompt_version, vlm_attempts, video_phash, evaluated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (submission_id) DO UPDATE SET
				technical_ok = EXCLUDED.technical_ok,
				technical_score = EXCLUDED.technical_score,
				relevance_score = EXCLUDED.relevance_score,
				quality_score = EXCLUDED.quality_score,
				final_score = EXCLUDED.final_score,
				reject_reason = EXCLUDED.reject_reason,
				model_version = EXCLUDED.model_version,
				prompt_version = EXCLUDED.prompt_version,
				vlm_attempts = EXCLUDED.vlm_attempts,
				video_phash = EXCLUDED.video_phash,
				evaluated_at = now()
		`, eval.SubmissionID, eval.TechnicalOK, eval.TechScore, eval.RelevanceScr, eval.QualityScore,
			eval.FinalScore, eval.RejectReason, eval.ModelVersion, eval.PromptVersion, eval.VLMAttempts, eval.VideoPHash)
		return err
	})
}

// GetEvaluation fetches the evaluation row for a submission, if any.
func (s *Store) GetEvaluation(ctx context.Context, submissionID string) (Evaluation, error) {
	var e Evaluation
	err := s.Pool.QueryRow(ctx, `
		SELECT submission_id, technical_ok, technical_score, relevance_score, quality_score,
			final_score, reject_reason, model_version, prompt_version, vlm_attempts, video_phash, evaluated_at
		FROM evaluations WHERE submission_id = $1
	`, submissionID).Scan(
		&e.SubmissionID, &e.TechnicalOK, &e.TechScore, &e.RelevanceScr, &e.QualityScore,
		&e.FinalScore, &e.RejectReason, &e.ModelVersion, &e.PromptVersion, &e.VLMAttempts, &e.VideoPHash, &e.EvaluatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	return e, err
}

// ReleaseLeaseForRetry releases a lease back to PENDING without
// terminating the submission, incrementing its VLM attempt counter.
// Used when the VLM provider is unavailable: the failure is not the
// miner's fault, so the submission is re-offered instead of rejected.
func (s *Store) ReleaseLeaseForRetry(ctx context.Context, workerID, submissionID string, vlmAttempts int) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE submissions
			SET status = $1, lease_owner = NULL, lease_expires_at = NULL
			WHERE id = $2 AND status = $3 AND lease_owner = $4
		`, SubmissionPending, submissionID, SubmissionEvaluating, workerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrLeaseLost
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO evaluations (submission_id, vlm_attempts, evaluated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (submission_id) DO UPDATE SET vlm_attempts = $2, evaluated_at = now()
		`, submissionID, vlmAttempts)
		return err
	})
}

// ScoredPHashes returns the perceptual hashes of SCORED submissions in
// the given cycles, for the quality stage's near-duplicate check.
func (s *Store) ScoredPHashes(ctx context.Context, cycleIDs []int64, limit int) ([]PHashRecord, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT s.id, s.miner_uid, e.video_phash
		FROM submissions s
		JOIN evaluations e ON e.submission_id = s.id
		WHERE s.status = $1 AND s.cycle_id = ANY($2) AND e.video_phash <> ''
		ORDER BY s.submitted_at DESC
		LIMIT $3
	`, SubmissionScored, cycleIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PHashRecord{}
	for rows.Next() {
		var r PHashRecord
		if err := rows.Scan(&r.SubmissionID, &r.MinerUID, &r.PHash); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
