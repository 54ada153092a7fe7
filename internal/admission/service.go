package admission

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"kibotos/internal/store"
)

var videoHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

const RateLimitPerHour = 4

// Service wraps *store.Store with the validation pipeline run before a
// submission is admitted: schema, signature, then a single
// transactional admit (dedup + rate limit + insert) against the store.
type Service struct {
	Store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{Store: st}
}

func validateSchema(r Request) error {
	if !videoHashPattern.MatchString(r.VideoHash) {
		return fmt.Errorf("%w: video_hash must be 64 hex chars", ErrSchema)
	}
	if r.VideoKey == "" || r.PromptID == "" || r.MinerHotkey == "" || r.Signature == "" {
		return fmt.Errorf("%w: missing required field", ErrSchema)
	}
	if r.DurationSec < 1 || r.DurationSec > 300 {
		return fmt.Errorf("%w: duration_sec out of range [1,300]", ErrSchema)
	}
	if r.Width < 480 || r.Height < 360 {
		return fmt.Errorf("%w: resolution below minimum 480x360", ErrSchema)
	}
	if r.FPS < 15 || r.FPS > 120 {
		return fmt.Errorf("%w: fps out of range [15,120]", ErrSchema)
	}
	if !allowedCameraTypes[r.CameraType] {
		return fmt.Errorf("%w: unknown camera_type %q", ErrSchema, r.CameraType)
	}
	if !allowedActorTypes[r.ActorType] {
		return fmt.Errorf("%w: unknown actor_type %q", ErrSchema, r.ActorType)
	}
	return nil
}

// Admit runs the full admission pipeline and returns the persisted
// submission, or one of this package's sentinel errors.
func (s *Service) Admit(ctx context.Context, r Request) (store.Submission, error) {
	if err := validateSchema(r); err != nil {
		return store.Submission{}, err
	}
	if err := verifySignature(r); err != nil {
		return store.Submission{}, err
	}

	sub, err := s.Store.AdmitSubmission(ctx, store.AdmitSubmissionParams{
		PromptID:          r.PromptID,
		MinerUID:          r.MinerUID,
		MinerHotkey:       r.MinerHotkey,
		VideoHash:         r.VideoHash,
		VideoKey:          r.VideoKey,
		DurationSec:       r.DurationSec,
		Width:             r.Width,
		Height:            r.Height,
		FPS:               r.FPS,
		CameraType:        r.CameraType,
		ActorType:         r.ActorType,
		ActionDescription: r.ActionDescription,
		CameraIntrinsic:   r.CameraIntrinsic,
		RobotModel:        r.RobotModel,
		Environment:       r.Environment,
		TaskSuccess:       r.TaskSuccess,
	}, RateLimitPerHour)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownPrompt):
			return store.Submission{}, ErrPromptUnknown
		case errors.Is(err, store.ErrNoOpenCycle):
			return store.Submission{}, ErrNoOpenCycle
		case errors.Is(err, store.ErrDuplicate):
			return store.Submission{}, ErrDuplicate
		case errors.Is(err, store.ErrRateLimited):
			return store.Submission{}, ErrRateLimited
		default:
			return store.Submission{}, fmt.Errorf("admit submission: %w", err)
		}
	}
	return sub, nil
}
