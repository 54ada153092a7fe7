// Package evaluator runs the three-stage scoring pipeline over leased
// submissions: technical validation against the downloaded bytes, VLM
// relevance scoring over extracted keyframes, and perceptual-hash
// duplicate detection.
package evaluator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kibotos/internal/store"
	"kibotos/internal/videoprobe"

	"github.com/rs/zerolog/log"
)

// Final-score blend across the three stages.
const (
	technicalWeight = 0.2
	relevanceWeight = 0.5
	qualityWeight   = 0.3
)

// DefaultKeyframes is how many frames the relevance stage samples.
const DefaultKeyframes = 8

// Closed set of miner-attributable rejection reasons, plus the
// provider-failure code used once the VLM retry budget is exhausted
// across lease cycles.
const (
	RejectHashMismatch   = "HASH_MISMATCH"
	RejectTechnical      = "TECHNICAL"
	RejectVLMUnavailable = "VLM_UNAVAILABLE"
)

// Downloader fetches video bytes from the object store.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Prober extracts container metadata and keyframes from a local video
// file.
type Prober interface {
	Probe(ctx context.Context, path string) (videoprobe.Metadata, error)
	ExtractKeyframes(ctx context.Context, path string, n int) ([][]byte, error)
}

// Work is one leased submission plus the context the pipeline needs to
// score it without further store round trips.
type Work struct {
	Submission     store.Submission `json:"submission"`
	Prompt         store.Prompt     `json:"prompt"`
	LeaseExpiresAt time.Time        `json:"lease_expires_at"`
	VLMAttempts    int              `json:"vlm_attempts"`
	MinerPHashes   []string         `json:"miner_phashes"`
	GlobalPHashes  []string         `json:"global_phashes"`
}

// OutcomeKind is what the worker asks the store to do with a finished
// pipeline run.
type OutcomeKind string

const (
	OutcomeScored   OutcomeKind = "SCORED"
	OutcomeRejected OutcomeKind = "REJECTED"
	// OutcomeRetry releases the lease back to PENDING after a VLM
	// outage, so the submission is re-offered instead of punished.
	OutcomeRetry OutcomeKind = "RETRY"
)

type Outcome struct {
	Kind           OutcomeKind `json:"kind"`
	TechnicalOK    bool        `json:"technical_ok"`
	TechnicalScore float64     `json:"technical_score"`
	RelevanceScore float64     `json:"relevance_score"`
	QualityScore   float64     `json:"quality_score"`
	FinalScore     float64     `json:"final_score"`
	RejectReason   string      `json:"reject_reason,omitempty"`
	ModelVersion   string      `json:"model_version,omitempty"`
	PromptVersion  string      `json:"prompt_version,omitempty"`
	VLMAttempts    int         `json:"vlm_attempts"`
	VideoPHash     string      `json:"video_phash,omitempty"`
}

// FinalScore blends the three stage scores.
func FinalScore(technical, relevance, quality float64) float64 {
	return technicalWeight*technical + relevanceWeight*relevance + qualityWeight*quality
}

// Pipeline evaluates one submission end to end.
type Pipeline struct {
	Store             Downloader
	Prober            Prober
	VLM               VLMCaller
	Keyframes         int
	MaxVLMRetryCycles int
	WorkDir           string
}

// Run executes the three stages and returns the outcome to commit. It
// never returns an error for miner-attributable faults; those become
// rejected outcomes. An error return means the run itself failed
// transiently and the lease should simply be allowed to expire.
func (p *Pipeline) Run(ctx context.Context, work Work) (Outcome, error) {
	sub := work.Submission

	videoBytes, err := p.Store.Download(ctx, sub.VideoKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("download video: %w", err)
	}

	digest := sha256.Sum256(videoBytes)
	if hex.EncodeToString(digest[:]) != sub.VideoHash {
		return Outcome{Kind: OutcomeRejected, RejectReason: RejectHashMismatch}, nil
	}

	path, cleanup, err := p.spill(videoBytes, sub.ID)
	if err != nil {
		return Outcome{}, err
	}
	defer cleanup()

	meta, err := p.Prober.Probe(ctx, path)
	if err != nil {
		log.Debug().Err(err).Str("submission", sub.ID).Msg("probe failed")
		return Outcome{Kind: OutcomeRejected, RejectReason: RejectTechnical}, nil
	}
	technical := EvaluateTechnical(sub, meta)
	if !technical.Passed {
		log.Debug().Str("submission", sub.ID).Str("reason", technical.Reason).Msg("technical validation failed")
		return Outcome{
			Kind:           OutcomeRejected,
			TechnicalScore: technical.Score,
			RejectReason:   RejectTechnical,
		}, nil
	}

	n := p.Keyframes
	if n <= 0 {
		n = DefaultKeyframes
	}
	keyframes, err := p.Prober.ExtractKeyframes(ctx, path, n)
	if err != nil {
		log.Debug().Err(err).Str("submission", sub.ID).Msg("keyframe extraction failed")
		return Outcome{
			Kind:           OutcomeRejected,
			TechnicalScore: technical.Score,
			RejectReason:   RejectTechnical,
		}, nil
	}

	relevance, err := EvaluateRelevance(ctx, p.VLM, sub, work.Prompt, keyframes)
	if err != nil {
		if !errors.Is(err, ErrVLMUnavailable) {
			return Outcome{}, err
		}
		attempts := work.VLMAttempts + 1
		if attempts > p.MaxVLMRetryCycles {
			return Outcome{
				Kind:         OutcomeRejected,
				RejectReason: RejectVLMUnavailable,
				VLMAttempts:  attempts,
			}, nil
		}
		return Outcome{Kind: OutcomeRetry, VLMAttempts: attempts}, nil
	}

	phash := VideoPHash(keyframes)
	quality := EvaluateQuality(phash, work.MinerPHashes, work.GlobalPHashes)

	return Outcome{
		Kind:           OutcomeScored,
		TechnicalOK:    true,
		TechnicalScore: technical.Score,
		RelevanceScore: relevance.Score,
		QualityScore:   quality.Score,
		FinalScore:     FinalScore(technical.Score, relevance.Score, quality.Score),
		ModelVersion:   relevance.ModelVersion,
		PromptVersion:  RelevancePromptVersion,
		VLMAttempts:    work.VLMAttempts,
		VideoPHash:     phash,
	}, nil
}

// spill writes the video bytes to a scratch file for ffprobe/ffmpeg.
func (p *Pipeline) spill(videoBytes []byte, submissionID string) (string, func(), error) {
	dir := p.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmpDir, err := os.MkdirTemp(dir, "eval-"+submissionID+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	path := filepath.Join(tmpDir, "video")
	if err := os.WriteFile(path, videoBytes, 0o600); err != nil {
		os.RemoveAll(tmpDir)
		return "", nil, fmt.Errorf("write scratch video: %w", err)
	}
	return path, func() { os.RemoveAll(tmpDir) }, nil
}
