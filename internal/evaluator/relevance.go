package evaluator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"kibotos/internal/evaluator/vlmclient"
	"kibotos/internal/store"

	"github.com/rs/zerolog/log"
)

// ErrVLMUnavailable reports that the VLM provider could not be reached
// within the retry budget. It is not a miner fault.
var ErrVLMUnavailable = errors.New("vlm unavailable after retries")

// RelevancePromptVersion is stored with every evaluation so historical
// scores stay interpretable when the rubric changes.
const RelevancePromptVersion = "rubric-v1"

const (
	vlmMaxAttempts  = 3
	vlmStageTimeout = 5 * time.Minute
)

var vlmBackoff = []time.Duration{time.Second, 3 * time.Second, 9 * time.Second}

// VLMCaller is the slice of the VLM client the relevance stage needs.
type VLMCaller interface {
	AnalyzeImages(ctx context.Context, imageURLs []string, prompt string) (vlmclient.Response, error)
}

type relevanceSubScores struct {
	ActionMatch     float64 `json:"action_match"`
	Perspective     float64 `json:"perspective_correct"`
	DemoQuality     float64 `json:"demonstration_quality"`
	TrainingUtility float64 `json:"training_utility"`
	Reasoning       string  `json:"reasoning"`
}

// RelevanceResult is the VLM stage's output.
type RelevanceResult struct {
	Score        float64
	SubScores    relevanceSubScores
	ModelVersion string
}

const relevancePrompt = `You are evaluating a video submission for a robot training dataset.

REQUESTED TASK:
Category: %s
Task: %s
Scenario: %s

SUBMITTED METADATA:
Camera: %s
Actor: %s
Action description: %s

The images shown are keyframes extracted from the video at uniform offsets. Evaluate how well the video matches the requested task.

EVALUATION CRITERIA (score each 0.0 to 1.0):

1. action_match: Does the video show the requested action being performed?
2. perspective_correct: Is this filmed from a first-person or robot-mounted perspective matching the declared camera?
3. demonstration_quality: Is the action demonstration clear and complete, start to finish?
4. training_utility: Would this video be useful for training a robot?

Respond ONLY with valid JSON in this exact format:
{
    "action_match": <float 0-1>,
    "perspective_correct": <float 0-1>,
    "demonstration_quality": <float 0-1>,
    "training_utility": <float 0-1>,
    "reasoning": "<brief 1-2 sentence explanation>"
}`

// EvaluateRelevance scores keyframes against the prompt via the VLM,
// retrying transient provider failures with exponential backoff inside
// a hard stage deadline.
func EvaluateRelevance(ctx context.Context, vlm VLMCaller, sub store.Submission, prompt store.Prompt, keyframes [][]byte) (RelevanceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, vlmStageTimeout)
	defer cancel()

	images := make([]string, 0, len(keyframes))
	for _, frame := range keyframes {
		images = append(images, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(frame))
	}

	action := "(none provided)"
	if sub.ActionDescription != nil && *sub.ActionDescription != "" {
		action = *sub.ActionDescription
	}
	text := fmt.Sprintf(relevancePrompt,
		prompt.Category, prompt.Task, prompt.Scenario,
		sub.CameraType, sub.ActorType, action)

	var lastErr error
	for attempt := 0; attempt < vlmMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(vlmBackoff[attempt-1]):
			case <-ctx.Done():
				return RelevanceResult{}, fmt.Errorf("%w: %v", ErrVLMUnavailable, ctx.Err())
			}
		}

		resp, err := vlm.AnalyzeImages(ctx, images, text)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return RelevanceResult{}, fmt.Errorf("%w: %v", ErrVLMUnavailable, err)
			}
			log.Warn().Err(err).Int("attempt", attempt+1).Str("submission", sub.ID).Msg("vlm call failed")
			continue
		}

		scores, err := parseRelevanceResponse(resp.Content)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt+1).Str("submission", sub.ID).Msg("vlm response unparseable")
			continue
		}
		return RelevanceResult{
			Score:        relevanceScore(scores),
			SubScores:    scores,
			ModelVersion: resp.Model,
		}, nil
	}
	return RelevanceResult{}, fmt.Errorf("%w: %v", ErrVLMUnavailable, lastErr)
}

// relevanceScore folds the four sub-scores into one: action match
// dominates at 0.40, the rest contribute 0.20 each.
func relevanceScore(s relevanceSubScores) float64 {
	return 0.40*s.ActionMatch + 0.20*s.Perspective + 0.20*s.DemoQuality + 0.20*s.TrainingUtility
}

var jsonBlockPattern = regexp.MustCompile(`\{[^{}]*\}`)

// parseRelevanceResponse extracts the rubric JSON from the model's
// reply, tolerating markdown fences and surrounding prose.
func parseRelevanceResponse(content string) (relevanceSubScores, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var scores relevanceSubScores
	if err := json.Unmarshal([]byte(trimmed), &scores); err != nil {
		match := jsonBlockPattern.FindString(trimmed)
		if match == "" {
			return relevanceSubScores{}, fmt.Errorf("no JSON object in vlm response")
		}
		if err := json.Unmarshal([]byte(match), &scores); err != nil {
			return relevanceSubScores{}, fmt.Errorf("parse vlm response: %w", err)
		}
	}

	scores.ActionMatch = clamp01(scores.ActionMatch)
	scores.Perspective = clamp01(scores.Perspective)
	scores.DemoQuality = clamp01(scores.DemoQuality)
	scores.TrainingUtility = clamp01(scores.TrainingUtility)
	return scores, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
