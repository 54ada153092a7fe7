package evaluator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"kibotos/internal/evaluator/vlmclient"
	"kibotos/internal/store"
)

type fakeVLM struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeVLM) AnalyzeImages(ctx context.Context, imageURLs []string, prompt string) (vlmclient.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return vlmclient.Response{}, f.errs[i]
	}
	if i >= len(f.responses) {
		return vlmclient.Response{}, vlmclient.ErrUnavailable
	}
	return vlmclient.Response{Content: f.responses[i], Model: "test-model"}, nil
}

func fastBackoff(t *testing.T) {
	t.Helper()
	orig := vlmBackoff
	vlmBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { vlmBackoff = orig })
}

const goodResponse = `{"action_match": 1.0, "perspective_correct": 0.5, "demonstration_quality": 1.0, "training_utility": 0.5, "reasoning": "clear demo"}`

func TestEvaluateRelevanceWeightsSubScores(t *testing.T) {
	vlm := &fakeVLM{responses: []string{goodResponse}}
	result, err := EvaluateRelevance(context.Background(), vlm, store.Submission{}, store.Prompt{}, nil)
	if err != nil {
		t.Fatalf("EvaluateRelevance() error = %v", err)
	}
	want := 0.40*1.0 + 0.20*0.5 + 0.20*1.0 + 0.20*0.5
	if math.Abs(result.Score-want) > 1e-9 {
		t.Fatalf("Score = %v, want %v", result.Score, want)
	}
	if result.ModelVersion != "test-model" {
		t.Fatalf("ModelVersion = %q, want test-model", result.ModelVersion)
	}
}

func TestEvaluateRelevanceRetriesTransientFailure(t *testing.T) {
	fastBackoff(t)
	vlm := &fakeVLM{
		errs:      []error{vlmclient.ErrUnavailable, nil},
		responses: []string{"", goodResponse},
	}
	result, err := EvaluateRelevance(context.Background(), vlm, store.Submission{}, store.Prompt{}, nil)
	if err != nil {
		t.Fatalf("EvaluateRelevance() error = %v", err)
	}
	if vlm.calls != 2 {
		t.Fatalf("calls = %d, want 2", vlm.calls)
	}
	if result.Score == 0 {
		t.Fatal("Score = 0, want scored result after retry")
	}
}

func TestEvaluateRelevanceExhaustsRetryBudget(t *testing.T) {
	fastBackoff(t)
	vlm := &fakeVLM{errs: []error{vlmclient.ErrUnavailable, vlmclient.ErrUnavailable, vlmclient.ErrUnavailable}}
	_, err := EvaluateRelevance(context.Background(), vlm, store.Submission{}, store.Prompt{}, nil)
	if !errors.Is(err, ErrVLMUnavailable) {
		t.Fatalf("EvaluateRelevance() error = %v, want ErrVLMUnavailable", err)
	}
	if vlm.calls != 3 {
		t.Fatalf("calls = %d, want 3", vlm.calls)
	}
}

func TestParseRelevanceResponseHandlesMarkdownFences(t *testing.T) {
	content := "```json\n" + goodResponse + "\n```"
	scores, err := parseRelevanceResponse(content)
	if err != nil {
		t.Fatalf("parseRelevanceResponse() error = %v", err)
	}
	if scores.ActionMatch != 1.0 || scores.Perspective != 0.5 {
		t.Fatalf("scores = %+v", scores)
	}
}

func TestParseRelevanceResponseExtractsEmbeddedJSON(t *testing.T) {
	content := "Here is my evaluation:\n" + goodResponse + "\nHope that helps."
	scores, err := parseRelevanceResponse(content)
	if err != nil {
		t.Fatalf("parseRelevanceResponse() error = %v", err)
	}
	if scores.DemoQuality != 1.0 {
		t.Fatalf("scores = %+v", scores)
	}
}

func TestParseRelevanceResponseClampsOutOfRange(t *testing.T) {
	scores, err := parseRelevanceResponse(`{"action_match": 1.7, "perspective_correct": -0.3, "demonstration_quality": 0.5, "training_utility": 0.5}`)
	if err != nil {
		t.Fatalf("parseRelevanceResponse() error = %v", err)
	}
	if scores.ActionMatch != 1.0 || scores.Perspective != 0.0 {
		t.Fatalf("scores = %+v, want clamped to [0,1]", scores)
	}
}

func TestParseRelevanceResponseRejectsGarbage(t *testing.T) {
	if _, err := parseRelevanceResponse("I cannot evaluate this video."); err == nil {
		t.Fatal("parseRelevanceResponse() error = nil, want error")
	}
}
