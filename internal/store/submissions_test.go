package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"kibotos/internal/store"
	"kibotos/internal/testutil"
)

func admitOne(t *testing.T, st *store.Store, ctx context.Context, promptID string, minerUID int64, videoHash string) store.Submission {
	t.Helper()
	sub, err := st.AdmitSubmission(ctx, store.AdmitSubmissionParams{
		PromptID:    promptID,
		MinerUID:    minerUID,
		MinerHotkey: "hotkey",
		VideoHash:   videoHash,
		VideoKey:    "uploads/x/" + videoHash + ".mp4",
		DurationSec: 30,
		Width:       1920,
		Height:      1080,
		FPS:         30,
		CameraType:  "ego_wrist",
		ActorType:   "human",
	}, 4)
	if err != nil {
		t.Fatalf("AdmitSubmission() error = %v", err)
	}
	return sub
}

func TestAdmitSubmissionRejectsDuplicateVideoHash(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := st.OpenCycle(ctx); err != nil {
		t.Fatalf("OpenCycle() error = %v", err)
	}
	prompt := createPrompt(t, st, ctx)

	admitOne(t, st, ctx, prompt.ID, 7, "dup-hash")
	_, err := st.AdmitSubmission(ctx, store.AdmitSubmissionParams{
		PromptID: prompt.ID, MinerUID: 7, MinerHotkey: "hotkey", VideoHash: "dup-hash",
		VideoKey: "uploads/x/dup.mp4", DurationSec: 30, Width: 1920, Height: 1080, FPS: 30,
		CameraType: "ego_wrist", ActorType: "human",
	}, 4)
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("second AdmitSubmission() error = %v, want ErrDuplicate", err)
	}
}

func TestAdmitSubmissionRejectsInactivePrompt(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := st.OpenCycle(ctx); err != nil {
		t.Fatalf("OpenCycle() error = %v", err)
	}
	prompt := createPrompt(t, st, ctx)
	if err := st.SetPromptActive(ctx, prompt.ID, false); err != nil {
		t.Fatalf("SetPromptActive() error = %v", err)
	}

	_, err := st.AdmitSubmission(ctx, store.AdmitSubmissionParams{
		PromptID: prompt.ID, MinerUID: 3, MinerHotkey: "hotkey", VideoHash: "inactive-hash",
		VideoKey: "uploads/x/y.mp4", DurationSec: 30, Width: 1920, Height: 1080, FPS: 30,
		CameraType: "ego_wrist", ActorType: "human",
	}, 4)
	if !errors.Is(err, store.ErrUnknownPrompt) {
		t.Fatalf("AdmitSubmission() error = %v, want ErrUnknownPrompt", err)
	}
}

func TestAdmitSubmissionEnforcesRateLimit(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := st.OpenCycle(ctx); err != nil {
		t.Fatalf("OpenCycle() error = %v", err)
	}
	prompt := createPrompt(t, st, ctx)

	for i := 0; i < 4; i++ {
		_, err := st.AdmitSubmission(ctx, store.AdmitSubmissionParams{
			PromptID: prompt.ID, MinerUID: 9, MinerHotkey: "hotkey",
			VideoHash: "hash" + string(rune('a'+i)), VideoKey: "uploads/x/y.mp4",
			DurationSec: 30, Width: 1920, Height: 1080, FPS: 30,
			CameraType: "ego_wrist", ActorType: "human",
		}, 4)
		if err != nil {
			t.Fatalf("AdmitSubmission() call %d error = %v", i, err)
		}
	}
	_, err := st.AdmitSubmission(ctx, store.AdmitSubmissionParams{
		PromptID: prompt.ID, MinerUID: 9, MinerHotkey: "hotkey",
		VideoHash: "one-too-many", VideoKey: "uploads/x/y.mp4",
		DurationSec: 30, Width: 1920, Height: 1080, FPS: 30,
		CameraType: "ego_wrist", ActorType: "human",
	}, 4)
	if !errors.Is(err, store.ErrRateLimited) {
		t.Fatalf("5th AdmitSubmission() error = %v, want ErrRateLimited", err)
	}
}

func TestLeasePendingSkipsLockedAndHonorsExpiry(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := st.OpenCycle(ctx); err != nil {
		t.Fatalf("OpenCycle() error = %v", err)
	}
	prompt := createPrompt(t, st, ctx)
	sub := admitOne(t, st, ctx, prompt.ID, 11, "lease-hash")

	leased, err := st.LeasePending(ctx, "worker-a", 5, time.Minute)
	if err != nil {
		t.Fatalf("LeasePending() error = %v", err)
	}
	if len(leased) != 1 || leased[0].ID != sub.ID {
		t.Fatalf("LeasePending() = %+v, want one lease of %s", leased, sub.ID)
	}

	again, err := st.LeasePending(ctx, "worker-b", 5, time.Minute)
	if err != nil {
		t.Fatalf("LeasePending() second call error = %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("LeasePending() second call = %+v, want none (lease not expired)", again)
	}
}

func TestCommitEvaluationRequiresLeaseOwnership(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := st.OpenCycle(ctx); err != nil {
		t.Fatalf("OpenCycle() error = %v", err)
	}
	prompt := createPrompt(t, st, ctx)
	sub := admitOne(t, st, ctx, prompt.ID, 13, "commit-hash")

	if _, err := st.LeasePending(ctx, "worker-a", 1, time.Minute); err != nil {
		t.Fatalf("LeasePending() error = %v", err)
	}

	err := st.CommitEvaluation(ctx, "worker-b", store.Evaluation{
		SubmissionID: sub.ID, FinalScore: 0.9,
	}, store.SubmissionScored)
	if !errors.Is(err, store.ErrLeaseLost) {
		t.Fatalf("CommitEvaluation() wrong owner error = %v, want ErrLeaseLost", err)
	}

	err = st.CommitEvaluation(ctx, "worker-a", store.Evaluation{
		SubmissionID: sub.ID, FinalScore: 0.9,
	}, store.SubmissionScored)
	if err != nil {
		t.Fatalf("CommitEvaluation() correct owner error = %v", err)
	}

	got, err := st.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if got.Status != store.SubmissionScored {
		t.Fatalf("Status = %v, want SCORED", got.Status)
	}
	if got.EvaluatedAt == nil {
		t.Fatal("EvaluatedAt = nil, want set after commit")
	}
}

func TestReleaseLeaseForRetryReturnsToPending(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := st.OpenCycle(ctx); err != nil {
		t.Fatalf("OpenCycle() error = %v", err)
	}
	prompt := createPrompt(t, st, ctx)
	sub := admitOne(t, st, ctx, prompt.ID, 17, "retry-hash")

	if _, err := st.LeasePending(ctx, "worker-a", 1, time.Minute); err != nil {
		t.Fatalf("LeasePending() error = %v", err)
	}
	if err := st.ReleaseLeaseForRetry(ctx, "worker-a", sub.ID, 1); err != nil {
		t.Fatalf("ReleaseLeaseForRetry() error = %v", err)
	}

	got, err := st.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if got.Status != store.SubmissionPending {
		t.Fatalf("Status = %v, want PENDING after release", got.Status)
	}
	eval, err := st.GetEvaluation(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetEvaluation() error = %v", err)
	}
	if eval.VLMAttempts != 1 {
		t.Fatalf("VLMAttempts = %d, want 1", eval.VLMAttempts)
	}
}
