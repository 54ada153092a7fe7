package httptransport

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"time"

	"kibotos/internal/admission"
	"kibotos/internal/evaluator"
	"kibotos/internal/objectstore"
	"kibotos/internal/store"

	"github.com/go-chi/chi/v5"
)

// Server bundles the dependencies the HTTP surface exposes.
type Server struct {
	Store       *store.Store
	Admission   *admission.Service
	ObjectStore *objectstore.Client
	Version     string
}

const (
	defaultLeaseDuration = 5 * time.Minute
	phashWindowLimit     = 500
)

var (
	admissionsAccepted   = expvar.NewInt("admissions_accepted_total")
	admissionsRejected   = expvar.NewInt("admissions_rejected_total")
	leasesGranted        = expvar.NewInt("leases_granted_total")
	evaluationsCommitted = expvar.NewInt("evaluations_committed_total")
	vlmRetriesReleased   = expvar.NewInt("vlm_retries_released_total")
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		WriteError(w, r, http.StatusServiceUnavailable, CodeInternal, "store unreachable")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"service": "kibotos",
		"version": s.Version,
	})
}

func (s *Server) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Store.GetCycleSummary(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	resp := map[string]any{"total_cycles": summary.Total}
	if summary.Active != nil {
		resp["active_cycle_id"] = summary.Active.ID
		resp["active_cycle_started_at"] = summary.Active.StartedAt
	}
	if summary.Evaluating != nil {
		resp["evaluating_cycle_id"] = summary.Evaluating.ID
	}
	if summary.LastCompleted != nil {
		resp["last_completed_cycle_id"] = summary.LastCompleted.ID
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.Store.ListActivePrompts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

func (s *Server) handlePromptCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.Store.PromptCategories(r.Context())
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := s.Store.GetPrompt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, prompt)
}

type createPromptRequest struct {
	Category     string                   `json:"category"`
	Task         string                   `json:"task"`
	Scenario     string                   `json:"scenario"`
	Requirements store.PromptRequirements `json:"requirements"`
	Weight       float64                  `json:"weight"`
	ExpiresAt    *time.Time               `json:"expires_at,omitempty"`
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req createPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	if req.Category == "" || req.Task == "" || req.Scenario == "" {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "category, task and scenario are required")
		return
	}
	prompt, err := s.Store.CreatePrompt(r.Context(), store.CreatePromptParams{
		Category:     req.Category,
		Task:         req.Task,
		Scenario:     req.Scenario,
		Requirements: req.Requirements,
		Weight:       req.Weight,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, prompt)
}

type setPromptActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetPromptActive(w http.ResponseWriter, r *http.Request) {
	var req setPromptActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	if err := s.Store.SetPromptActive(r.Context(), chi.URLParam(r, "id"), req.Active); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type presignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

func (s *Server) handlePresignUpload(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	if req.Filename == "" {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "filename is required")
		return
	}
	if req.ContentType == "" {
		req.ContentType = "video/mp4"
	}
	presigned, err := s.ObjectStore.PresignUpload(r.Context(), req.Filename, req.ContentType)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, presigned)
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req admission.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	sub, err := s.Admission.Admit(r.Context(), req)
	if err != nil {
		admissionsRejected.Add(1)
		WriteDomainError(w, r, err)
		return
	}
	admissionsAccepted.Add(1)
	WriteJSON(w, http.StatusAccepted, map[string]any{
		"submission_id": sub.ID,
		"cycle_id":      sub.CycleID,
		"status":        sub.Status,
	})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	resp := map[string]any{"submission": sub}
	eval, err := s.Store.GetEvaluation(r.Context(), sub.ID)
	switch {
	case err == nil:
		resp["evaluation"] = eval
		if sub.Status == store.SubmissionRejected && eval.RejectReason != "" {
			resp["rejection_reason"] = eval.RejectReason
		}
	case !errors.Is(err, store.ErrNotFound):
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

type fetchWorkRequest struct {
	WorkerID         string `json:"worker_id"`
	Limit            int    `json:"limit"`
	LeaseDurationSec int    `json:"lease_duration_sec"`
}

func (s *Server) handleEvaluateFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	if req.WorkerID == "" {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "worker_id is required")
		return
	}
	if req.Limit < 1 {
		req.Limit = 1
	}
	leaseDuration := defaultLeaseDuration
	if req.LeaseDurationSec > 0 {
		leaseDuration = time.Duration(req.LeaseDurationSec) * time.Second
	}

	leases, err := s.Store.LeasePending(r.Context(), req.WorkerID, req.Limit, leaseDuration)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	work := make([]evaluator.Work, 0, len(leases))
	for _, sub := range leases {
		item, err := s.buildWork(r, sub)
		if err != nil {
			WriteDomainError(w, r, err)
			return
		}
		work = append(work, item)
	}
	leasesGranted.Add(int64(len(work)))
	WriteJSON(w, http.StatusOK, map[string]any{"work": work})
}

// buildWork packs everything the worker's pipeline needs alongside the
// leased submission: the prompt, the VLM retry count so far, and the
// perceptual-hash windows for duplicate detection.
func (s *Server) buildWork(r *http.Request, sub store.Submission) (evaluator.Work, error) {
	ctx := r.Context()
	prompt, err := s.Store.GetPrompt(ctx, sub.PromptID)
	if err != nil {
		return evaluator.Work{}, err
	}

	item := evaluator.Work{
		Submission:    sub,
		Prompt:        prompt,
		MinerPHashes:  []string{},
		GlobalPHashes: []string{},
	}
	if sub.LeaseExpiresAt != nil {
		item.LeaseExpiresAt = *sub.LeaseExpiresAt
	}

	eval, err := s.Store.GetEvaluation(ctx, sub.ID)
	switch {
	case err == nil:
		item.VLMAttempts = eval.VLMAttempts
	case !errors.Is(err, store.ErrNotFound):
		return evaluator.Work{}, err
	}

	windowCycles := make([]int64, 0, store.DuplicateWindowCycles+1)
	for id := sub.CycleID - store.DuplicateWindowCycles; id <= sub.CycleID; id++ {
		if id >= 1 {
			windowCycles = append(windowCycles, id)
		}
	}
	records, err := s.Store.ScoredPHashes(ctx, windowCycles, phashWindowLimit)
	if err != nil {
		return evaluator.Work{}, err
	}
	for _, rec := range records {
		if rec.MinerUID == sub.MinerUID {
			item.MinerPHashes = append(item.MinerPHashes, rec.PHash)
		} else {
			item.GlobalPHashes = append(item.GlobalPHashes, rec.PHash)
		}
	}
	return item, nil
}

type submitWorkRequest struct {
	WorkerID     string            `json:"worker_id"`
	SubmissionID string            `json:"submission_id"`
	Outcome      evaluator.Outcome `json:"outcome"`
}

func (s *Server) handleEvaluateSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	if req.WorkerID == "" || req.SubmissionID == "" {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "worker_id and submission_id are required")
		return
	}

	outcome := req.Outcome
	switch outcome.Kind {
	case evaluator.OutcomeRetry:
		if err := s.Store.ReleaseLeaseForRetry(r.Context(), req.WorkerID, req.SubmissionID, outcome.VLMAttempts); err != nil {
			WriteDomainError(w, r, err)
			return
		}
		vlmRetriesReleased.Add(1)
	case evaluator.OutcomeScored, evaluator.OutcomeRejected:
		status := store.SubmissionScored
		final := evaluator.FinalScore(outcome.TechnicalScore, outcome.RelevanceScore, outcome.QualityScore)
		if outcome.Kind == evaluator.OutcomeRejected {
			status = store.SubmissionRejected
			final = 0
		}
		err := s.Store.CommitEvaluation(r.Context(), req.WorkerID, store.Evaluation{
			SubmissionID:  req.SubmissionID,
			TechnicalOK:   outcome.TechnicalOK,
			TechScore:     outcome.TechnicalScore,
			RelevanceScr:  outcome.RelevanceScore,
			QualityScore:  outcome.QualityScore,
			FinalScore:    final,
			RejectReason:  outcome.RejectReason,
			ModelVersion:  outcome.ModelVersion,
			PromptVersion: outcome.PromptVersion,
			VLMAttempts:   outcome.VLMAttempts,
			VideoPHash:    outcome.VideoPHash,
		}, status)
		if err != nil {
			WriteDomainError(w, r, err)
			return
		}
		evaluationsCommitted.Add(1)
	default:
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "unknown outcome kind")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renewLeaseRequest struct {
	WorkerID         string `json:"worker_id"`
	SubmissionID     string `json:"submission_id"`
	LeaseDurationSec int    `json:"lease_duration_sec"`
}

func (s *Server) handleEvaluateRenew(w http.ResponseWriter, r *http.Request) {
	var req renewLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	extension := defaultLeaseDuration
	if req.LeaseDurationSec > 0 {
		extension = time.Duration(req.LeaseDurationSec) * time.Second
	}
	if err := s.Store.RenewLease(r.Context(), req.WorkerID, req.SubmissionID, extension); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := s.resolveCycleID(w, r)
	if !ok {
		return
	}
	scores, err := s.Store.GetScores(r.Context(), cycleID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"cycle_id": cycleID,
		"scores":   scores,
	})
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := s.resolveCycleID(w, r)
	if !ok {
		return
	}
	cycle, err := s.Store.GetCycle(r.Context(), cycleID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	if cycle.Status != store.CycleCompleted {
		WriteError(w, r, http.StatusConflict, CodeWrongState, "cycle has no weights yet")
		return
	}
	weights, err := s.Store.GetWeights(r.Context(), cycleID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	floatWeights := make(map[string]float64, len(weights))
	uids := make([]int64, 0, len(weights))
	u16s := make([]int, 0, len(weights))
	for _, wt := range weights {
		floatWeights[strconv.FormatInt(wt.MinerUID, 10)] = wt.Weight
		uids = append(uids, wt.MinerUID)
		u16s = append(u16s, wt.WeightU16)
	}

	resp := map[string]any{
		"cycle_id": cycleID,
		"weights":  floatWeights,
		"weights_u16": map[string]any{
			"uids":    uids,
			"weights": u16s,
		},
	}
	if cycle.BlockNumber != nil {
		resp["block_number"] = *cycle.BlockNumber
	}
	WriteJSON(w, http.StatusOK, resp)
}

type setBlockNumberRequest struct {
	BlockNumber int64 `json:"block_number"`
}

// handleSetBlockNumber records the chain block at which the external
// validator signed a completed cycle's weights.
func (s *Server) handleSetBlockNumber(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := s.resolveCycleID(w, r)
	if !ok {
		return
	}
	var req setBlockNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "malformed JSON body")
		return
	}
	if err := s.Store.SetCycleBlockNumber(r.Context(), cycleID, req.BlockNumber); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMinerRate(w http.ResponseWriter, r *http.Request) {
	minerUID, err := strconv.ParseInt(chi.URLParam(r, "uid"), 10, 64)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "invalid miner uid")
		return
	}
	counter, err := s.Store.RateCounterFor(r.Context(), minerUID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, counter)
}

// resolveCycleID reads {cycle_id} from the route, or resolves "latest"
// routes to the most recently completed cycle.
func (s *Server) resolveCycleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "cycle_id")
	if raw == "" {
		summary, err := s.Store.GetCycleSummary(r.Context())
		if err != nil {
			WriteDomainError(w, r, err)
			return 0, false
		}
		if summary.LastCompleted == nil {
			WriteError(w, r, http.StatusNotFound, CodeNotFound, "no completed cycle yet")
			return 0, false
		}
		return summary.LastCompleted.ID, true
	}
	cycleID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cycleID < 1 {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "invalid cycle id")
		return 0, false
	}
	return cycleID, true
}
