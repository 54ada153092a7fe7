package store

import "time"

type CycleStatus string

const (
	CycleActive     CycleStatus = "ACTIVE"
	CycleEvaluating CycleStatus = "EVALUATING"
	CycleCompleted  CycleStatus = "COMPLETED"
)

type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "PENDING"
	SubmissionEvaluating SubmissionStatus = "EVALUATING"
	SubmissionScored     SubmissionStatus = "SCORED"
	SubmissionRejected   SubmissionStatus = "REJECTED"
)

type Cycle struct {
	ID           int64       `json:"id"`
	Status       CycleStatus `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	EvaluatingAt *time.Time  `json:"evaluating_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	BlockNumber  *int64      `json:"block_number,omitempty"`
}

// CycleSummary is the aggregate view behind GET /v1/cycles/status: the
// current ACTIVE and EVALUATING cycles (if any), the most recently
// completed one, and the lifetime cycle count.
type CycleSummary struct {
	Active        *Cycle `json:"active,omitempty"`
	Evaluating    *Cycle `json:"evaluating,omitempty"`
	LastCompleted *Cycle `json:"last_completed,omitempty"`
	Total         int64  `json:"total"`
}

// PromptRequirements bounds what a submitted video must look like for a
// given prompt. Zero values mean "no prompt-specific requirement"; the
// global admission bounds still apply.
type PromptRequirements struct {
	MinDuration float64 `json:"min_duration,omitempty"`
	MaxDuration float64 `json:"max_duration,omitempty"`
	MinWidth    int     `json:"min_width,omitempty"`
	MinHeight   int     `json:"min_height,omitempty"`
	MinFPS      float64 `json:"min_fps,omitempty"`
	MaxFPS      float64 `json:"max_fps,omitempty"`
}

type Prompt struct {
	ID               string             `json:"id"`
	Category         string             `json:"category"`
	Task             string             `json:"task"`
	Scenario         string             `json:"scenario"`
	Requirements     PromptRequirements `json:"requirements"`
	Weight           float64            `json:"weight"`
	Active           bool               `json:"active"`
	CreatedAt        time.Time          `json:"created_at"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	TotalSubmissions int64              `json:"total_submissions"`
}

type PromptCategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type Submission struct {
	ID                string           `json:"id"`
	CycleID           int64            `json:"cycle_id"`
	PromptID          string           `json:"prompt_id"`
	MinerUID          int64            `json:"miner_uid"`
	MinerHotkey       string           `json:"miner_hotkey"`
	VideoHash         string           `json:"video_hash"`
	VideoKey          string           `json:"video_key"`
	DurationSec       float64          `json:"duration_sec"`
	Width             int              `json:"width"`
	Height            int              `json:"height"`
	FPS               float64          `json:"fps"`
	CameraType        string           `json:"camera_type"`
	ActorType         string           `json:"actor_type"`
	ActionDescription *string          `json:"action_description,omitempty"`
	CameraIntrinsic   *string          `json:"camera_intrinsics,omitempty"`
	RobotModel        *string          `json:"robot_model,omitempty"`
	Environment       *string          `json:"environment,omitempty"`
	TaskSuccess       *bool            `json:"task_success,omitempty"`
	Status            SubmissionStatus `json:"status"`
	SubmittedAt       time.Time        `json:"submitted_at"`
	EvaluatedAt       *time.Time       `json:"evaluated_at,omitempty"`
	LeaseOwner        *string          `json:"-"`
	LeaseExpiresAt    *time.Time       `json:"-"`
}

type Evaluation struct {
	SubmissionID  string    `json:"submission_id"`
	TechnicalOK   bool      `json:"technical_ok"`
	TechScore     float64   `json:"technical_score"`
	RelevanceScr  float64   `json:"relevance_score"`
	QualityScore  float64   `json:"quality_score"`
	FinalScore    float64   `json:"final_score"`
	RejectReason  string    `json:"reject_reason,omitempty"`
	ModelVersion  string    `json:"model_version"`
	PromptVersion string    `json:"prompt_version"`
	VLMAttempts   int       `json:"vlm_attempts"`
	VideoPHash    string    `json:"-"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

type CycleWeight struct {
	CycleID   int64     `json:"cycle_id"`
	MinerUID  int64     `json:"miner_uid"`
	Weight    float64   `json:"weight"`
	WeightU16 int       `json:"weight_u16"`
	CreatedAt time.Time `json:"created_at"`
}

type MinerCycleScore struct {
	CycleID             int64   `json:"cycle_id"`
	MinerUID            int64   `json:"miner_uid"`
	TotalSubmissions    int64   `json:"total_submissions"`
	AcceptedSubmissions int64   `json:"accepted_submissions"`
	AvgScore            float64 `json:"avg_score"`
	TotalScore          float64 `json:"total_score"`
}

// PHashRecord pairs a scored submission's perceptual hash with its
// miner, for the duplicate-neighborhood check in the quality stage.
type PHashRecord struct {
	SubmissionID string `json:"submission_id"`
	MinerUID     int64  `json:"miner_uid"`
	PHash        string `json:"phash"`
}

type RateCounter struct {
	MinerUID    int64     `json:"miner_uid"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}
