// Package admission validates and admits miner video submissions,
// wrapping the store's transactional AdmitSubmission with the schema
// and signature checks that must pass before a submission ever reaches
// the database.
package admission

type Request struct {
	PromptID          string  `json:"prompt_id"`
	VideoKey          string  `json:"video_key"`
	VideoHash         string  `json:"video_hash"`
	MinerUID          int64   `json:"miner_uid"`
	MinerHotkey       string  `json:"miner_hotkey"`
	Signature         string  `json:"signature"`
	SubmittedAt       string  `json:"submitted_at"` // RFC3339, as supplied by the caller for signature verification
	DurationSec       float64 `json:"duration_sec"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	FPS               float64 `json:"fps"`
	CameraType        string  `json:"camera_type"`
	ActorType         string  `json:"actor_type"`
	ActionDescription *string `json:"action_description,omitempty"`
	CameraIntrinsic   *string `json:"camera_intrinsics,omitempty"`
	RobotModel        *string `json:"robot_model,omitempty"`
	Environment       *string `json:"environment,omitempty"`
	TaskSuccess       *bool   `json:"task_success,omitempty"`
}

var allowedCameraTypes = map[string]bool{
	"ego_head": true, "ego_chest": true, "ego_wrist": true,
	"robot_head": true, "robot_wrist": true,
}

var allowedActorTypes = map[string]bool{
	"human": true, "robot": true, "human_with_robot": true,
}
