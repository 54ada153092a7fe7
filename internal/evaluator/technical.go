package evaluator

import (
	"math"

	"kibotos/internal/store"
	"kibotos/internal/videoprobe"
)

var validCodecs = map[string]bool{
	"h264": true, "h265": true, "hevc": true, "vp8": true, "vp9": true, "av1": true,
}

var validContainers = map[string]bool{
	"mp4": true, "webm": true, "mov": true, "avi": true, "mkv": true, "matroska": true,
}

// metadataTolerance is how far the probed duration, fps and resolution
// may drift from the declared values before the submission is treated
// as misdescribed.
const metadataTolerance = 0.02

// TechnicalResult is the first stage's output: a pass/fail gate plus a
// graded score blended into the final result.
type TechnicalResult struct {
	Passed bool
	Score  float64
	Reason string
}

// EvaluateTechnical checks the probed video against the declared
// metadata. Any hard failure (bad codec or container, declared values
// off by more than the tolerance) rejects the submission; otherwise
// the score is the mean of the resolution, fps and duration class
// components.
func EvaluateTechnical(sub store.Submission, meta videoprobe.Metadata) TechnicalResult {
	if !validCodecs[meta.Codec] {
		return TechnicalResult{Reason: "unsupported codec " + meta.Codec}
	}
	if !validContainers[meta.Container] {
		return TechnicalResult{Reason: "unsupported container " + meta.Container}
	}
	if !withinTolerance(meta.DurationSec, sub.DurationSec) {
		return TechnicalResult{Reason: "declared duration does not match container"}
	}
	if !withinTolerance(meta.FPS, sub.FPS) {
		return TechnicalResult{Reason: "declared fps does not match container"}
	}
	if !withinTolerance(float64(meta.Width), float64(sub.Width)) ||
		!withinTolerance(float64(meta.Height), float64(sub.Height)) {
		return TechnicalResult{Reason: "declared resolution does not match container"}
	}

	score := (resolutionComponent(meta.Width, meta.Height) +
		fpsComponent(meta.FPS) +
		durationComponent(meta.DurationSec)) / 3.0
	return TechnicalResult{Passed: true, Score: score}
}

func withinTolerance(actual, declared float64) bool {
	if declared == 0 {
		return actual == 0
	}
	return math.Abs(actual-declared)/math.Abs(declared) <= metadataTolerance
}

// resolutionComponent grades the video's resolution class. The
// admission floor is 480x360; anything below that probes as
// misdescribed metadata and never reaches here.
func resolutionComponent(width, height int) float64 {
	switch {
	case height >= 1080 && width >= 1920:
		return 1.0
	case height >= 720 && width >= 1280:
		return 0.9
	case height >= 480:
		return 0.75
	default:
		return 0.5
	}
}

// fpsComponent prefers the 24-60 fps band typical of usable
// demonstration footage.
func fpsComponent(fps float64) float64 {
	switch {
	case fps >= 24 && fps <= 60:
		return 1.0
	case fps >= 15 && fps <= 120:
		return 0.7
	default:
		return 0.0
	}
}

// durationComponent prefers clips long enough to show a complete task
// but short enough to stay information-dense.
func durationComponent(sec float64) float64 {
	switch {
	case sec >= 5 && sec <= 120:
		return 1.0
	case sec >= 1 && sec <= 300:
		return 0.7
	default:
		return 0.0
	}
}
