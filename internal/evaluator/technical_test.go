package evaluator

import (
	"math"
	"testing"

	"kibotos/internal/store"
	"kibotos/internal/videoprobe"
)

func declaredSubmission() store.Submission {
	return store.Submission{
		ID:          "sub-1",
		DurationSec: 30,
		Width:       1920,
		Height:      1080,
		FPS:         30,
		CameraType:  "ego_wrist",
		ActorType:   "human",
	}
}

func matchingMetadata() videoprobe.Metadata {
	return videoprobe.Metadata{
		DurationSec: 30,
		Width:       1920,
		Height:      1080,
		FPS:         30,
		Codec:       "h264",
		Container:   "mp4",
	}
}

func TestEvaluateTechnicalPassesMatchingVideo(t *testing.T) {
	result := EvaluateTechnical(declaredSubmission(), matchingMetadata())
	if !result.Passed {
		t.Fatalf("EvaluateTechnical() = %+v, want passed", result)
	}
	// 1080p + 30fps + 30s all land in the top class of each component.
	if math.Abs(result.Score-1.0) > 1e-9 {
		t.Fatalf("Score = %v, want 1.0", result.Score)
	}
}

func TestEvaluateTechnicalRejectsBadCodec(t *testing.T) {
	meta := matchingMetadata()
	meta.Codec = "mpeg2video"
	result := EvaluateTechnical(declaredSubmission(), meta)
	if result.Passed {
		t.Fatalf("EvaluateTechnical() = %+v, want rejected", result)
	}
}

func TestEvaluateTechnicalRejectsBadContainer(t *testing.T) {
	meta := matchingMetadata()
	meta.Container = "flv"
	if result := EvaluateTechnical(declaredSubmission(), meta); result.Passed {
		t.Fatalf("EvaluateTechnical() = %+v, want rejected", result)
	}
}

func TestEvaluateTechnicalRejectsDurationDrift(t *testing.T) {
	meta := matchingMetadata()
	meta.DurationSec = 32 // 6.7% off the declared 30s
	if result := EvaluateTechnical(declaredSubmission(), meta); result.Passed {
		t.Fatalf("EvaluateTechnical() = %+v, want rejected", result)
	}
}

func TestEvaluateTechnicalToleratesSmallDrift(t *testing.T) {
	meta := matchingMetadata()
	meta.DurationSec = 30.5 // 1.7% off
	if result := EvaluateTechnical(declaredSubmission(), meta); !result.Passed {
		t.Fatalf("EvaluateTechnical() = %+v, want passed", result)
	}
}

func TestEvaluateTechnicalGradesLowerClasses(t *testing.T) {
	sub := declaredSubmission()
	sub.Width, sub.Height = 640, 480
	sub.FPS = 15
	sub.DurationSec = 2

	meta := matchingMetadata()
	meta.Width, meta.Height = 640, 480
	meta.FPS = 15
	meta.DurationSec = 2

	result := EvaluateTechnical(sub, meta)
	if !result.Passed {
		t.Fatalf("EvaluateTechnical() = %+v, want passed", result)
	}
	want := (0.75 + 0.7 + 0.7) / 3.0
	if math.Abs(result.Score-want) > 1e-9 {
		t.Fatalf("Score = %v, want %v", result.Score, want)
	}
}
