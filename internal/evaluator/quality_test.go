package evaluator

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func encodeFrame(t *testing.T, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func halfToneFrame(t *testing.T) []byte {
	return encodeFrame(t, func(x, y int) color.Color {
		if x < 16 {
			return color.Black
		}
		return color.White
	})
}

func invertedFrame(t *testing.T) []byte {
	return encodeFrame(t, func(x, y int) color.Color {
		if x < 16 {
			return color.White
		}
		return color.Black
	})
}

func TestVideoPHashIsDeterministic(t *testing.T) {
	frames := [][]byte{halfToneFrame(t), invertedFrame(t)}
	a := VideoPHash(frames)
	b := VideoPHash(frames)
	if a != b {
		t.Fatalf("VideoPHash() not deterministic: %q vs %q", a, b)
	}
	if len(a) != 2*16 {
		t.Fatalf("len = %d, want 16 hex chars per frame", len(a))
	}
}

func TestPHashSimilarityIdentical(t *testing.T) {
	h := VideoPHash([][]byte{halfToneFrame(t)})
	if sim := PHashSimilarity(h, h); sim != 1.0 {
		t.Fatalf("PHashSimilarity(h, h) = %v, want 1.0", sim)
	}
}

func TestPHashSimilarityInvertedFramesDiffer(t *testing.T) {
	a := VideoPHash([][]byte{halfToneFrame(t)})
	b := VideoPHash([][]byte{invertedFrame(t)})
	if sim := PHashSimilarity(a, b); sim > 0.2 {
		t.Fatalf("PHashSimilarity(inverted) = %v, want near 0", sim)
	}
}

func TestPHashSimilarityBadInput(t *testing.T) {
	if sim := PHashSimilarity("zz", "zz"); sim != 0 {
		t.Fatalf("PHashSimilarity(bad hex) = %v, want 0", sim)
	}
	if sim := PHashSimilarity("", ""); sim != 0 {
		t.Fatalf("PHashSimilarity(empty) = %v, want 0", sim)
	}
}

func TestEvaluateQualityPenalizesNearDuplicate(t *testing.T) {
	h := VideoPHash([][]byte{halfToneFrame(t), halfToneFrame(t)})
	result := EvaluateQuality(h, []string{h}, nil)
	if !result.NearDuplicate {
		t.Fatalf("EvaluateQuality() = %+v, want near-duplicate", result)
	}
	if result.Score != 0 {
		t.Fatalf("Score = %v, want 0 for exact duplicate", result.Score)
	}
}

func TestEvaluateQualityPassesOriginal(t *testing.T) {
	a := VideoPHash([][]byte{halfToneFrame(t)})
	b := VideoPHash([][]byte{invertedFrame(t)})
	result := EvaluateQuality(a, nil, []string{b})
	if result.NearDuplicate || result.Score != 1.0 {
		t.Fatalf("EvaluateQuality() = %+v, want original with score 1.0", result)
	}
}

func TestEvaluateQualityEmptyWindows(t *testing.T) {
	h := strings.Repeat("ab", 8)
	result := EvaluateQuality(h, nil, nil)
	if result.Score != 1.0 {
		t.Fatalf("EvaluateQuality() = %+v, want 1.0 with no neighbors", result)
	}
}
