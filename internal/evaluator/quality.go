package evaluator

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"math/bits"
)

// nearDuplicateThreshold is the per-video frame-hash similarity above
// which two videos are treated as near-duplicates.
const nearDuplicateThreshold = 0.90

// VideoPHash computes a perceptual signature for a video: a 64-bit
// average-hash per keyframe, hex-concatenated in frame order. Frames
// that fail to decode contribute a zero hash rather than failing the
// whole signature.
func VideoPHash(keyframes [][]byte) string {
	var out []byte
	for _, frame := range keyframes {
		h, err := frameAverageHash(frame)
		if err != nil {
			h = 0
		}
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(h >> (56 - 8*i))
		}
		out = append(out, buf[:]...)
	}
	return hex.EncodeToString(out)
}

// frameAverageHash downsamples a frame to an 8x8 grayscale grid and
// sets one bit per cell brighter than the grid mean.
func frameAverageHash(jpegBytes []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		return 0, fmt.Errorf("decode keyframe: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0, fmt.Errorf("empty keyframe")
	}

	var cells [64]float64
	for cy := 0; cy < 8; cy++ {
		for cx := 0; cx < 8; cx++ {
			x0 := bounds.Min.X + cx*w/8
			x1 := bounds.Min.X + (cx+1)*w/8
			y0 := bounds.Min.Y + cy*h/8
			y1 := bounds.Min.Y + (cy+1)*h/8
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
				}
			}
			cells[cy*8+cx] = sum / float64((x1-x0)*(y1-y0))
		}
	}

	var mean float64
	for _, c := range cells {
		mean += c
	}
	mean /= 64

	var hash uint64
	for i, c := range cells {
		if c > mean {
			hash |= 1 << (63 - i)
		}
	}
	return hash, nil
}

// PHashSimilarity compares two video signatures frame by frame and
// returns the fraction of matching bits across the overlapping frames,
// in [0,1]. Signatures with no overlapping frames compare as 0.
func PHashSimilarity(a, b string) float64 {
	ab, errA := hex.DecodeString(a)
	bb, errB := hex.DecodeString(b)
	if errA != nil || errB != nil {
		return 0
	}
	n := len(ab)
	if len(bb) < n {
		n = len(bb)
	}
	n -= n % 8
	if n == 0 {
		return 0
	}

	matching := 0
	for i := 0; i < n; i++ {
		matching += 8 - bits.OnesCount8(ab[i]^bb[i])
	}
	return float64(matching) / float64(n*8)
}

// QualityResult is the duplicate-detection stage's output.
type QualityResult struct {
	Score          float64
	NearDuplicate  bool
	BestSimilarity float64
}

// EvaluateQuality searches the candidate signature against the
// same-miner and global windows of previously scored submissions. A
// near-duplicate drags the score down to 1 - similarity; an original
// video scores 1.0. Synthetic-video detection would compose here as a
// further penalty.
func EvaluateQuality(candidate string, minerWindow, globalWindow []string) QualityResult {
	best := 0.0
	for _, window := range [][]string{minerWindow, globalWindow} {
		for _, other := range window {
			if sim := PHashSimilarity(candidate, other); sim > best {
				best = sim
			}
		}
	}
	if best >= nearDuplicateThreshold {
		return QualityResult{Score: clamp01(1 - best), NearDuplicate: true, BestSimilarity: best}
	}
	return QualityResult{Score: 1.0, BestSimilarity: best}
}
