// Package videoprobe extracts container metadata and keyframes from
// local video files by shelling out to ffprobe and ffmpeg.
package videoprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is the fixed record a probe returns for one video file.
type Metadata struct {
	DurationSec float64
	Width       int
	Height      int
	FPS         float64
	Codec       string
	Container   string
	SizeBytes   int64
	HasAudio    bool
}

type Prober struct {
	ffprobePath string
	ffmpegPath  string
}

func New() (*Prober, error) {
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return &Prober{ffprobePath: ffprobe, ffmpegPath: ffmpeg}, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
}

// Probe runs ffprobe on a local file and returns its metadata.
func (p *Prober) Probe(ctx context.Context, path string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var meta Metadata
	videoFound := false
	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			meta.Width = stream.Width
			meta.Height = stream.Height
			meta.Codec = strings.ToLower(stream.CodecName)
			meta.FPS = parseFrameRate(stream.RFrameRate)
			if meta.FPS == 0 {
				meta.FPS = parseFrameRate(stream.AvgFrameRate)
			}
		case "audio":
			meta.HasAudio = true
		}
	}
	if !videoFound {
		return Metadata{}, fmt.Errorf("no video stream in %s", path)
	}

	meta.DurationSec, _ = strconv.ParseFloat(out.Format.Duration, 64)
	meta.SizeBytes, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	// format_name is a comma-joined alias list, e.g. "mov,mp4,m4a,3gp".
	meta.Container = strings.ToLower(strings.Split(out.Format.FormatName, ",")[0])
	return meta, nil
}

// ExtractKeyframes decodes n JPEG frames at uniform offsets across the
// video. Offsets are centered in each of the n equal segments so the
// first and last frames are not degenerate boundary frames.
func (p *Prober) ExtractKeyframes(ctx context.Context, path string, n int) ([][]byte, error) {
	if n < 1 {
		n = 1
	}
	meta, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta.DurationSec <= 0 {
		return nil, fmt.Errorf("cannot extract keyframes: zero duration")
	}

	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		offset := meta.DurationSec * (float64(i) + 0.5) / float64(n)
		cmd := exec.CommandContext(ctx, p.ffmpegPath,
			"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
			"-i", path,
			"-frames:v", "1",
			"-q:v", "4",
			"-f", "image2",
			"-c:v", "mjpeg",
			"pipe:1",
		)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("ffmpeg keyframe at %.3fs: %w: %s", offset, err, strings.TrimSpace(stderr.String()))
		}
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("ffmpeg produced no frame at %.3fs", offset)
		}
		frames = append(frames, stdout.Bytes())
	}
	return frames, nil
}

func parseFrameRate(raw string) float64 {
	num, den, found := strings.Cut(raw, "/")
	if !found {
		f, _ := strconv.ParseFloat(raw, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
