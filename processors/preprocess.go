package processors

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"videoChat/core"
	"videoChat/utils"
)

// PlanFrames computes the frame schedule for a video of the given duration:
// floor(duration*rate) frames, frame i captured at i/rate seconds. The
// mapping is deterministic for a fixed duration and rate.
func PlanFrames(durationSec, rate float64, outDir string) []core.Frame {
	n := int(math.Floor(durationSec * rate))
	frames := make([]core.Frame, 0, n)
	for i := 0; i < n; i++ {
		name := core.FrameName(i)
		frames = append(frames, core.Frame{
			FileName:     name,
			Path:         filepath.Join(outDir, name),
			TimestampSec: float64(i) / rate,
		})
	}
	return frames
}

// SampleFrames decodes the video once and writes the planned frames as
// frame_%05d.png into outDir. The stage is all-or-nothing: on decode failure
// any frames already written are removed.
func SampleFrames(ctx context.Context, videoPath, outDir string, rate float64) (map[string]core.Frame, error) {
	dur, err := utils.ProbeDuration(ctx, videoPath)
	if err != nil {
		return nil, &core.DecodeError{Path: videoPath, Err: err}
	}

	plan := PlanFrames(dur, rate, outDir)
	if len(plan) == 0 {
		return map[string]core.Frame{}, nil
	}

	// A single sequential decode via the fps filter, capped at the planned
	// count so the mapping stays exact.
	pattern := filepath.Join(outDir, "frame_%05d.png")
	args := []string{
		"-y", "-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", rate),
		"-frames:v", fmt.Sprintf("%d", len(plan)),
		"-start_number", "0",
		pattern,
	}
	if err := utils.RunFFmpeg(ctx, args); err != nil {
		removeFrames(plan)
		return nil, &core.DecodeError{Path: videoPath, Err: err}
	}

	frames := make(map[string]core.Frame, len(plan))
	for _, f := range plan {
		if _, err := os.Stat(f.Path); err != nil {
			removeFrames(plan)
			return nil, &core.DecodeError{Path: videoPath, Err: fmt.Errorf("expected frame %s not written: %w", f.FileName, err)}
		}
		frames[f.FileName] = f
	}
	return frames, nil
}

func removeFrames(plan []core.Frame) {
	for _, f := range plan {
		_ = os.Remove(f.Path)
	}
}

// ExtractAudio demuxes the audio track to a mono 16 kHz wav. A container
// without an audio track yields a DecodeError with NoAudio set, which the
// pipeline treats as an empty transcript rather than a failure.
func ExtractAudio(ctx context.Context, videoPath, audioOut string) error {
	hasAudio, err := utils.HasAudioStream(ctx, videoPath)
	if err != nil {
		return &core.DecodeError{Path: videoPath, Err: err}
	}
	if !hasAudio {
		return &core.DecodeError{Path: videoPath, NoAudio: true, Err: fmt.Errorf("container has no audio stream")}
	}

	if err := os.MkdirAll(filepath.Dir(audioOut), 0755); err != nil {
		return &core.DecodeError{Path: videoPath, Err: err}
	}
	args := []string{"-y", "-i", videoPath, "-vn", "-ac", "1", "-ar", "16000", "-f", "wav", audioOut}
	if err := utils.RunFFmpeg(ctx, args); err != nil {
		return &core.DecodeError{Path: videoPath, Err: err}
	}
	return nil
}
