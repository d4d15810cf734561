// Package chunker probes source media duration and renders overlapping
// audio chunks by shelling out to ffmpeg/ffprobe subprocesses.
package chunker

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"interviewscribe/internal/hasher"
	"interviewscribe/internal/perr"
)

// Chunker renders overlapping chunk files from a source audio/video file.
type Chunker struct {
	FFmpegPath       string
	FFprobePath      string
	ChunkDurationSec float64
	OverlapSec       float64
	ProbeTimeout     time.Duration
}

// New builds a Chunker with default settings (240s chunks, 1.5s overlap,
// 25s probe timeout) unless overridden.
func New(ffmpegPath, ffprobePath string, chunkDurationSec, overlapSec float64) *Chunker {
	if chunkDurationSec <= 0 {
		chunkDurationSec = 240
	}
	if overlapSec < 0 {
		overlapSec = 1.5
	}
	return &Chunker{
		FFmpegPath:       ffmpegPath,
		FFprobePath:      ffprobePath,
		ChunkDurationSec: chunkDurationSec,
		OverlapSec:       overlapSec,
		ProbeTimeout:     25 * time.Second,
	}
}

// ChunkPlan is one entry of a chunking plan, before the file is rendered.
type ChunkPlan struct {
	Index    int
	StartSec float64
	EndSec   float64
}

// ProbeDuration returns the source's total playable duration in seconds.
// It fails with ParsingFailed if the probe does not complete within the
// bounded wall clock, or if the reported duration is not positive-finite.
func (c *Chunker) ProbeDuration(sourcePath string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		sourcePath,
	)
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return 0, &perr.ParsingFailed{Message: fmt.Sprintf("duration probe timed out efter %.0f s", c.ProbeTimeout.Seconds())}
	}
	if err != nil {
		return 0, &perr.ParsingFailed{Message: fmt.Sprintf("duration probe failed: %v", err)}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0, &perr.ParsingFailed{Message: "duration probe returned a non-positive or non-finite value"}
	}
	return duration, nil
}

// PlanChunks computes the dense, overlapping chunk plan for a source of the
// given duration: step = max(1, chunkDurationSec - overlapSec),
// start = i*step, end = min(duration, start+chunkDurationSec), stopping once
// start >= duration.
func PlanChunks(duration, chunkDurationSec, overlapSec float64) []ChunkPlan {
	step := math.Max(1, chunkDurationSec-overlapSec)
	var plans []ChunkPlan
	for i := 0; ; i++ {
		start := float64(i) * step
		if start >= duration {
			break
		}
		end := math.Min(duration, start+chunkDurationSec)
		plans = append(plans, ChunkPlan{
			Index:    i,
			StartSec: roundMillis(start),
			EndSec:   roundMillis(end),
		})
	}
	return plans
}

// CreateChunks computes the chunk plan for duration and renders each chunk
// into dir as chunk_%04d.m4a (AAC in an MP4 container).
func (c *Chunker) CreateChunks(sourcePath, dir string) (float64, []ChunkPlan, error) {
	duration, err := c.ProbeDuration(sourcePath)
	if err != nil {
		return 0, nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, nil, fmt.Errorf("chunker: create chunk dir: %w", err)
	}

	plans := PlanChunks(duration, c.ChunkDurationSec, c.OverlapSec)

	for _, p := range plans {
		outPath := c.chunkPath(dir, p.Index)
		if err := c.RenderChunk(sourcePath, outPath, p.StartSec, p.EndSec-p.StartSec); err != nil {
			return 0, nil, err
		}
	}

	return duration, plans, nil
}

// chunkPath returns the conventional 0-indexed, 4-digit chunk file path.
func (c *Chunker) chunkPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk_%04d.m4a", index))
}

// ChunkPath is the exported form used by callers rebuilding a path without
// re-rendering (e.g. resume).
func (c *Chunker) ChunkPath(dir string, index int) string { return c.chunkPath(dir, index) }

// RenderChunk replaces any existing file at outPath with durationSec
// seconds of sourcePath starting at startSec, clamping durationSec to a
// minimum of 0.05s.
func (c *Chunker) RenderChunk(sourcePath, outPath string, startSec, durationSec float64) error {
	if durationSec < 0.05 {
		durationSec = 0.05
	}
	_ = os.Remove(outPath)

	cmd := exec.Command(c.FFmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-i", sourcePath,
		"-t", fmt.Sprintf("%.3f", durationSec),
		"-vn",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return &perr.ParsingFailed{Message: fmt.Sprintf("render chunk failed: %v: %s", err, truncate(string(out), 300))}
	}
	return nil
}

// HashChunk computes the content hash (C1) of a rendered chunk file, used
// as a content identity, not as a cryptographic guarantee.
func (c *Chunker) HashChunk(path string) (string, error) {
	return hasher.Hash(path)
}

func roundMillis(v float64) float64 { return math.Round(v*1000) / 1000 }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
