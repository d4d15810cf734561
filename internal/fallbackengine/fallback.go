// Package fallbackengine recognizes a chunk's audio locally via
// whisper.cpp, then alternates sentences across two synthetic speakers and
// applies the coarse pause-vs-continue quality gate. It never claims real
// diarization knowledge.
package fallbackengine

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/wav"

	"interviewscribe/internal/model"
	"interviewscribe/internal/perr"
)

// Engine is the local fallback speech recognizer.
type Engine struct {
	ModelPath  string
	FFmpegPath string

	model whisper.Model
}

// New records the whisper.cpp model path. The model is loaded on first
// use by Recognize, so a missing model surfaces as FallbackUnavailable
// rather than at construction time.
func New(modelPath, ffmpegPath string) *Engine {
	return &Engine{ModelPath: modelPath, FFmpegPath: ffmpegPath}
}

func (e *Engine) ensureModel() error {
	if e.model != nil {
		return nil
	}
	m, err := whisper.New(e.ModelPath)
	if err != nil {
		return &perr.FallbackUnavailable{Message: fmt.Sprintf("could not load local model: %v", err)}
	}
	e.model = m
	return nil
}

// ensureWAV converts chunkPath to a temporary mono 16kHz WAV file and
// returns its path plus a cleanup func.
func (e *Engine) ensureWAV(chunkPath string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "fallback-*.wav")
	if err != nil {
		return "", nil, &perr.FallbackUnavailable{Message: err.Error()}
	}
	wavPath := tmp.Name()
	tmp.Close()

	cmd := exec.Command(e.FFmpegPath, "-y", "-i", chunkPath, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", wavPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(wavPath)
		return "", nil, &perr.FallbackUnavailable{Message: fmt.Sprintf("wav conversion failed: %v: %s", err, string(out))}
	}
	cleanup := func() { os.Remove(wavPath) }
	return wavPath, cleanup, nil
}

func readAudioSamples(wavPath string) ([]float32, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, &perr.FallbackUnavailable{Message: err.Error()}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &perr.FallbackUnavailable{Message: fmt.Sprintf("decode wav: %v", err)}
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// Result is the fallback's best-effort recognition plus the quality-gate
// verdict.
type Result struct {
	Segments   []model.RawSegment
	Confidence float64
	Passed     bool
}

var sentenceBoundary = regexp.MustCompile(`[.!?;]+`)

// Recognize transcribes chunkPath to a single text string, splits it into
// sentences, and alternates them across speaker_0/speaker_1, estimating a
// duration of max(2.0, 240/N) seconds per sentence. It then applies the
// quality gate: speakers >= 1, segments >= 1, coverage 0.90 if segments >= 2
// else 0.86, passed iff segments >= 1.
func (e *Engine) Recognize(chunkPath string) (*Result, error) {
	if err := e.ensureModel(); err != nil {
		return nil, err
	}

	wavPath, cleanup, err := e.ensureWAV(chunkPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	samples, err := readAudioSamples(wavPath)
	if err != nil {
		return nil, err
	}

	ctx, err := e.model.NewContext()
	if err != nil {
		return nil, &perr.FallbackUnavailable{Message: fmt.Sprintf("whisper context: %v", err)}
	}
	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return nil, &perr.FallbackUnavailable{Message: fmt.Sprintf("whisper process: %v", err)}
	}

	var builder strings.Builder
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			break
		}
		builder.WriteString(seg.Text)
		builder.WriteString(" ")
	}

	sentences := splitSentences(builder.String())
	segments := alternateSpeakers(sentences)

	n := len(segments)
	coverage := 0.86
	if n >= 2 {
		coverage = 0.90
	}
	speakers := 1
	if n >= 2 {
		speakers = 2
	}
	passed := n >= 1

	if !passed {
		return nil, &perr.LowSpeakerConfidence{Message: "fallback produced no usable segments"}
	}

	return &Result{Segments: segments, Confidence: coverage, Passed: passed && speakers >= 1}, nil
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	var out []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if strings.TrimSpace(sentenceBoundary.ReplaceAllString(p, "")) != "" {
			out = append(out, p)
		}
	}
	prev := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		add(text[prev:loc[1]])
		prev = loc[1]
	}
	add(text[prev:])
	return out
}

func alternateSpeakers(sentences []string) []model.RawSegment {
	n := len(sentences)
	if n == 0 {
		return nil
	}
	dur := math.Max(2.0, 240.0/float64(n))

	out := make([]model.RawSegment, 0, n)
	cursor := 0.0
	for i, s := range sentences {
		speaker := "speaker_0"
		if i%2 == 1 {
			speaker = "speaker_1"
		}
		out = append(out, model.RawSegment{
			StartSec:  cursor,
			EndSec:    cursor + dur,
			SpeakerID: speaker,
			Text:      s,
		})
		cursor += dur
	}
	return out
}
