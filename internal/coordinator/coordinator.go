// Package coordinator drives the single-job state machine: it owns the
// only Store handle during a run, dispatches chunks to the remote engine
// with local fallback, checkpoints progress, and merges the final
// transcript. At most one job runs at a time; concurrent start attempts
// fail immediately with a Busy error.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"interviewscribe/internal/chunker"
	"interviewscribe/internal/editorparser"
	"interviewscribe/internal/fallbackengine"
	"interviewscribe/internal/mergeengine"
	"interviewscribe/internal/model"
	"interviewscribe/internal/perr"
	"interviewscribe/internal/remoteengine"
	"interviewscribe/internal/store"
	"interviewscribe/pkg/logger"
)

// RemoteEngineFactory builds a per-job RemoteEngine bound to the supplied
// API key (jobs may use different keys; the Coordinator itself is
// stateless with respect to secrets, which are an out-of-scope vault).
type RemoteEngineFactory func(apiKey string) *remoteengine.Engine

// Coordinator is the single authority over Store mutations and job
// progress. Callers never hold their own Store handle.
type Coordinator struct {
	store       *store.Store
	chunker     *chunker.Chunker
	fallback    *fallbackengine.Engine
	newRemote   RemoteEngineFactory
	broadcaster *broadcaster

	sem *semaphore.Weighted

	mu         sync.Mutex
	activeJob  string
	cancelFunc context.CancelFunc
}

// New builds a Coordinator over store, using chunker for media chunking,
// fallback for local recognition, and newRemote to build a RemoteEngine
// scoped to a job's supplied API key.
func New(st *store.Store, ch *chunker.Chunker, fb *fallbackengine.Engine, newRemote RemoteEngineFactory) *Coordinator {
	return &Coordinator{
		store:       st,
		chunker:     ch,
		fallback:    fb,
		newRemote:   newRemote,
		broadcaster: newBroadcaster(),
		sem:         semaphore.NewWeighted(1),
	}
}

// ProgressStream subscribes to every future progress event, in emission
// order, across all jobs. The returned func releases the subscription.
func (c *Coordinator) ProgressStream() (<-chan model.ProgressEvent, func()) {
	return c.broadcaster.Subscribe()
}

// StartJob refuses if a job is already active, validates the API key when
// useRemote is set, copies sourcePath into the job directory, creates the
// job row, and spawns the runner.
func (c *Coordinator) StartJob(ctx context.Context, sourcePath string, apiKey string, useRemote bool, roleConfig model.SpeakerRoleConfig) (string, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return "", &perr.SourceMissing{Path: sourcePath}
	}
	if useRemote && apiKey == "" {
		return "", &perr.APIKeyMissing{}
	}
	if useRemote {
		if err := c.newRemote(apiKey).ValidateAPIKey(ctx); err != nil {
			return "", err
		}
	}
	if !c.sem.TryAcquire(1) {
		return "", &perr.Busy{}
	}

	jobID := newJobID()
	destDir := c.store.SourceDir(jobID)
	destPath := filepath.Join(destDir, filepath.Base(sourcePath))

	job := &model.Job{
		ID:               jobID,
		SourcePath:       destPath,
		SourceName:       filepath.Base(sourcePath),
		Status:           model.JobQueued,
		InterviewerCount: roleConfig.Interviewers,
		ParticipantCount: roleConfig.Participants,
	}
	if err := c.store.CreateJob(ctx, job); err != nil {
		c.sem.Release(1)
		return "", err
	}
	if err := copyFile(sourcePath, destPath); err != nil {
		c.sem.Release(1)
		return "", fmt.Errorf("coordinator: copy source into job directory: %w", err)
	}
	if hash, err := c.chunker.HashChunk(destPath); err == nil {
		job.SourceHash = hash
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.activeJob = jobID
	c.cancelFunc = cancel
	c.mu.Unlock()

	go c.run(runCtx, jobID, apiKey, useRemote, roleConfig, false)
	return jobID, nil
}

// ResumeLatest re-enters the runner for the latest auto-resumable job
// (excludes pausedRetryRemote, which requires an explicit operator retry).
func (c *Coordinator) ResumeLatest(ctx context.Context, apiKey string) (string, error) {
	job, err := c.store.LatestAutoResumableJob(ctx)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", nil
	}
	useRemote := apiKey != ""
	if !c.sem.TryAcquire(1) {
		return "", &perr.Busy{}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.activeJob = job.ID
	c.cancelFunc = cancel
	c.mu.Unlock()

	roleConfig := model.SpeakerRoleConfig{Interviewers: job.InterviewerCount, Participants: job.ParticipantCount}
	go c.run(runCtx, job.ID, apiKey, useRemote, roleConfig, true)
	return job.ID, nil
}

// SwapRoles flips every final segment's role and persists the change.
func (c *Coordinator) SwapRoles(ctx context.Context, jobID string) (*model.Job, error) {
	return c.store.ToggleSwapRoles(ctx, jobID)
}

// UpdateTranscript parses editorText against the job's prior transcript
// and persists the result.
func (c *Coordinator) UpdateTranscript(ctx context.Context, jobID string, editorText string) (*model.Job, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("coordinator: job %s not found", jobID)
	}
	transcript, err := editorparser.Parse(editorText, job.Transcript)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetFinalTranscript(ctx, jobID, transcript, job.Status); err != nil {
		return nil, err
	}
	job.Transcript = transcript
	return job, nil
}

// JobResult returns a job's full record, including its final transcript
// once ready.
func (c *Coordinator) JobResult(ctx context.Context, jobID string) (*model.Job, error) {
	return c.store.GetJob(ctx, jobID)
}

func (c *Coordinator) releaseActive(jobID string) {
	c.mu.Lock()
	if c.activeJob == jobID {
		c.activeJob = ""
		c.cancelFunc = nil
	}
	c.mu.Unlock()
	c.sem.Release(1)
}

func (c *Coordinator) emit(evt model.ProgressEvent) {
	c.broadcaster.Emit(evt)
}

// run is the runner algorithm: preprocess, transcribe each chunk in
// ascending index order with remote-then-fallback, then merge.
func (c *Coordinator) run(ctx context.Context, jobID, apiKey string, useRemote bool, roleConfig model.SpeakerRoleConfig, resuming bool) {
	defer c.releaseActive(jobID)
	started := time.Now()

	job, err := c.store.GetJob(ctx, jobID)
	if err != nil || job == nil {
		logger.Error("coordinator: run could not load job", "job_id", jobID, "error", err)
		return
	}

	if _, statErr := os.Stat(job.SourcePath); statErr != nil {
		c.fail(ctx, jobID, &perr.SourceMissing{Path: job.SourcePath})
		return
	}

	if !resuming {
		if err := c.purgeOrphanReadyJobs(ctx); err != nil {
			logger.Warn("coordinator: purge orphan ready jobs failed", "error", err)
		}
	}

	c.setStatus(ctx, jobID, model.JobPreprocessing, model.StagePreprocess, 5, "preprocessing")

	chunks, err := c.store.ListChunks(ctx, jobID)
	if err != nil {
		c.fail(ctx, jobID, err)
		return
	}
	if len(chunks) == 0 {
		duration, plans, err := c.chunker.CreateChunks(job.SourcePath, c.store.ChunksDir(jobID))
		if err != nil {
			c.fail(ctx, jobID, err)
			return
		}
		if err := c.store.UpdateJobMetadata(ctx, jobID, duration, len(plans)); err != nil {
			c.fail(ctx, jobID, err)
			return
		}
		for _, p := range plans {
			ch := &model.Chunk{
				JobID: jobID, Index: p.Index, StartSec: p.StartSec, EndSec: p.EndSec,
				ChunkPath: c.chunker.ChunkPath(c.store.ChunksDir(jobID), p.Index),
				Status:    model.ChunkQueued,
			}
			if hash, err := c.chunker.HashChunk(ch.ChunkPath); err == nil {
				ch.ChunkHash = hash
			}
			if err := c.store.UpsertChunk(ctx, ch); err != nil {
				c.fail(ctx, jobID, err)
				return
			}
		}
		chunks, err = c.store.ListChunks(ctx, jobID)
		if err != nil {
			c.fail(ctx, jobID, err)
			return
		}
	} else if job.DurationSec == 0 {
		if duration, err := c.chunker.ProbeDuration(job.SourcePath); err == nil {
			_ = c.store.UpdateJobMetadata(ctx, jobID, duration, len(chunks))
		}
	}

	total := len(chunks)
	processed := 0
	var remote *remoteengine.Engine
	if useRemote {
		remote = c.newRemote(apiKey)
	}

	for _, ch := range chunks {
		if ch.Status == model.ChunkDone {
			processed++
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := os.Stat(ch.ChunkPath); err != nil {
			if err := c.chunker.RenderChunk(job.SourcePath, ch.ChunkPath, ch.StartSec, ch.EndSec-ch.StartSec); err != nil {
				c.fail(ctx, jobID, err)
				return
			}
		}

		ch.AttemptCount++
		chunkStart := time.Now()
		segments, confidence, engine, err := c.transcribeChunk(ctx, jobID, ch, remote, useRemote)
		if err != nil {
			var lowConf *perr.LowSpeakerConfidence
			if errors.As(err, &lowConf) && useRemote {
				ch.Status = model.ChunkPausedRetryRemote
				_ = c.store.UpsertChunk(ctx, ch)
				_ = c.store.UpdateJobStatus(ctx, jobID, model.JobPausedRetryRemote, lowConf.Error())
				logger.JobPaused(jobID, ch.Index, lowConf.Error())
				c.emit(model.ProgressEvent{
					JobID: jobID, Status: model.JobPausedRetryRemote, Stage: model.StageTranscribe,
					Percent: progressPercent(processed, total), ChunksDone: processed, ChunksTotal: total,
					Message: lowConf.Error(),
				})
				return
			}
			c.fail(ctx, jobID, err)
			return
		}

		ch.Status = model.ChunkDone
		ch.Engine = engine
		ch.Confidence = confidence
		ch.Transcript = globalizeSegments(segments, ch.StartSec)
		if err := c.store.UpsertChunk(ctx, ch); err != nil {
			c.fail(ctx, jobID, err)
			return
		}
		if err := c.store.IncrementChunksDone(ctx, jobID); err != nil {
			c.fail(ctx, jobID, err)
			return
		}
		_ = c.store.WriteCheckpoint(jobID, fmt.Sprintf("chunk_%04d.json", ch.Index), model.ChunkCheckpoint{
			JobID: jobID, ChunkIndex: ch.Index, Engine: ch.Engine, Segments: ch.Transcript,
		})

		processed++
		elapsed := time.Since(started)
		avgRuntime := elapsed / time.Duration(processed)
		remaining := total - processed
		etaSec := avgRuntime.Seconds() * float64(remaining)
		logger.Performance("chunk transcribed", time.Since(chunkStart), "job_id", jobID, "chunk", ch.Index)

		eta := etaSec
		c.emit(model.ProgressEvent{
			JobID: jobID, Status: model.JobTranscribingRemote, Stage: model.StageTranscribe,
			Percent: progressPercent(processed, total), ETASeconds: &eta,
			ChunksDone: processed, ChunksTotal: total, Message: "chunk transcribed",
		})
	}

	c.mergeAndFinish(ctx, jobID, roleConfig, total, started)
}

func (c *Coordinator) transcribeChunk(ctx context.Context, jobID string, ch *model.Chunk, remote *remoteengine.Engine, useRemote bool) ([]model.RawSegment, float64, model.Engine, error) {
	logger.ChunkAttempt(jobID, ch.Index, ch.AttemptCount, "remote")
	if useRemote {
		_ = c.store.UpdateJobStatus(ctx, jobID, model.JobTranscribingRemote, "")
		segments, confidence, err := remote.TranscribeChunk(ctx, ch.ChunkPath)
		if err == nil {
			return segments, confidence, model.EngineRemote, nil
		}
		logger.Warn("remote transcription failed, falling back", "job_id", jobID, "chunk", ch.Index, "error", err)
	}

	logger.ChunkAttempt(jobID, ch.Index, ch.AttemptCount, "fallback")
	_ = c.store.UpdateJobStatus(ctx, jobID, model.JobTranscribingFallback, "")
	result, err := c.fallback.Recognize(ch.ChunkPath)
	if err != nil {
		return nil, 0, model.EngineFallback, err
	}
	return result.Segments, result.Confidence, model.EngineFallback, nil
}

func (c *Coordinator) mergeAndFinish(ctx context.Context, jobID string, roleConfig model.SpeakerRoleConfig, total int, started time.Time) {
	c.setStatus(ctx, jobID, model.JobMerging, model.StageMerge, 95, "merging")

	chunks, err := c.store.ListChunks(ctx, jobID)
	if err != nil {
		c.fail(ctx, jobID, err)
		return
	}
	var all []model.RawSegment
	for _, ch := range chunks {
		all = append(all, ch.Transcript...)
	}
	final := mergeengine.Merge(all, roleConfig)

	if err := c.store.SetFinalTranscript(ctx, jobID, final, model.JobReady); err != nil {
		c.fail(ctx, jobID, err)
		return
	}
	job, _ := c.store.GetJob(ctx, jobID)
	durationSec := 0.0
	if job != nil {
		durationSec = job.DurationSec
	}
	_ = c.store.WriteCheckpoint(jobID, "result.json", model.ResultCheckpoint{
		JobID: jobID, SourcePath: job.SourcePath, DurationSec: durationSec, Transcript: final,
	})

	logger.JobCompleted(jobID, time.Since(started), total)
	c.emit(model.ProgressEvent{
		JobID: jobID, Status: model.JobReady, Stage: model.StageExport, Percent: 100,
		ChunksDone: total, ChunksTotal: total, Message: "ready",
	})
}

func (c *Coordinator) fail(ctx context.Context, jobID string, err error) {
	_ = c.store.UpdateJobStatus(ctx, jobID, model.JobFailed, err.Error())
	logger.JobFailed(jobID, 0, err)
	c.emit(model.ProgressEvent{JobID: jobID, Status: model.JobFailed, Stage: model.StageTranscribe, Percent: 0, Message: err.Error()})
}

func (c *Coordinator) setStatus(ctx context.Context, jobID string, status model.JobStatus, stage model.ProgressStage, percent float64, message string) {
	_ = c.store.UpdateJobStatus(ctx, jobID, status, "")
	c.emit(model.ProgressEvent{JobID: jobID, Status: status, Stage: stage, Percent: percent, Message: message})
}

// purgeOrphanReadyJobs removes job directories left behind on disk with no
// matching row (e.g. a crash between CreateJob's directory creation and a
// later failure), so a fresh run starts without stale directories.
func (c *Coordinator) purgeOrphanReadyJobs(ctx context.Context) error {
	jobsDir := filepath.Join(c.store.AppDataDir(), "jobs")
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	known, err := c.store.ListAllJobIDs(ctx)
	if err != nil {
		return err
	}
	knownSet := make(map[string]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}
	for _, e := range entries {
		if e.IsDir() && !knownSet[e.Name()] {
			_ = os.RemoveAll(filepath.Join(jobsDir, e.Name()))
		}
	}
	return nil
}

func progressPercent(done, total int) float64 {
	if total == 0 {
		return 10
	}
	p := 10 + 80*float64(done)/float64(total)
	if p > 90 {
		p = 90
	}
	return p
}

func globalizeSegments(segs []model.RawSegment, offsetSec float64) []model.RawSegment {
	out := make([]model.RawSegment, len(segs))
	for i, s := range segs {
		s.StartSec += offsetSec
		s.EndSec += offsetSec
		out[i] = s
	}
	return out
}

func newJobID() string {
	return uuid.NewString()
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
