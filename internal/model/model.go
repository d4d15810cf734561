// Package model holds the persistent entities shared by every pipeline
// component: jobs, chunks, and the segment types that flow between them.
package model

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobQueued               JobStatus = "queued"
	JobPreprocessing        JobStatus = "preprocessing"
	JobTranscribingRemote   JobStatus = "transcribingRemote"
	JobTranscribingFallback JobStatus = "transcribingFallback"
	JobMerging              JobStatus = "merging"
	JobReady                JobStatus = "ready"
	JobPausedRetryRemote    JobStatus = "pausedRetryRemote"
	JobFailed               JobStatus = "failed"
)

// ChunkStatus is the lifecycle state of a Chunk.
type ChunkStatus string

const (
	ChunkQueued               ChunkStatus = "queued"
	ChunkTranscribingRemote   ChunkStatus = "transcribingRemote"
	ChunkTranscribingFallback ChunkStatus = "transcribingFallback"
	ChunkDone                 ChunkStatus = "done"
	ChunkPausedRetryRemote    ChunkStatus = "pausedRetryRemote"
	ChunkFailed               ChunkStatus = "failed"
)

// Engine identifies which transcription path produced a chunk's segments.
type Engine string

const (
	EngineNone     Engine = ""
	EngineRemote   Engine = "remote"
	EngineFallback Engine = "fallback"
)

// Role is the final two-valued speaker label.
type Role string

const (
	RoleInterviewer Role = "I"
	RoleParticipant Role = "D"
)

// Job is the unit of work for one audio file.
type Job struct {
	ID               string
	SourcePath       string
	SourceName       string
	SourceHash       string
	Status           JobStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DurationSec      float64
	ChunksTotal      int
	ChunksDone       int
	ErrorMessage     string
	InterviewerCount int
	ParticipantCount int
	Transcript       []Segment
}

// Chunk is a time slice of a Job's source.
type Chunk struct {
	JobID        string
	Index        int
	StartSec     float64
	EndSec       float64
	ChunkPath    string
	ChunkHash    string
	Status       ChunkStatus
	Engine       Engine
	AttemptCount int
	Transcript   []RawSegment
	Confidence   float64
	UpdatedAt    time.Time
}

// RawSegment is a per-chunk transcription fragment. Times are chunk-local
// until the coordinator globalizes them by adding the owning chunk's start.
type RawSegment struct {
	StartSec   float64
	EndSec     float64
	SpeakerID  string
	Text       string
	Confidence *float64
}

// Segment is a final, role-labeled transcript entry with global times.
type Segment struct {
	StartSec   float64
	EndSec     float64
	Speaker    Role
	Text       string
	Confidence *float64
}

// SpeakerRoleConfig controls how many internal speakers are assigned to
// each final role during merge.
type SpeakerRoleConfig struct {
	Interviewers int
	Participants int
}

// DefaultSpeakerRoleConfig is the standard single-interviewer,
// single-participant assignment.
func DefaultSpeakerRoleConfig() SpeakerRoleConfig {
	return SpeakerRoleConfig{Interviewers: 1, Participants: 1}
}

// ChunkCheckpoint is the per-chunk checkpoint artifact written under
// checkpoints/chunk_####.json.
type ChunkCheckpoint struct {
	JobID      string       `json:"jobId"`
	ChunkIndex int          `json:"chunkIndex"`
	Engine     Engine       `json:"engine"`
	Segments   []RawSegment `json:"segments"`
}

// ResultCheckpoint is the per-job merged-result artifact written under
// checkpoints/result.json.
type ResultCheckpoint struct {
	JobID       string    `json:"jobId"`
	SourcePath  string    `json:"sourcePath"`
	DurationSec float64   `json:"durationSec"`
	Transcript  []Segment `json:"transcript"`
}

// ProgressStage is the coarse phase reported alongside a ProgressEvent.
type ProgressStage string

const (
	StageUpload     ProgressStage = "upload"
	StagePreprocess ProgressStage = "preprocess"
	StageTranscribe ProgressStage = "transcribe"
	StageMerge      ProgressStage = "merge"
	StageExport     ProgressStage = "export"
)

// ProgressEvent is broadcast by the Coordinator at state changes and after
// each chunk completion.
type ProgressEvent struct {
	JobID       string
	Status      JobStatus
	Stage       ProgressStage
	Percent     float64
	ETASeconds  *float64
	ChunksDone  int
	ChunksTotal int
	Message     string
}
