// Package store is the durable persistence layer: a SQLite database for job
// and chunk rows plus a filesystem tree for source audio, rendered chunks,
// and checkpoints. It is the only component that touches the database
// handle or the job directory tree directly; callers never hold their own
// handle. Versioned migrations run inside a single transaction, with
// PRAGMA table_info used to make column additions idempotent.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"interviewscribe/internal/model"
	"interviewscribe/pkg/logger"
)

// Store owns the jobs.sqlite database and the jobs/<jobId>/ directory tree
// rooted at appDataDir.
type Store struct {
	db         *sql.DB
	appDataDir string
	mu         sync.Mutex
}

// Open opens (creating if necessary) the database at <appDataDir>/jobs.sqlite
// and runs any pending migrations.
func Open(appDataDir string) (*Store, error) {
	if err := os.MkdirAll(appDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir app data dir: %w", err)
	}
	dbPath := filepath.Join(appDataDir, "jobs.sqlite")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer invariant; sqlite serializes anyway

	s := &Store{db: db, appDataDir: appDataDir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// AppDataDir returns the root directory this store manages.
func (s *Store) AppDataDir() string { return s.appDataDir }

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			source_path TEXT NOT NULL,
			source_name TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			duration_sec REAL NOT NULL DEFAULT 0,
			chunks_total INTEGER NOT NULL DEFAULT 0,
			chunks_done INTEGER NOT NULL DEFAULT 0,
			transcript_json TEXT NOT NULL DEFAULT '[]',
			error_message TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		return fmt.Errorf("store: migrate v1 jobs: %w", err)
	}
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			start_sec REAL NOT NULL,
			end_sec REAL NOT NULL,
			chunk_path TEXT NOT NULL,
			chunk_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			engine TEXT NOT NULL DEFAULT '',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			transcript_json TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (job_id, idx)
		)`); err != nil {
		return fmt.Errorf("store: migrate v1 chunks: %w", err)
	}

	if err := addColumnIfAbsent(tx, "jobs", "interviewer_count", "INTEGER NOT NULL DEFAULT 1"); err != nil {
		return fmt.Errorf("store: migrate v2: %w", err)
	}
	if err := addColumnIfAbsent(tx, "jobs", "participant_count", "INTEGER NOT NULL DEFAULT 1"); err != nil {
		return fmt.Errorf("store: migrate v2: %w", err)
	}

	return tx.Commit()
}

func addColumnIfAbsent(tx *sql.Tx, table, column, decl string) error {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	present := false
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == column {
			present = true
		}
	}
	if present {
		return nil
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

func (s *Store) jobDir(jobID string) string    { return filepath.Join(s.appDataDir, "jobs", jobID) }
func (s *Store) SourceDir(jobID string) string { return filepath.Join(s.jobDir(jobID), "source") }
func (s *Store) ChunksDir(jobID string) string { return filepath.Join(s.jobDir(jobID), "chunks") }
func (s *Store) CheckpointsDir(jobID string) string {
	return filepath.Join(s.jobDir(jobID), "checkpoints")
}

// CreateJob inserts a new job row and creates its directory tree.
func (s *Store) CreateJob(ctx context.Context, j *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dir := range []string{s.SourceDir(j.ID), s.ChunksDir(j.ID), s.CheckpointsDir(j.ID)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create job dir: %w", err)
		}
	}

	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_path, source_name, source_hash, status, created_at, updated_at,
			duration_sec, chunks_total, chunks_done, transcript_json, error_message,
			interviewer_count, participant_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.SourcePath, j.SourceName, j.SourceHash, j.Status, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		j.DurationSec, j.ChunksTotal, j.ChunksDone, "[]", j.ErrorMessage, j.InterviewerCount, j.ParticipantCount)
	if err != nil {
		return fmt.Errorf("store: create job: %w", err)
	}
	return nil
}

func scanJob(row interface {
	Scan(dest ...any) error
}) (*model.Job, error) {
	var (
		j                    model.Job
		createdAt, updatedAt string
		transcriptJSON       string
	)
	err := row.Scan(&j.ID, &j.SourcePath, &j.SourceName, &j.SourceHash, &j.Status, &createdAt, &updatedAt,
		&j.DurationSec, &j.ChunksTotal, &j.ChunksDone, &transcriptJSON, &j.ErrorMessage,
		&j.InterviewerCount, &j.ParticipantCount)
	if err != nil {
		return nil, err
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if transcriptJSON != "" {
		_ = json.Unmarshal([]byte(transcriptJSON), &j.Transcript)
	}
	return &j, nil
}

const jobColumns = `id, source_path, source_name, source_hash, status, created_at, updated_at,
	duration_sec, chunks_total, chunks_done, transcript_json, error_message,
	interviewer_count, participant_count`

// GetJob fetches a job by id, or (nil, nil) if it does not exist.
func (s *Store) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", jobID)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return j, nil
}

var incompleteStatuses = []model.JobStatus{
	model.JobQueued, model.JobPreprocessing, model.JobTranscribingRemote,
	model.JobTranscribingFallback, model.JobMerging, model.JobPausedRetryRemote,
}

// LatestIncompleteJob returns the most recently updated job that is not in
// a terminal state, or nil if there is none.
func (s *Store) LatestIncompleteJob(ctx context.Context) (*model.Job, error) {
	return s.latestWithStatuses(ctx, incompleteStatuses)
}

// LatestAutoResumableJob is like LatestIncompleteJob but excludes
// pausedRetryRemote, which requires an explicit human retry.
func (s *Store) LatestAutoResumableJob(ctx context.Context) (*model.Job, error) {
	statuses := make([]model.JobStatus, 0, len(incompleteStatuses))
	for _, st := range incompleteStatuses {
		if st != model.JobPausedRetryRemote {
			statuses = append(statuses, st)
		}
	}
	return s.latestWithStatuses(ctx, statuses)
}

func (s *Store) latestWithStatuses(ctx context.Context, statuses []model.JobStatus) (*model.Job, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = st
	}
	q := fmt.Sprintf("SELECT %s FROM jobs WHERE status IN (%s) ORDER BY julianday(updated_at) DESC, updated_at DESC LIMIT 1",
		jobColumns, strings.Join(placeholders, ","))
	row := s.db.QueryRowContext(ctx, q, args...)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest job by status: %w", err)
	}
	return j, nil
}

// ListReadyJobs returns up to limit ready jobs, most recent first.
func (s *Store) ListReadyJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY julianday(updated_at) DESC, updated_at DESC LIMIT ?",
		model.JobReady, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list ready jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan ready job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJobStatus sets status (and optionally errorMessage); clears
// errorMessage when transitioning to ready.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	if status == model.JobReady {
		errMsg = ""
	}
	_, err := s.db.ExecContext(ctx, "UPDATE jobs SET status=?, error_message=?, updated_at=? WHERE id=?",
		status, errMsg, time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("store: update job status: %w", err)
	}
	return nil
}

// UpdateJobMetadata records the probed duration and the chunk plan size.
func (s *Store) UpdateJobMetadata(ctx context.Context, jobID string, durationSec float64, chunksTotal int) error {
	_, err := s.db.ExecContext(ctx, "UPDATE jobs SET duration_sec=?, chunks_total=?, updated_at=? WHERE id=?",
		durationSec, chunksTotal, time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("store: update job metadata: %w", err)
	}
	return nil
}

// IncrementChunksDone bumps chunksDone by one (called after each completed
// chunk; chunksDone must never exceed chunksTotal).
func (s *Store) IncrementChunksDone(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET chunks_done = MIN(chunks_done + 1, chunks_total), updated_at=? WHERE id=?`,
		time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("store: increment chunks done: %w", err)
	}
	return nil
}

// UpdateReadyJobSourceName renames a ready job's display title.
func (s *Store) UpdateReadyJobSourceName(ctx context.Context, jobID, name string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE jobs SET source_name=?, updated_at=? WHERE id=? AND status=?",
		name, time.Now().UTC().Format(time.RFC3339Nano), jobID, model.JobReady)
	if err != nil {
		return fmt.Errorf("store: rename ready job: %w", err)
	}
	return nil
}

// SetFinalTranscript persists the final transcript and sets status
// (normally ready).
func (s *Store) SetFinalTranscript(ctx context.Context, jobID string, transcript []model.Segment, status model.JobStatus) error {
	payload, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("store: marshal transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "UPDATE jobs SET transcript_json=?, status=?, error_message='', updated_at=? WHERE id=?",
		string(payload), status, time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("store: set final transcript: %w", err)
	}
	return nil
}

// ToggleSwapRoles flips I<->D on every final segment of a job and persists
// the result. Calling it twice in a row is an involution.
func (s *Store) ToggleSwapRoles(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, fmt.Errorf("store: swap roles: job %s not found", jobID)
	}
	swapped := make([]model.Segment, len(j.Transcript))
	for i, seg := range j.Transcript {
		seg.Speaker = swapRole(seg.Speaker)
		swapped[i] = seg
	}
	if err := s.SetFinalTranscript(ctx, jobID, swapped, j.Status); err != nil {
		return nil, err
	}
	j.Transcript = swapped
	return j, nil
}

func swapRole(r model.Role) model.Role {
	if r == model.RoleInterviewer {
		return model.RoleParticipant
	}
	return model.RoleInterviewer
}

// ReadJobResult returns the job's final transcript, failing if the job is
// not ready.
func (s *Store) ReadJobResult(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j == nil || j.Status != model.JobReady {
		return nil, fmt.Errorf("store: job %s has no ready result", jobID)
	}
	return j, nil
}

// LatestReadyResult returns the most recently completed ready job, if any.
func (s *Store) LatestReadyResult(ctx context.Context) (*model.Job, error) {
	jobs, err := s.ListReadyJobs(ctx, 1)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// DeleteReadyJob removes a ready job's row and its directory tree.
func (s *Store) DeleteReadyJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id=? AND status=?", jobID, model.JobReady)
	if err != nil {
		return fmt.Errorf("store: delete ready job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		logger.Warn("failed to remove job directory after delete", "job_id", jobID, "error", err)
	}
	return nil
}

// DeleteAllReadyJobs removes every ready job's row and directory.
func (s *Store) DeleteAllReadyJobs(ctx context.Context) error {
	jobs, err := s.ListReadyJobs(ctx, 1<<30)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := s.DeleteReadyJob(ctx, j.ID); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllData drops every job row and its directory tree, regardless of
// status. Used for full resets (tests, "start over").
func (s *Store) ClearAllData(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM jobs")
	if err != nil {
		return fmt.Errorf("store: clear all data: list jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM jobs"); err != nil {
		return fmt.Errorf("store: clear all data: delete jobs: %w", err)
	}
	for _, id := range ids {
		if err := os.RemoveAll(s.jobDir(id)); err != nil {
			logger.Warn("failed to remove job directory during clear", "job_id", id, "error", err)
		}
	}
	return nil
}

// ListAllJobIDs returns every job id currently in the database, regardless
// of status.
func (s *Store) ListAllJobIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM jobs")
	if err != nil {
		return nil, fmt.Errorf("store: list all job ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertChunk performs a full-row replace of a chunk's state.
func (s *Store) UpsertChunk(ctx context.Context, c *model.Chunk) error {
	payload, err := json.Marshal(c.Transcript)
	if err != nil {
		return fmt.Errorf("store: marshal chunk transcript: %w", err)
	}
	c.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunks (job_id, idx, start_sec, end_sec, chunk_path, chunk_hash, status, engine,
			attempt_count, transcript_json, confidence, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(job_id, idx) DO UPDATE SET
			start_sec=excluded.start_sec, end_sec=excluded.end_sec, chunk_path=excluded.chunk_path,
			chunk_hash=excluded.chunk_hash, status=excluded.status, engine=excluded.engine,
			attempt_count=excluded.attempt_count, transcript_json=excluded.transcript_json,
			confidence=excluded.confidence, updated_at=excluded.updated_at`,
		c.JobID, c.Index, c.StartSec, c.EndSec, c.ChunkPath, c.ChunkHash, c.Status, c.Engine,
		c.AttemptCount, string(payload), c.Confidence, c.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: upsert chunk: %w", err)
	}
	return nil
}

// ListChunks returns every chunk of a job in ascending index order.
func (s *Store) ListChunks(ctx context.Context, jobID string) ([]*model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, idx, start_sec, end_sec, chunk_path, chunk_hash, status, engine,
			attempt_count, transcript_json, confidence, updated_at
		FROM chunks WHERE job_id = ? ORDER BY idx ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("store: list chunks: %w", err)
	}
	defer rows.Close()

	var out []*model.Chunk
	for rows.Next() {
		var c model.Chunk
		var transcriptJSON, updatedAt string
		if err := rows.Scan(&c.JobID, &c.Index, &c.StartSec, &c.EndSec, &c.ChunkPath, &c.ChunkHash,
			&c.Status, &c.Engine, &c.AttemptCount, &transcriptJSON, &c.Confidence, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		if transcriptJSON != "" {
			_ = json.Unmarshal([]byte(transcriptJSON), &c.Transcript)
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, rows.Err()
}

// WriteCheckpoint atomically writes a pretty-printed, key-sorted JSON
// checkpoint via temp-file-then-rename.
func (s *Store) WriteCheckpoint(jobID, name string, payload any) error {
	dir := s.CheckpointsDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: checkpoint dir: %w", err)
	}

	// Round-trip through a generic map so keys sort deterministically.
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshal checkpoint: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("store: normalize checkpoint: %w", err)
	}
	pretty, err := marshalSorted(generic)
	if err != nil {
		return fmt.Errorf("store: marshal sorted checkpoint: %w", err)
	}

	finalPath := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("store: checkpoint temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(pretty); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename checkpoint into place: %w", err)
	}
	return nil
}

func marshalSorted(v any) ([]byte, error) {
	var buf strings.Builder
	if err := encodeSorted(&buf, v, ""); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func encodeSorted(buf *strings.Builder, v any, indent string) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("{\n")
		childIndent := indent + "  "
		for i, k := range keys {
			buf.WriteString(childIndent)
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteString(": ")
			if err := encodeSorted(buf, val[k], childIndent); err != nil {
				return err
			}
			if i < len(keys)-1 {
				buf.WriteString(",")
			}
			buf.WriteString("\n")
		}
		buf.WriteString(indent + "}")
	case []any:
		buf.WriteString("[\n")
		childIndent := indent + "  "
		for i, item := range val {
			buf.WriteString(childIndent)
			if err := encodeSorted(buf, item, childIndent); err != nil {
				return err
			}
			if i < len(val)-1 {
				buf.WriteString(",")
			}
			buf.WriteString("\n")
		}
		buf.WriteString(indent + "]")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
