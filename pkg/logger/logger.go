package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with convenience methods.
type Logger struct {
	*slog.Logger
}

// LogLevel represents logging levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	defaultLogger *Logger
	currentLevel  = LevelInfo
)

// Init initializes the global logger with the specified level.
func Init(level string) {
	switch strings.ToLower(level) {
	case "debug":
		currentLevel = LevelDebug
	case "info", "":
		currentLevel = LevelInfo
	case "warn", "warning":
		currentLevel = LevelWarn
	case "error":
		currentLevel = LevelError
	default:
		currentLevel = LevelInfo
	}

	var slogLevel slog.Level
	switch currentLevel {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: false,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("15:04:05"))}
			}
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				switch level {
				case slog.LevelDebug:
					a.Value = slog.StringValue("DEBUG")
				case slog.LevelInfo:
					a.Value = slog.StringValue("INFO ")
				case slog.LevelWarn:
					a.Value = slog.StringValue("WARN ")
				case slog.LevelError:
					a.Value = slog.StringValue("ERROR")
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	defaultLogger = &Logger{slog.New(handler)}
}

// Get returns the default logger instance, initializing it from LOG_LEVEL
// if Init was never called.
func Get() *Logger {
	if defaultLogger == nil {
		Init(os.Getenv("LOG_LEVEL"))
	}
	return defaultLogger
}

func Debug(msg string, args ...any) {
	if currentLevel <= LevelDebug {
		Get().Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if currentLevel <= LevelInfo {
		Get().Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if currentLevel <= LevelWarn {
		Get().Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if currentLevel <= LevelError {
		Get().Error(msg, args...)
	}
}

// WithContext creates a logger with additional persistent key/value context.
func WithContext(key string, value any) *Logger {
	return &Logger{Get().With(key, value)}
}

// Startup prints a clean, user-facing line for a key initialization step.
func Startup(step, message string, args ...any) {
	if currentLevel <= LevelInfo {
		fmt.Printf("\033[36m[+]\033[0m %s\n", message)
	}
	if currentLevel <= LevelDebug {
		Debug("startup step", append([]any{"step", step, "message", message}, args...)...)
	}
}

// JobStarted logs the beginning of a transcription job.
func JobStarted(jobID, sourceName string, useRemote bool) {
	Info("job started", "source", sourceName)
	Debug("job started with details", "job_id", jobID, "source", sourceName, "remote", useRemote)
}

// JobCompleted logs a job reaching the ready state.
func JobCompleted(jobID string, duration time.Duration, chunksTotal int) {
	Info("job completed", "duration", duration.String())
	Debug("job completed with details", "job_id", jobID, "duration", duration.String(), "chunks", chunksTotal)
}

// JobFailed logs a job reaching the failed state.
func JobFailed(jobID string, duration time.Duration, err error) {
	Error("job failed", "error", err.Error())
	Debug("job failed with details", "job_id", jobID, "duration", duration.String(), "error", err.Error())
}

// JobPaused logs a job reaching pausedRetryRemote.
func JobPaused(jobID string, chunkIndex int, reason string) {
	Warn("job paused, awaiting remote retry", "reason", reason)
	Debug("job paused with details", "job_id", jobID, "chunk", chunkIndex, "reason", reason)
}

// ChunkAttempt logs a single per-chunk transcription attempt.
func ChunkAttempt(jobID string, chunkIndex, attempt int, engine string) {
	Debug("chunk attempt", "job_id", jobID, "chunk", chunkIndex, "attempt", attempt, "engine", engine)
}

// Performance logs a duration for debugging.
func Performance(operation string, duration time.Duration, details ...any) {
	Debug("performance", append([]any{"operation", operation, "duration", duration.String()}, details...)...)
}
