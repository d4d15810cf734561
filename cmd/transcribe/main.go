// Command transcribe is a thin CLI harness over the pipeline core: start
// a job, watch a drop directory, resume after a crash, inspect status,
// and export a finished transcript.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"interviewscribe/internal/chunker"
	"interviewscribe/internal/config"
	"interviewscribe/internal/coordinator"
	"interviewscribe/internal/fallbackengine"
	"interviewscribe/internal/formatter"
	"interviewscribe/internal/model"
	"interviewscribe/internal/remoteengine"
	"interviewscribe/internal/store"
	"interviewscribe/internal/watch"
	"interviewscribe/pkg/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "transcribe",
		Short:   "Two-role Danish interview transcription pipeline",
		Version: version,
	}

	var apiKey string
	var useRemote bool
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("TRANSCRIBE_API_KEY"), "remote transcription API key")
	root.PersistentFlags().BoolVar(&useRemote, "remote", true, "use the remote diarizing engine (falls back to local whisper.cpp on failure)")

	root.AddCommand(
		newStartCmd(&apiKey, &useRemote),
		newResumeCmd(&apiKey),
		newStatusCmd(),
		newExportCmd(),
		newSwapRolesCmd(),
		newWatchCmd(&apiKey, &useRemote),
	)
	return root
}

// bootstrap performs the startup sequence: config, logging, storage,
// engines, coordinator.
func bootstrap() (*coordinator.Coordinator, *store.Store, func(), error) {
	logger.Startup("config", "loading configuration")
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	logger.Startup("logging", "structured logging ready")

	logger.Startup("storage", "opening job store", "dir", cfg.AppDataDir)
	st, err := store.Open(cfg.AppDataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	logger.Startup("chunker", "preparing media chunker")
	ch := chunker.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.ChunkDurationSec, cfg.OverlapSec)

	logger.Startup("fallback", "preparing local whisper.cpp fallback engine")
	fb := fallbackengine.New(cfg.WhisperModelPath, cfg.FFmpegPath)

	newRemote := func(apiKey string) *remoteengine.Engine {
		e := remoteengine.New(cfg.RemoteHost, apiKey, cfg.DiarizeModel, cfg.TranscribeModel, cfg.RequestTimeoutSec)
		if cfg.MaxRetries > 0 {
			e.MaxRetries = cfg.MaxRetries
		}
		return e
	}

	coord := coordinator.New(st, ch, fb, newRemote)
	logger.Startup("coordinator", "pipeline ready")

	cleanup := func() { st.Close() }
	return coord, st, cleanup, nil
}

func newStartCmd(apiKey *string, useRemote *bool) *cobra.Command {
	var interviewers, participants int
	cmd := &cobra.Command{
		Use:   "start <source-file>",
		Short: "Start a new transcription job for a source media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			sourcePath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			roleCfg := model.SpeakerRoleConfig{Interviewers: interviewers, Participants: participants}
			ctx, stop := signalContext()
			defer stop()

			jobID, err := coord.StartJob(ctx, sourcePath, *apiKey, *useRemote, roleCfg)
			if err != nil {
				return err
			}
			fmt.Println(jobID)
			return watchUntilDone(ctx, coord, jobID)
		},
	}
	cmd.Flags().IntVar(&interviewers, "interviewers", 1, "number of interviewer roles")
	cmd.Flags().IntVar(&participants, "participants", 1, "number of participant roles")
	return cmd
}

func newResumeCmd(apiKey *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the most recent incomplete job (jobs paused for a remote retry are skipped)",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signalContext()
			defer stop()

			jobID, err := coord.ResumeLatest(ctx, *apiKey)
			if err != nil {
				return err
			}
			fmt.Println(jobID)
			return watchUntilDone(ctx, coord, jobID)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print a job's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			job, err := st.GetJob(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%d/%d chunks\n", job.ID, job.Status, job.ChunksDone, job.ChunksTotal)
			if job.ErrorMessage != "" {
				fmt.Println("error:", job.ErrorMessage)
			}
			return nil
		},
	}
}

func newSwapRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap-roles <job-id>",
		Short: "Swap the interviewer/participant role assignment on a ready job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			job, err := coord.SwapRoles(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println("roles swapped for", job.ID)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var asDocx bool
	cmd := &cobra.Command{
		Use:   "export <job-id> <out-file>",
		Short: "Export a ready job's transcript as TXT or DOCX",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			job, err := coord.JobResult(context.Background(), args[0])
			if err != nil {
				return err
			}

			header := formatter.BuildHeader(job, "")
			entries := formatter.BuildLineEntries(job.Transcript)

			if asDocx {
				return formatter.RenderDOCX(header, entries, args[1])
			}
			return os.WriteFile(args[1], []byte(formatter.RenderTXT(header, entries)), 0o644)
		},
	}
	cmd.Flags().BoolVar(&asDocx, "docx", false, "export as DOCX instead of TXT")
	return cmd
}

func newWatchCmd(apiKey *string, useRemote *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <drop-dir>",
		Short: "Watch a directory and start a job for each new media file dropped into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			svc := watch.NewService(args[0], coord, *useRemote, *apiKey)
			if err := svc.Start(); err != nil {
				return err
			}
			defer svc.Stop()

			ctx, stop := signalContext()
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}

// watchUntilDone streams progress events for jobID until it reaches a
// terminal stage or the context is cancelled.
func watchUntilDone(ctx context.Context, coord *coordinator.Coordinator, jobID string) error {
	events, unsubscribe := coord.ProgressStream()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if evt.JobID != jobID {
				continue
			}
			fmt.Printf("[%s] %.0f%% %s\n", evt.Stage, evt.Percent, evt.Message)
			switch evt.Status {
			case model.JobReady, model.JobPausedRetryRemote, model.JobFailed:
				return nil
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
