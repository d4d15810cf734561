// Package watch monitors a drop directory for new source media files and
// starts a job for each one once it looks fully written: a recursive
// fsnotify watch plus a startup sweep of pre-existing files.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"interviewscribe/internal/model"
	"interviewscribe/pkg/logger"
)

var mediaExtensions = []string{".mp3", ".m4a", ".wav", ".mp4", ".mov"}

// Starter is the subset of Coordinator that watch needs: start a job for a
// source file. Kept narrow so tests can fake it without a real store.
type Starter interface {
	StartJob(ctx context.Context, sourcePath string, apiKey string, useRemote bool, roleConfig model.SpeakerRoleConfig) (string, error)
}

// Service watches a drop directory and starts a job for each new media
// file once its size has stopped changing.
type Service struct {
	dropPath  string
	coord     Starter
	useRemote bool
	apiKey    string
	roleCfg   model.SpeakerRoleConfig
	watcher   *fsnotify.Watcher
}

// NewService creates a drop-directory watcher rooted at dropPath.
func NewService(dropPath string, coord Starter, useRemote bool, apiKey string) *Service {
	return &Service{
		dropPath:  dropPath,
		coord:     coord,
		useRemote: useRemote,
		apiKey:    apiKey,
		roleCfg:   model.DefaultSpeakerRoleConfig(),
	}
}

// Start creates the drop directory if needed, begins watching it, and
// enqueues any files already present.
func (s *Service) Start() error {
	if err := ensureDir(s.dropPath); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := s.addDirectoryRecursively(s.dropPath); err != nil {
		s.watcher.Close()
		return err
	}

	if err := s.processExistingFiles(); err != nil {
		logger.Warn("drop directory sweep failed", "error", err)
	}

	go s.watchFiles()
	logger.Info("watching drop directory", "dir", s.dropPath)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (s *Service) Stop() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *Service) addDirectoryRecursively(root string) error {
	return walkDirs(root, func(dir string) {
		if err := s.watcher.Add(dir); err != nil {
			logger.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	})
}

func (s *Service) processExistingFiles() error {
	return walkFiles(s.dropPath, func(path string) {
		if isMediaFile(path) {
			go s.processFile(path)
		}
	})
}

func (s *Service) watchFiles() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if isDir(event.Name) {
				if err := s.addDirectoryRecursively(event.Name); err != nil {
					logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
				}
				continue
			}
			if isMediaFile(event.Name) {
				go s.processFile(event.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("drop directory watch error", "error", err)
		}
	}
}

// processFile waits for the file to stop growing, then starts a job for
// it. It gives up silently if the file disappears before it stabilizes.
func (s *Service) processFile(path string) {
	if !waitUntilStable(path, 750*time.Millisecond) {
		return
	}
	jobID, err := s.coord.StartJob(context.Background(), path, s.apiKey, s.useRemote, s.roleCfg)
	if err != nil {
		logger.Warn("failed to start job for dropped file", "path", path, "error", err)
		return
	}
	logger.Info("started job from drop directory", "path", path, "job_id", jobID)
}

func isMediaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range mediaExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
