package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"registrar/internal/pipeline"
)

// watchDebounce coalesces the burst of filesystem events an editor or a
// file copy produces into a single rerun.
const watchDebounce = 500 * time.Millisecond

// watchCmd reruns the pipeline whenever one of the input files changes.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun the pipeline whenever an input file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer watcher.Close()

		if err := watcher.Add(cfg.InputDir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.InputDir, err)
		}

		watched := map[string]bool{
			filepath.Base(cfg.SnapshotPath()):    true,
			filepath.Base(cfg.EnrollmentsPath()): true,
			filepath.Base(cfg.DepartmentsPath()): true,
		}

		runOnce := func() {
			result, err := pipeline.Run(ctx, cfg, logger)
			if err != nil {
				logger.Error("pipeline run failed", zap.Error(err))
				fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
				return
			}
			fmt.Printf("report written to %s (%d rows)\n", result.ReportPath, result.ReportRows)
		}

		fmt.Printf("watching %s (Ctrl-C to stop)\n", cfg.InputDir)
		runOnce()

		return watchLoop(ctx, watcher, watched, logger, runOnce)
	},
}

// watchLoop calls run after a debounced burst of events on the watched
// files. It returns when ctx is cancelled or the watcher is closed.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, watched map[string]bool, log *zap.Logger, run func()) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		case <-pending:
			if ctx.Err() != nil {
				return nil
			}
			run()
		}
	}
}
