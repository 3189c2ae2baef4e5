package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dunamismax/hostprep/internal/backup"
	"github.com/dunamismax/hostprep/internal/config"
	"github.com/dunamismax/hostprep/internal/fetch"
	"github.com/dunamismax/hostprep/internal/plan"
	"github.com/dunamismax/hostprep/internal/runner"
	"github.com/dunamismax/hostprep/internal/task"
)

// preflight runs before the first task. Without connectivity a run that
// installs or downloads anything is refused; a failed config snapshot only
// warns.
func preflight(ctx context.Context, log *slog.Logger, pf config.Preflight, fetcher *fetch.Client, tasks []task.Task, now time.Time) error {
	if !pf.SkipConnectivity && plan.NeedsNetwork(tasks) {
		if err := fetcher.Reachable(ctx, pf.ConnectURL); err != nil {
			log.Error("no network connectivity", "url", pf.ConnectURL, "error", err)
			return exitCode(runner.ExitAborted)
		}
		log.Debug("network reachable", "url", pf.ConnectURL)
	}

	if pf.SkipSnapshot {
		return nil
	}
	path, files, err := backup.Snapshot(pf.SnapshotDir, pf.SnapshotPaths, now)
	switch {
	case err != nil:
		log.Warn("config snapshot failed", "error", err)
	case path == "":
		log.Debug("config snapshot skipped: no files to archive")
	default:
		log.Info("saved config snapshot", "path", path, "files", len(files))
	}
	return nil
}
