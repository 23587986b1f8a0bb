package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher is the batch reconcile entry point the job drives.
type Refresher interface {
	RefreshAll(ctx context.Context) (int, error)
}

// TrackingRefreshJob polls every active shipment on a cron schedule.
type TrackingRefreshJob struct {
	refresher Refresher
	spec      string
	cron      *cron.Cron
	logger    *slog.Logger

	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	lastFresh int
	runs      int
}

// New creates the refresh job. spec is a standard 5-field cron expression,
// e.g. "*/30 * * * *" for every 30 minutes.
func New(refresher Refresher, spec string, logger *slog.Logger) *TrackingRefreshJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackingRefreshJob{
		refresher: refresher,
		spec:      spec,
		cron:      cron.New(),
		logger:    logger.With("component", "tracking_refresh_job"),
	}
}

func (j *TrackingRefreshJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, func() {
		j.Trigger(context.Background())
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("tracking refresh job started", "schedule", j.spec)
	return nil
}

func (j *TrackingRefreshJob) Stop() {
	j.cron.Stop()
	j.logger.Info("tracking refresh job stopped")
}

// Trigger runs one refresh pass immediately. Used by the cron schedule and by
// the worker's /trigger endpoint; overlapping passes are skipped.
func (j *TrackingRefreshJob) Trigger(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Warn("refresh pass already running, skipping")
		return
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	fresh, err := j.refresher.RefreshAll(ctx)
	if err != nil {
		j.logger.Error("refresh pass failed", "error", err.Error())
		return
	}

	j.mu.Lock()
	j.lastRun = start
	j.lastFresh = fresh
	j.runs++
	j.mu.Unlock()

	j.logger.Info("refresh pass done", "fresh", fresh, "took", time.Since(start).String())
}

type JobStats struct {
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run"`
	LastFresh int       `json:"last_fresh"`
	Running   bool      `json:"running"`
}

func (j *TrackingRefreshJob) Stats() JobStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStats{Runs: j.runs, LastRun: j.lastRun, LastFresh: j.lastFresh, Running: j.running}
}
