package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"backend/internal/service"

	"github.com/rs/zerolog/log"
)

// ReconcileJob runs the proactive drift-detection pass: on every tick it
// rebuilds the currently active periods from the prediction log so the system
// never serves a stale aggregate silently. Repair happens inside the
// reconciler; this job only schedules and counts.
type ReconcileJob struct {
	reconciler *service.Reconciler
	interval   time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// Metrics
	passes    atomic.Int64
	drifted   atomic.Int64
	repaired  atomic.Int64
	errors    atomic.Int64
	startTime time.Time
}

// NewReconcileJob creates a new reconciliation job
func NewReconcileJob(reconciler *service.Reconciler, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileJob{
		reconciler: reconciler,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop.
func (j *ReconcileJob) Start(ctx context.Context) error {
	if j.running.Load() {
		return fmt.Errorf("reconcile job already running")
	}
	j.startTime = time.Now()
	j.running.Store(true)

	log.Info().Dur("interval", j.interval).Msg("reconcile job started")

	j.wg.Add(1)
	go j.loop(ctx)
	return nil
}

// Stop gracefully stops the job.
func (j *ReconcileJob) Stop() {
	if !j.running.Load() {
		return
	}
	j.running.Store(false)
	close(j.stopCh)
	j.wg.Wait()

	log.Info().
		Int64("passes", j.passes.Load()).
		Int64("drifted", j.drifted.Load()).
		Int64("repaired", j.repaired.Load()).
		Int64("errors", j.errors.Load()).
		Dur("uptime", time.Since(j.startTime).Round(time.Second)).
		Msg("reconcile job stopped")
}

// IsRunning returns whether the job is currently running
func (j *ReconcileJob) IsRunning() bool {
	return j.running.Load()
}

// GetMetrics returns current job metrics
func (j *ReconcileJob) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"running":  j.running.Load(),
		"passes":   j.passes.Load(),
		"drifted":  j.drifted.Load(),
		"repaired": j.repaired.Load(),
		"errors":   j.errors.Load(),
		"uptime":   time.Since(j.startTime).String(),
	}
}

func (j *ReconcileJob) loop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.runPass(ctx)
		}
	}
}

// runPass rebuilds every currently active period, then recounts badge
// progress across all users seen in the action logs.
func (j *ReconcileJob) runPass(ctx context.Context) {
	j.passes.Add(1)

	for _, period := range service.CurrentPeriods(time.Now()) {
		report, err := j.reconciler.RebuildLeaderboard(ctx, period)
		if err != nil {
			j.errors.Add(1)
			log.Error().Err(err).Str("period", period).Msg("reconciliation pass failed")
			continue
		}
		j.drifted.Add(int64(report.Drifted))
		j.repaired.Add(int64(report.Repaired))

		if report.Drifted > 0 {
			log.Warn().
				Str("period", period).
				Int("checked", report.Checked).
				Int("drifted", report.Drifted).
				Int("repaired", report.Repaired).
				Msg("reconciliation pass repaired drift")
		}
	}

	report, err := j.reconciler.RebuildAllBadges(ctx)
	if err != nil {
		j.errors.Add(1)
		log.Error().Err(err).Msg("badge reconciliation pass failed")
		return
	}
	j.drifted.Add(int64(report.Drifted))
	j.repaired.Add(int64(report.Repaired))
	if report.Drifted > 0 {
		log.Warn().
			Int("checked", report.Checked).
			Int("drifted", report.Drifted).
			Msg("badge reconciliation pass repaired drift")
	}
}
