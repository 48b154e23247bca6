package jobs

import (
	"context"
	"fmt"
	"time"

	"doc_gateway/internal/config"
	"doc_gateway/internal/utils"
)

// Reconciler periodically sweeps the job store: jobs stuck in running past
// the grace period are reported as anomalies (never force-finished), and
// terminal jobs past the retention window are purged.
type Reconciler struct {
	tracker  *Tracker
	grace    time.Duration
	interval time.Duration
	retain   time.Duration
	logger   *utils.Logger

	reported map[string]bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewReconciler(tracker *Tracker, cfg config.JobsConfig, logger *utils.Logger) *Reconciler {
	if logger == nil {
		logger = utils.NewLogger("job-reconciler", utils.Info)
	}
	return &Reconciler{
		tracker:  tracker,
		grace:    cfg.RunningGrace,
		interval: cfg.SweepInterval,
		retain:   cfg.Retention,
		logger:   logger,
		reported: make(map[string]bool),
	}
}

// Start runs the sweep loop until Stop or ctx cancellation.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// Sweep performs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	stuck, err := r.tracker.store.ListStuckRunning(ctx, now.Add(-r.grace))
	if err != nil {
		r.logger.Error("failed to list stuck jobs", "error", err)
	} else {
		for _, job := range stuck {
			if r.reported[job.ID.String()] {
				continue
			}
			r.reported[job.ID.String()] = true
			r.tracker.recordAnomaly(Anomaly{
				JobID:      job.ID,
				KeyID:      job.KeyID,
				Kind:       "stuck_running",
				Detail:     fmt.Sprintf("running since %s, past grace of %s", job.SubmittedAt.Format(time.RFC3339), r.grace),
				ObservedAt: now,
			})
		}
	}

	if r.retain > 0 {
		purged, err := r.tracker.store.PurgeTerminalBefore(ctx, now.Add(-r.retain))
		if err != nil {
			r.logger.Error("failed to purge terminal jobs", "error", err)
		} else if purged > 0 {
			r.logger.Info("purged terminal jobs", "count", purged)
		}
	}
}
