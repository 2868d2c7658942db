// Package reconcile fails jobs whose worker went silent. A job that has
// been queued or running longer than the job timeout is assumed lost and
// settled as an error so the package does not stay locked forever.
package reconcile

import (
	"context"
	"log"
	"time"

	"docpack/internal/config"
	"docpack/internal/store"
	"docpack/internal/telemetry"
)

const staleBatchSize = 100

// Reconciler periodically sweeps for stale jobs.
type Reconciler struct {
	cfg   config.Config
	store *store.Store
}

// New builds a reconciler.
func New(cfg config.Config, st *store.Store) *Reconciler {
	return &Reconciler{cfg: cfg, store: st}
}

// Run sweeps on the configured interval until context cancellation.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.JobTimeout)
	jobs, err := r.store.StaleJobs(ctx, cutoff, staleBatchSize)
	if err != nil {
		log.Printf("reconcile: list stale jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if err := r.store.FailJob(ctx, job.ID, "timed out"); err != nil {
			// Lost the race against a late completion report; fine.
			log.Printf("reconcile: fail job %s: %v", job.ID, err)
			continue
		}
		telemetry.JobsTimedOut.Inc()
		log.Printf("reconcile: job %s timed out (created %s)", job.ID, job.CreatedAt.Format(time.RFC3339))
	}
}
