package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"genstudio/internal/domain"
	"genstudio/internal/metrics"
)

const (
	recoverBatch   = 500
	reconcileBatch = 100
	recoverWorkers = 8
)

// RecoverResult summarizes a recovery pass.
type RecoverResult struct {
	Resumed      int
	StalePending int
}

// Recover resumes poll loops for processing jobs and fails pending jobs that
// were abandoned mid-submission (older than staleAfter).
func (o *Orchestrator) Recover(ctx context.Context, staleAfter time.Duration) (RecoverResult, error) {
	var res RecoverResult
	processing, err := o.jobs.ListByStatus(ctx, domain.JobStatusProcessing, recoverBatch)
	if err != nil {
		return res, fmt.Errorf("orchestrator: list processing jobs: %w", err)
	}
	for _, job := range processing {
		if o.Watch(job.ID) {
			res.Resumed++
		}
	}

	pending, err := o.jobs.ListByStatus(ctx, domain.JobStatusPending, recoverBatch)
	if err != nil {
		return res, fmt.Errorf("orchestrator: list pending jobs: %w", err)
	}
	cutoff := o.now().Add(-staleAfter)
	stale := make([]string, 0, len(pending))
	for _, job := range pending {
		if job.CreatedAt.Before(cutoff) {
			stale = append(stale, job.ID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoverWorkers)
	failed := make([]bool, len(stale))
	for i, jobID := range stale {
		g.Go(func() error {
			cause := domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceJob, "generation provider is unavailable", errors.New("submission interrupted"))
			_, err := o.fail(gctx, jobID, cause)
			if errors.Is(err, domain.ErrInvalidTransition) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("orchestrator: fail stale job %s: %w", jobID, err)
			}
			failed[i] = true
			return nil
		})
	}
	err = g.Wait()
	for _, ok := range failed {
		if ok {
			res.StalePending++
		}
	}
	o.logger.Info().Int("resumed", res.Resumed).Int("stale_pending", res.StalePending).Msg("orchestrator: recovery finished")
	return res, err
}

// Reconcile links generation assets whose job never recorded them, the
// leftovers of a job write that failed after the asset was created. Assets of
// jobs that were cancelled or failed in the meantime are discarded.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	orphans, err := o.assets.ListUnlinked(ctx, reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: list unlinked assets: %w", err)
	}
	linked := 0
	for _, asset := range orphans {
		jobID := asset.Provenance.SourceGenerationID
		if jobID == "" {
			continue
		}
		job, err := o.link(ctx, jobID, asset.ID, nil)
		switch {
		case err == nil:
			linked++
			metrics.ReconciledAssets.Inc()
			o.stopLoop(jobID)
		case errors.Is(err, domain.ErrInvalidTransition):
			if endedWithoutOutput(job) {
				o.discardAsset(ctx, &asset)
			}
		case errors.Is(err, domain.ErrNotFound):
		default:
			return linked, fmt.Errorf("orchestrator: link asset %s: %w", asset.ID, err)
		}
	}
	if linked > 0 {
		o.logger.Info().Int("linked", linked).Msg("orchestrator: reconciliation linked orphaned assets")
	}
	return linked, nil
}

// ScheduleReconcile registers the reconciliation pass on c.
func (o *Orchestrator) ScheduleReconcile(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(o.ctx, time.Minute)
		defer cancel()
		if _, err := o.Reconcile(ctx); err != nil {
			o.logger.Error().Err(err).Msg("orchestrator: reconciliation failed")
		}
	})
}
