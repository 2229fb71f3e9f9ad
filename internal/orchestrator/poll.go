package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/lease"
	"genstudio/internal/metrics"
	"genstudio/internal/providers"
)

const maxProviderMessage = 300

// Watch starts the poll loop for a job unless one is already running here or
// another process holds the job's lease. It reports whether a loop is running
// in this process.
func (o *Orchestrator) Watch(jobID string) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	if _, running := o.active[jobID]; running {
		o.mu.Unlock()
		return true
	}
	cancelled := make(chan struct{})
	o.active[jobID] = cancelled
	o.loops.Add(1)
	o.mu.Unlock()

	l, err := o.leases.Acquire(o.ctx, jobID)
	if err != nil {
		o.release(jobID)
		o.loops.Done()
		if !errors.Is(err, lease.ErrHeld) {
			o.logger.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator: lease unavailable")
		}
		return false
	}
	go func() {
		defer o.loops.Done()
		defer o.release(jobID)
		defer func() {
			if err := l.Release(context.Background()); err != nil {
				o.logger.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator: lease release failed")
			}
		}()
		o.run(jobID, l, cancelled)
	}()
	return true
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	delete(o.active, jobID)
	o.mu.Unlock()
}

// stopLoop wakes a local loop so it exits at its next iteration.
func (o *Orchestrator) stopLoop(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ch, ok := o.active[jobID]; ok {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

// Active reports how many poll loops run in this process.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) run(jobID string, l lease.Lease, cancelled <-chan struct{}) {
	metrics.ActivePollLoops.Inc()
	defer metrics.ActivePollLoops.Dec()

	log := o.logger.With().Str("job_id", jobID).Logger()
	ctx := infra.WithJobID(o.ctx, jobID)
	failures := 0
	for {
		select {
		case <-cancelled:
			log.Debug().Msg("orchestrator: loop stopped by cancel")
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := o.jobs.GetByID(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("orchestrator: load job")
			if errors.Is(err, domain.ErrNotFound) {
				return
			}
			failures++
			if failures > o.cfg.MaxRetries {
				return
			}
			if !o.wait(ctx, cancelled, o.backoff(failures)) {
				return
			}
			continue
		}
		if job.Status != domain.JobStatusProcessing {
			return
		}

		deadline := job.CreatedAt.Add(o.cfg.Timeout)
		ev, err := o.pollJob(ctx, job)
		switch {
		case err == nil:
			failures = 0
			if ev.Status.Terminal() {
				return
			}
		case ctx.Err() != nil:
			return
		default:
			kind := domain.KindOf(err)
			if kind == "" {
				kind = domain.KindUpstreamUnavailable
			}
			if !domain.Retryable(kind) {
				o.finishWithError(ctx, jobID, err, log)
				return
			}
			failures++
			log.Warn().Err(err).Int("attempt", failures).Str("kind", string(kind)).Msg("orchestrator: poll failed")
			if failures > o.cfg.MaxRetries {
				o.finishWithError(ctx, jobID, domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceJob, "generation provider is unavailable", err), log)
				return
			}
		}

		delay := o.cfg.PollInterval
		if failures > 0 {
			delay = o.backoff(failures)
		}
		if remaining := deadline.Sub(o.now()); remaining < delay {
			delay = max(remaining, 0)
		}
		if !o.wait(ctx, cancelled, delay) {
			return
		}
		if err := l.Refresh(ctx); errors.Is(err, lease.ErrLost) {
			log.Warn().Msg("orchestrator: lease lost, another process owns the job")
			return
		} else if err != nil {
			log.Warn().Err(err).Msg("orchestrator: lease refresh failed")
		}
	}
}

func (o *Orchestrator) finishWithError(ctx context.Context, jobID string, cause error, log zerolog.Logger) {
	if _, err := o.fail(ctx, jobID, cause); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		log.Error().Err(err).Msg("orchestrator: record failure")
	}
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.cfg.RetryBackoff << min(attempt-1, 6)
	return min(d, max(o.cfg.PollInterval, o.cfg.RetryBackoff)*8)
}

func (o *Orchestrator) wait(ctx context.Context, cancelled <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-o.after(d):
		return true
	case <-cancelled:
		return false
	case <-ctx.Done():
		return false
	}
}

// Poll queries the provider once for a job and applies the report. It is safe
// to call concurrently and redundantly; terminal jobs return their snapshot.
func (o *Orchestrator) Poll(ctx context.Context, jobID string) (domain.JobProgress, error) {
	ctx = infra.WithJobID(ctx, jobID)
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return domain.JobProgress{}, err
	}
	return o.pollJob(ctx, job)
}

func (o *Orchestrator) pollJob(ctx context.Context, job *domain.GenerationJob) (domain.JobProgress, error) {
	if job.Status != domain.JobStatusProcessing {
		return job.Snapshot(), nil
	}
	deadline := job.CreatedAt.Add(o.cfg.Timeout)
	if !o.now().Before(deadline) {
		return o.timeout(ctx, job.ID)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	started := o.now()
	status, err := o.provider.GetStatus(callCtx, job.ProviderJobID)
	cancel()
	observeProviderCall("status", started, o.now(), err)
	if err != nil {
		return job.Snapshot(), err
	}
	// A report arriving after the deadline never counts, success included.
	if !o.now().Before(deadline) {
		return o.timeout(ctx, job.ID)
	}

	switch status.State {
	case domain.ProviderSucceeded:
		return o.complete(ctx, job, status)
	case domain.ProviderFailed:
		msg := truncate(strings.TrimSpace(status.Error), maxProviderMessage)
		if msg == "" {
			msg = domain.GenericFailureMessage
		}
		cause := domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceJob, msg, errors.New("provider reported failure"))
		updated, err := o.fail(ctx, job.ID, cause)
		return o.outcome(ctx, job.ID, updated, err)
	default:
		updated, err := o.apply(ctx, job.ID, func(j *domain.GenerationJob) error {
			if j.Status != domain.JobStatusProcessing {
				return domain.ErrInvalidTransition
			}
			j.Progress.ProviderState = status.State
			j.Progress.QueuePosition = status.Position
			j.Progress.AppendLogs(status.Logs...)
			return nil
		})
		return o.outcome(ctx, job.ID, updated, err)
	}
}

// outcome turns an apply result into a snapshot. A rejected transition means
// the job moved on concurrently, which is not an error for a poll.
func (o *Orchestrator) outcome(ctx context.Context, jobID string, job *domain.GenerationJob, err error) (domain.JobProgress, error) {
	if errors.Is(err, domain.ErrInvalidTransition) {
		current, getErr := o.jobs.GetByID(ctx, jobID)
		if getErr != nil {
			return domain.JobProgress{}, getErr
		}
		return current.Snapshot(), nil
	}
	if err != nil {
		return domain.JobProgress{}, fmt.Errorf("orchestrator: update job: %w", err)
	}
	return job.Snapshot(), nil
}

func (o *Orchestrator) timeout(ctx context.Context, jobID string) (domain.JobProgress, error) {
	cause := domain.NewError(domain.KindTimeout, domain.SurfaceJob, "generation timed out", fmt.Errorf("exceeded %s", o.cfg.Timeout))
	updated, err := o.fail(ctx, jobID, cause)
	return o.outcome(ctx, jobID, updated, err)
}

// complete imports the output, records exactly one asset and links it. If
// linking fails on a write error, the asset stays behind for the
// reconciliation pass. If the job was cancelled or failed meanwhile, the
// asset and its objects are discarded.
func (o *Orchestrator) complete(ctx context.Context, job *domain.GenerationJob, status *providers.Status) (domain.JobProgress, error) {
	current, err := o.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return job.Snapshot(), err
	}
	if current.Status != domain.JobStatusProcessing {
		return current.Snapshot(), nil
	}
	asset, err := o.assets.GetBySourceGeneration(ctx, job.ID)
	if errors.Is(err, domain.ErrNotFound) {
		asset, err = o.createAsset(ctx, job, status.Output)
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		return o.outcome(ctx, job.ID, nil, err)
	}
	if err != nil {
		return job.Snapshot(), err
	}

	updated, err := o.link(ctx, job.ID, asset.ID, status.Logs)
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		if endedWithoutOutput(updated) {
			o.discardAsset(ctx, asset)
		}
	case err != nil:
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("asset_id", asset.ID).Msg("orchestrator: link asset failed, left for reconciliation")
	}
	return o.outcome(ctx, job.ID, updated, err)
}

func (o *Orchestrator) createAsset(ctx context.Context, job *domain.GenerationJob, out *providers.Output) (*domain.Asset, error) {
	model, ok := o.resolver.Catalog().Lookup(job.Request.ModelID)
	kind := domain.MediaKindImage
	if ok {
		kind = model.MediaKind
	}
	imported, err := o.importer.Import(ctx, job.Request.OwnerID, job.ID, kind, out)
	if err != nil {
		return nil, err
	}
	// The import can take long enough for a cancel to land. Keys are per job,
	// so objects of a job completed by another poll are left alone.
	current, err := o.jobs.GetByID(ctx, job.ID)
	if err == nil && current.Status != domain.JobStatusProcessing {
		if endedWithoutOutput(current) {
			o.discardObjects(ctx, job.ID, imported.StorageRef, imported.ThumbnailRef)
		}
		return nil, fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, current.Status)
	}
	asset, err := o.assets.CreateForJob(ctx, job.ID, domain.NewAsset{
		OwnerID:      job.Request.OwnerID,
		Type:         kind,
		StorageRef:   imported.StorageRef,
		ThumbnailRef: imported.ThumbnailRef,
		Metadata:     imported.Metadata,
		Provenance:   domain.Provenance{SourceType: domain.SourceGeneration, SourceGenerationID: job.ID},
	})
	if err != nil {
		return nil, domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceAsset, "could not record generated asset", err)
	}
	return asset, nil
}

func endedWithoutOutput(job *domain.GenerationJob) bool {
	return job != nil && job.Status.Terminal() && job.Status != domain.JobStatusCompleted
}

// discardAsset removes an asset whose job ended without it. Another poll may
// already have removed it, which is fine.
func (o *Orchestrator) discardAsset(ctx context.Context, asset *domain.Asset) {
	jobID := asset.Provenance.SourceGenerationID
	if err := o.assets.Delete(ctx, asset.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		o.logger.Error().Err(err).Str("job_id", jobID).Str("asset_id", asset.ID).Msg("orchestrator: discard asset failed")
		return
	}
	o.discardObjects(ctx, jobID, asset.StorageRef, asset.ThumbnailRef)
	o.logger.Info().Str("job_id", jobID).Str("asset_id", asset.ID).Msg("orchestrator: discarded output of finished job")
}

func (o *Orchestrator) discardObjects(ctx context.Context, jobID string, refs ...string) {
	if err := o.importer.Discard(ctx, refs...); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator: remove discarded objects")
	}
}

func (o *Orchestrator) link(ctx context.Context, jobID, assetID string, logs []string) (*domain.GenerationJob, error) {
	job, err := o.apply(ctx, jobID, func(j *domain.GenerationJob) error {
		if err := transition(j, domain.JobStatusCompleted); err != nil {
			return err
		}
		at := o.now().UTC()
		j.OutputAssetID = assetID
		j.Error = nil
		j.CompletedAt = &at
		j.Progress.ProviderState = domain.ProviderSucceeded
		j.Progress.QueuePosition = nil
		j.Progress.AppendLogs(logs...)
		return nil
	})
	if err == nil {
		metrics.JobsFinished.WithLabelValues(string(domain.JobStatusCompleted), "").Inc()
		o.logger.Info().Str("job_id", jobID).Str("asset_id", assetID).Msg("orchestrator: job completed")
	}
	return job, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}
