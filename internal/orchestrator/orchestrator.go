// Package orchestrator drives generation jobs from submission to a terminal
// state. Each job is owned by one poll loop; every state change goes through
// a per-job read-modify-write so transitions for one job never interleave.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/lease"
	"genstudio/internal/metrics"
	"genstudio/internal/progress"
	"genstudio/internal/providers"
	"genstudio/internal/resolver"
	"genstudio/internal/storage"
)

// Config holds the timing knobs of the poll loop.
type Config struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	ProviderTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 30 * time.Second
	}
	return c
}

// Importer copies provider output into durable storage and removes it again
// when the job ends without it.
type Importer interface {
	Import(ctx context.Context, ownerID, jobID string, kind domain.MediaKind, out *providers.Output) (*storage.Imported, error)
	Discard(ctx context.Context, refs ...string) error
}

// InputURLFunc turns a stored reference input into a URL the provider can
// fetch. ok is false when the reference cannot be delivered.
type InputURLFunc func(ctx context.Context, ref string) (url string, ok bool)

// Deps are the collaborators of an Orchestrator. Leases, Publisher and
// InputURL are optional.
type Deps struct {
	Resolver  *resolver.Resolver
	Provider  providers.Client
	Jobs      domain.JobRepository
	Assets    domain.AssetRepository
	Importer  Importer
	Broker    *progress.Broker
	Publisher progress.Publisher
	Leases    lease.Manager
	InputURL  InputURLFunc
	Logger    zerolog.Logger
}

// Orchestrator owns the job state machine.
type Orchestrator struct {
	resolver *resolver.Resolver
	provider providers.Client
	jobs     domain.JobRepository
	assets   domain.AssetRepository
	importer Importer
	broker   *progress.Broker
	publish  progress.Publisher
	leases   lease.Manager
	inputURL InputURLFunc
	cfg      Config
	logger   zerolog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	locks keyedMutex

	mu     sync.Mutex
	active map[string]chan struct{}
	closed bool
	loops  sync.WaitGroup
	ctx    context.Context
	stop   context.CancelFunc
}

// New validates deps and builds an orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Resolver == nil:
		return nil, errors.New("orchestrator: resolver is required")
	case deps.Provider == nil:
		return nil, errors.New("orchestrator: provider is required")
	case deps.Jobs == nil || deps.Assets == nil:
		return nil, errors.New("orchestrator: repositories are required")
	case deps.Importer == nil:
		return nil, errors.New("orchestrator: importer is required")
	}
	broker := deps.Broker
	if broker == nil {
		broker = progress.NewBroker(progress.DefaultBuffer)
	}
	publish := progress.Publisher(broker)
	if deps.Publisher != nil {
		publish = progress.Fanout{broker, deps.Publisher}
	}
	leases := deps.Leases
	if leases == nil {
		leases = lease.NewLocal(0)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		resolver: deps.Resolver,
		provider: deps.Provider,
		jobs:     deps.Jobs,
		assets:   deps.Assets,
		importer: deps.Importer,
		broker:   broker,
		publish:  publish,
		leases:   leases,
		inputURL: deps.InputURL,
		cfg:      cfg.withDefaults(),
		logger:   deps.Logger,
		now:      time.Now,
		after:    time.After,
		active:   make(map[string]chan struct{}),
		ctx:      ctx,
		stop:     stop,
	}, nil
}

// Submit validates req, records a job and hands it to the provider. Validation
// failures return a bad_request error and create nothing. Provider failures
// return the job already marked failed, with a nil error.
func (o *Orchestrator) Submit(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationJob, error) {
	req = req.Clone()
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		return nil, domain.NewError(domain.KindUnauthorized, domain.SurfaceJob, "sign in to generate media", nil)
	}
	if parsed, ok := domain.ParseGenerationType(string(req.GenerationType)); ok {
		req.GenerationType = parsed
	}
	model, err := o.resolver.Validate(req)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	job := &domain.GenerationJob{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx = infra.WithJobID(ctx, job.ID)
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("orchestrator: create job: %w", err)
	}
	metrics.JobsSubmitted.WithLabelValues(string(req.GenerationType)).Inc()
	o.publish.Publish(ctx, job.Snapshot())

	log := o.logger.With().Str("job_id", job.ID).Str("model_id", model.ID).Logger()

	payload, err := o.payload(ctx, model, req)
	if err != nil {
		return o.failSubmit(ctx, job.ID, err, log)
	}
	payload.Reference = job.ID

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	started := o.now()
	providerJobID, err := o.provider.CreateJob(callCtx, model.ID, payload)
	cancel()
	observeProviderCall("create", started, o.now(), err)
	if err != nil {
		return o.failSubmit(ctx, job.ID, err, log)
	}

	updated, err := o.apply(ctx, job.ID, func(j *domain.GenerationJob) error {
		if err := transition(j, domain.JobStatusProcessing); err != nil {
			return err
		}
		j.ProviderJobID = providerJobID
		j.Progress.ProviderState = domain.ProviderQueued
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Cancelled while the provider call was in flight.
			o.cancelRemote(providerJobID, log)
			return o.jobs.GetByID(ctx, job.ID)
		}
		return nil, fmt.Errorf("orchestrator: record submission: %w", err)
	}
	log.Info().Str("provider_job_id", providerJobID).Msg("orchestrator: job submitted")
	o.Watch(job.ID)
	return updated, nil
}

func (o *Orchestrator) payload(ctx context.Context, model domain.ModelDescriptor, req domain.GenerationRequest) (providers.Payload, error) {
	p := providers.Payload{
		MediaKind:      model.MediaKind,
		GenerationType: req.GenerationType,
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Parameters:     req.Parameters,
	}
	if len(req.Inputs) == 0 {
		return p, nil
	}
	p.Inputs = make(map[domain.InputKind]string, len(req.Inputs))
	for _, in := range req.Inputs {
		ref := in.StorageRef
		if o.inputURL != nil {
			u, ok := o.inputURL(ctx, ref)
			if !ok {
				return p, domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceStorage, "reference input could not be delivered", fmt.Errorf("orchestrator: sign input %s", in.Kind))
			}
			ref = u
		}
		p.Inputs[in.Kind] = ref
	}
	return p, nil
}

func (o *Orchestrator) failSubmit(ctx context.Context, jobID string, cause error, log zerolog.Logger) (*domain.GenerationJob, error) {
	job, err := o.fail(ctx, jobID, cause)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return job, nil
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: record submit failure: %w", err)
	}
	log.Debug().Str("kind", string(job.Error.Kind)).Msg("orchestrator: submit failed")
	return job, nil
}

// Job returns a job owned by ownerID. Jobs of other owners are reported as
// not found.
func (o *Orchestrator) Job(ctx context.Context, ownerID, jobID string) (*domain.GenerationJob, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, jobNotFound()
		}
		return nil, err
	}
	if job.Request.OwnerID != ownerID {
		return nil, jobNotFound()
	}
	return job, nil
}

func jobNotFound() error {
	return domain.NewError(domain.KindNotFound, domain.SurfaceJob, "generation job not found", domain.ErrNotFound)
}

// Cancel moves a pending or processing job to cancelled and tells the
// provider on a best-effort basis. Cancelling a terminal job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, ownerID, jobID string) (*domain.GenerationJob, error) {
	job, err := o.Job(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	updated, err := o.apply(ctx, jobID, func(j *domain.GenerationJob) error {
		if err := transition(j, domain.JobStatusCancelled); err != nil {
			return err
		}
		at := o.now().UTC()
		j.CompletedAt = &at
		return nil
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return o.jobs.GetByID(ctx, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: cancel: %w", err)
	}
	o.stopLoop(jobID)
	metrics.JobsFinished.WithLabelValues(string(domain.JobStatusCancelled), "").Inc()
	log := o.logger.With().Str("job_id", jobID).Logger()
	log.Info().Msg("orchestrator: job cancelled")
	if updated.ProviderJobID != "" {
		o.cancelRemote(updated.ProviderJobID, log)
	}
	return updated, nil
}

func (o *Orchestrator) cancelRemote(providerJobID string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ProviderTimeout)
	defer cancel()
	started := o.now()
	err := o.provider.Cancel(ctx, providerJobID)
	observeProviderCall("cancel", started, o.now(), err)
	if err != nil {
		log.Warn().Err(err).Str("provider_job_id", providerJobID).Msg("orchestrator: provider cancel not acknowledged")
	}
}

// Subscribe opens a progress stream for a job. The first event is the
// current snapshot; the stream closes after a terminal event.
func (o *Orchestrator) Subscribe(ctx context.Context, ownerID, jobID string) (*progress.Subscription, error) {
	job, err := o.Job(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	snapshot := job.Snapshot()
	sub := o.broker.Subscribe(jobID, &snapshot)
	if snapshot.Status.Terminal() {
		return sub, nil
	}
	// The job may have finished between the read and the subscription.
	if latest, err := o.jobs.GetByID(ctx, jobID); err == nil && latest.Status.Terminal() {
		o.broker.Publish(ctx, latest.Snapshot())
	}
	return sub, nil
}

// Close stops every poll loop and waits for them to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stop()
	o.loops.Wait()
}

// apply runs a read-modify-write for one job under its lock and publishes the
// resulting snapshot. mutate returns domain.ErrInvalidTransition to abort.
func (o *Orchestrator) apply(ctx context.Context, jobID string, mutate func(*domain.GenerationJob) error) (*domain.GenerationJob, error) {
	ctx = infra.WithJobID(ctx, jobID)
	unlock := o.locks.lock(jobID)
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := mutate(job); err != nil {
		unlock()
		return job, err
	}
	job.UpdatedAt = o.now().UTC()
	if err := o.jobs.Update(ctx, job); err != nil {
		unlock()
		return nil, err
	}
	unlock()
	o.publish.Publish(ctx, job.Snapshot())
	return job.Clone(), nil
}

func transition(j *domain.GenerationJob, next domain.JobStatus) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	return nil
}

// fail records cause on the job and moves it to failed.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) (*domain.GenerationJob, error) {
	jobErr := domain.ToJobError(cause)
	job, err := o.apply(ctx, jobID, func(j *domain.GenerationJob) error {
		if err := transition(j, domain.JobStatusFailed); err != nil {
			return err
		}
		at := o.now().UTC()
		j.Error = jobErr
		j.CompletedAt = &at
		return nil
	})
	if err != nil {
		return job, err
	}
	metrics.JobsFinished.WithLabelValues(string(domain.JobStatusFailed), string(jobErr.Kind)).Inc()
	o.logger.Warn().
		Err(cause).
		Str("job_id", jobID).
		Str("kind", string(jobErr.Kind)).
		Str("surface", string(surfaceOf(cause))).
		Msg("orchestrator: job failed")
	return job, nil
}

func surfaceOf(err error) domain.Surface {
	if de, ok := domain.AsError(err); ok {
		return de.Surface
	}
	return domain.SurfaceJob
}

func observeProviderCall(op string, started, finished time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.ProviderCallDuration.WithLabelValues(op, outcome).Observe(finished.Sub(started).Seconds())
}
