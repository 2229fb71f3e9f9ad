// Package bootstrap assembles the runtime shared by the API and worker
// processes from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"genstudio/internal/adapter/memory"
	"genstudio/internal/adapter/repo"
	"genstudio/internal/catalog"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
	"genstudio/internal/lease"
	"genstudio/internal/materializer"
	"genstudio/internal/orchestrator"
	"genstudio/internal/progress"
	"genstudio/internal/providers"
	"genstudio/internal/providers/queue"
	"genstudio/internal/providers/synthetic"
	"genstudio/internal/resolver"
	"genstudio/internal/storage"
)

const (
	leasePrefix = "genstudio:lease:"
	keyCacheTTL = time.Minute
	// StaticPrefix is where the local storage driver serves signed objects.
	StaticPrefix = "/static/"
)

// Runtime is the wired set of collaborators.
type Runtime struct {
	Config       *infra.Config
	Logger       zerolog.Logger
	Resolver     *resolver.Resolver
	Orchestrator *orchestrator.Orchestrator
	Jobs         domain.JobRepository
	Assets       domain.AssetRepository
	Materializer *materializer.Materializer
	Broker       *progress.Broker
	// Static serves local storage objects; nil for remote stores.
	Static http.Handler

	pool  *pgxpool.Pool
	redis *redis.Client
	relay *progress.RedisRelay
}

// Build connects every backing service named by cfg.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	cat, err := loadCatalog(cfg.ModelCatalogPath)
	if err != nil {
		return nil, err
	}
	rt.Resolver = resolver.New(cat)
	logger.Info().Int("models", cat.Len()).Msg("bootstrap: catalog loaded")

	var sql infra.SQLExecutor
	if cfg.DatabaseURL != "" {
		rt.pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sql = infra.NewSQLRunner(rt.pool, logger)
		rt.Jobs = repo.NewJobRepository(sql)
		rt.Assets = repo.NewAssetRepository(sql)
	} else {
		logger.Warn().Msg("bootstrap: DATABASE_URL not set, jobs and assets are kept in memory")
		store := memory.NewStore()
		rt.Jobs = store.Jobs()
		rt.Assets = store.Assets()
	}

	objects, signer, err := buildStorage(ctx, cfg, rt)
	if err != nil {
		return nil, err
	}
	rt.Materializer = materializer.New(signer, logger)

	provider, err := buildProvider(cfg, sql, logger)
	if err != nil {
		return nil, err
	}

	rt.Broker = progress.NewBroker(progress.DefaultBuffer)
	deps := orchestrator.Deps{
		Resolver: rt.Resolver,
		Provider: provider,
		Jobs:     rt.Jobs,
		Assets:   rt.Assets,
		Importer: storage.NewImporter(objects, &http.Client{Timeout: 2 * cfg.ProviderTimeout}),
		Broker:   rt.Broker,
		InputURL: rt.inputURL,
		Logger:   logger,
	}
	if cfg.RedisURL != "" {
		rt.redis, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rt.relay = progress.NewRedisRelay(rt.redis, "", logger)
		deps.Publisher = rt.relay
		deps.Leases = lease.NewRedis(rt.redis, leasePrefix, lease.DefaultTTL)
	} else {
		logger.Warn().Msg("bootstrap: REDIS_URL not set, progress and leases are process-local")
	}

	rt.Orchestrator, err = orchestrator.New(deps, orchestrator.Config{
		PollInterval:    cfg.PollInterval,
		Timeout:         cfg.JobTimeout,
		MaxRetries:      cfg.PollMaxRetries,
		RetryBackoff:    cfg.PollRetryBackoff,
		ProviderTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return rt, nil
}

// RunRelay feeds progress published by other processes into the local
// broker until ctx is done. Without Redis it returns immediately.
func (rt *Runtime) RunRelay(ctx context.Context) error {
	if rt.relay == nil {
		return nil
	}
	return rt.relay.Run(ctx, rt.Broker)
}

// Close stops poll loops and releases connections.
func (rt *Runtime) Close() {
	if rt.Orchestrator != nil {
		rt.Orchestrator.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}

func (rt *Runtime) inputURL(ctx context.Context, ref string) (string, bool) {
	u := rt.Materializer.Materialize(ctx, ref, materializer.Options{Expiry: rt.Config.DeliveryURLTTL})
	if u == nil {
		return "", false
	}
	return u.URL, true
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load model catalog %s: %w", path, err)
	}
	return cat, nil
}

func buildStorage(ctx context.Context, cfg *infra.Config, rt *Runtime) (storage.Store, storage.Signer, error) {
	if cfg.StorageDriver == infra.StorageS3 {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3Store, s3Store, nil
	}

	path := cfg.StoragePath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	files, err := storage.NewFileStore(path)
	if err != nil {
		return nil, nil, err
	}
	signer, err := storage.NewLocalSigner(cfg.StorageBaseURL, []byte(cfg.StorageSigningKey))
	if err != nil {
		return nil, nil, err
	}
	rt.Static = &storage.FileHandler{Store: files, Signer: signer, Prefix: StaticPrefix}
	return files, signer, nil
}

func buildProvider(cfg *infra.Config, sql infra.SQLExecutor, logger zerolog.Logger) (providers.Client, error) {
	if cfg.ProviderBaseURL == "" {
		logger.Warn().Msg("bootstrap: PROVIDER_BASE_URL not set, using the synthetic provider")
		return synthetic.New(synthetic.Options{Logger: &logger}), nil
	}
	opts := queue.Options{
		BaseURL:        cfg.ProviderBaseURL,
		APIKey:         cfg.ProviderAPIKey,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
	}
	if cfg.ProviderAPIKey == "" && sql != nil {
		keys := credentials.NewKeySource(credentials.NewStore(sql), "", keyCacheTTL)
		opts.KeyFunc = keys.Key
	}
	client, err := queue.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}
