package di

import (
	"context"
	"fmt"

	"github.com/aristath/qpubinder/internal/config"
	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/metrics"
	"github.com/aristath/qpubinder/internal/modules/batch"
	"github.com/aristath/qpubinder/internal/modules/binding"
	bindinghandlers "github.com/aristath/qpubinder/internal/modules/binding/handlers"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	cataloghandlers "github.com/aristath/qpubinder/internal/modules/catalog/handlers"
	"github.com/aristath/qpubinder/internal/modules/circuit"
	"github.com/aristath/qpubinder/internal/reliability"
	"github.com/aristath/qpubinder/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates the catalog, binding and observability components
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.CatalogDB != nil {
		container.Repository = catalog.NewRepository(container.CatalogDB.Conn(), log)
	}

	source, err := NewSource(ctx, cfg, container.Repository, log)
	if err != nil {
		return err
	}
	container.Source = source

	container.Metrics = metrics.New()
	container.Store = catalog.NewStore()
	container.Refresher = catalog.NewRefresher(source, container.Store, cfg.RefresherConfig(), log)
	container.Refresher.SetObserver(container.Metrics)

	container.Engine = binding.NewEngine(cfg.EngineOptions(), log)

	parser, err := circuit.NewCache(circuit.NewParser(log), cfg.Binding.CircuitCacheSize, log)
	if err != nil {
		return fmt.Errorf("failed to create circuit cache: %w", err)
	}
	container.Parser = parser

	container.Pool = batch.NewWorkerPool(container.Engine, cfg.Binding.BatchWorkers, log)
	container.Scheduler = scheduler.New(log)

	if cfg.Backup.Enabled() {
		format, err := catalog.FormatFromPath("backup." + cfg.Backup.Format)
		if err != nil {
			return fmt.Errorf("invalid backup format: %w", err)
		}
		client, err := catalog.NewS3Client(ctx, cfg.BackupS3Config())
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.Backup = reliability.NewCatalogBackupService(client, container.Store, reliability.BackupConfig{
			Bucket:        cfg.Backup.Bucket,
			Prefix:        cfg.Backup.Prefix,
			Format:        format,
			RetentionDays: cfg.Backup.RetentionDays,
		}, log)
	}

	container.BindingHandler = bindinghandlers.NewHandler(
		container.Engine,
		container.Parser,
		container.Store,
		container.Pool,
		container.Metrics,
		cfg.Binding.DefaultWeights,
		log,
	)
	container.CatalogHandler = cataloghandlers.NewHandler(container.Store, container.Refresher, log)

	log.Info().
		Str("catalog_source", source.Name()).
		Int("batch_workers", container.Pool.Workers()).
		Msg("Services initialized")
	return nil
}

// NewSource builds the configured catalog source. repo is required for the
// sqlite source.
func NewSource(ctx context.Context, cfg *config.Config, repo *catalog.Repository, log zerolog.Logger) (domain.QPUSource, error) {
	switch cfg.Catalog.Source {
	case config.SourceMock:
		return catalog.NewMockSource(), nil
	case config.SourceFile:
		return catalog.NewFileSource(cfg.Catalog.Path)
	case config.SourceSQLite:
		if repo == nil {
			return nil, fmt.Errorf("sqlite catalog source needs the catalog database")
		}
		return repo, nil
	case config.SourceS3:
		client, err := catalog.NewS3Client(ctx, cfg.Catalog.S3)
		if err != nil {
			return nil, err
		}
		return catalog.NewS3Source(client, cfg.Catalog.S3.Bucket, cfg.Catalog.S3.Key, log)
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}
