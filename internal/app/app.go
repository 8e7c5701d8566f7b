// Package app wires configuration into a ready-to-use job service. It is
// shared by the API server and the command line tool.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/timmy/pagepipe/internal/config"
	"github.com/timmy/pagepipe/internal/logger"
	"github.com/timmy/pagepipe/internal/pipeline"
	"github.com/timmy/pagepipe/internal/render"
	"github.com/timmy/pagepipe/internal/repository"
	"github.com/timmy/pagepipe/internal/service"
	"github.com/timmy/pagepipe/internal/storage"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Storage storage.ObjectStorage
	Jobs    *service.JobService

	collaborators *service.Collaborators
}

// NewLogger builds the process logger from environment settings, letting
// the config file override level and format, and installs it as default.
func NewLogger(serviceName string, lc config.LogConfig) *logger.Logger {
	envCfg := logger.LoadFromEnv().Defaults(lc.Level, lc.Format)
	envCfg.ServiceName = serviceName
	l := logger.NewFromEnv(envCfg)
	logger.SetDefaultLogger(l)
	return l
}

// New connects the database, object storage and model providers and builds
// the job service. baseCtx bounds background runs started by the service.
func New(baseCtx context.Context, cfg *config.Config) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	objectStorage, err := storage.NewStorage(baseCtx, cfg.GetStorageConfig())
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	collaborators, err := service.NewCollaborators(baseCtx, cfg, objectStorage)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize model providers: %w", err)
	}

	store := repository.NewStore(db)
	p := cfg.Pipeline
	gw := pipeline.NewRetryingGateway(store, p.PersistRetries, p.PersistBackoff)
	runner := pipeline.NewRunner(gw, collaborators.Extractor, collaborators.Classifier, collaborators.Summarizer, pipeline.RunnerConfig{
		Concurrency:  p.Concurrency,
		StageTimeout: p.StageTimeout,
		RetryPolicy:  pipeline.FixedRetryPolicy(p.RetryBudget, p.RetryBackoff),
		JobDeadline:  p.JobDeadline,
	})

	jobs := service.NewJobService(&service.JobServiceConfig{
		Runner:  runner,
		Gateway: gw,
		Jobs:    store.Jobs,
		Storage: objectStorage,
		Renderers: map[service.SourceKind]render.Renderer{
			service.SourcePDF:      render.NewPDFSplitter(objectStorage, p.MaxPages, cfg.Render.WorkDir),
			service.SourceImageDir: render.NewImageDirRenderer(objectStorage, p.MaxPages),
		},
		BaseCtx: baseCtx,
	})

	return &App{
		Config:        cfg,
		DB:            sqlDB,
		Storage:       objectStorage,
		Jobs:          jobs,
		collaborators: collaborators,
	}, nil
}

// Close releases provider connections and the database pool.
func (a *App) Close() error {
	cerr := a.collaborators.Close()
	if err := a.DB.Close(); err != nil {
		return err
	}
	return cerr
}
