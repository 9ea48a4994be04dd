package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/config"
	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/gateway"
	"github.com/liliang-cn/doclens/internal/logger"
	"github.com/liliang-cn/doclens/internal/repository"
	"github.com/liliang-cn/doclens/internal/service"
)

// app is the wired object graph behind every command
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	gateway      *gateway.Client
	db           *repository.DB
	history      *service.HistoryService
	orchestrator *service.Orchestrator
}

// newApp loads configuration and wires the orchestrator. Interactive
// commands pass quiet so that only warnings reach the terminal unless
// --verbose is set
func newApp(flags *globalFlags, quiet bool) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	if quiet && !flags.verbose {
		logCfg.Level = "warn"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  log,
		gateway: gateway.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, gateway.WithLogger(log)),
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithHistoryPolicy(domain.HistoryPolicy(cfg.Query.History)),
		service.WithNotifyTTL(cfg.Notify.TTL),
	}
	if cfg.Archive.Enabled {
		db, err := repository.NewDB(cfg.Archive.Path)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		a.db = db
		a.history = service.NewHistoryService(
			repository.NewSessionRepository(db),
			repository.NewUploadRepository(db),
			cfg.Backend.BaseURL,
		)
		opts = append(opts, service.WithRecorder(a.history))
	}

	a.orchestrator = service.NewOrchestrator(a.gateway, opts...)
	return a, nil
}

// Close discards the backend session and releases local resources
func (a *app) Close(ctx context.Context) {
	a.orchestrator.Close(ctx)
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close archive", zap.Error(err))
		}
	}
	a.logger.Sync()
}

func (a *app) requireArchive() error {
	if a.history == nil {
		return fmt.Errorf("archive is disabled (set archive.enabled)")
	}
	return nil
}
