package cli

import (
	"context"

	"github.com/qmsuite/correlative/internal/cache"
	"github.com/qmsuite/correlative/internal/config"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/postgres"
	"github.com/qmsuite/correlative/internal/repository"
	"github.com/qmsuite/correlative/internal/sentry"
	"github.com/qmsuite/correlative/internal/service"
	"github.com/qmsuite/correlative/internal/types"
)

// Services are the numbering services a command uses
type Services struct {
	Numbering service.NumberingService
	Reset     service.NumberingResetService
}

// Connector returns the services and a function releasing them
type Connector func(ctx context.Context) (*Services, func(), error)

// ConnectFromConfig wires the services the same way the server does, without fx
func ConnectFromConfig(_ context.Context) (*Services, func(), error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.Deployment.Mode = types.ModeCLI

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	sentrySvc := sentry.NewSentryService(cfg, log)
	if err := sentrySvc.Init(); err != nil {
		log.Warnw("continuing without sentry", "error", err)
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	params := service.NewServiceParams(
		log,
		cfg,
		db,
		cache.NewInMemoryCache(cfg),
		sentrySvc,
		repository.NewNumberingRepository(db, log),
		repository.NewNumberingLogRepository(db, log),
	)

	release := func() {
		sentrySvc.Flush(2)
		if err := db.Close(); err != nil {
			log.Warnw("failed to close database", "error", err)
		}
		_ = log.Sync()
	}

	return &Services{
		Numbering: service.NewNumberingService(params),
		Reset:     service.NewNumberingResetService(params),
	}, release, nil
}
