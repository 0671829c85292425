package service

import (
	"time"

	"github.com/qmsuite/correlative/internal/cache"
	"github.com/qmsuite/correlative/internal/config"
	"github.com/qmsuite/correlative/internal/domain/numbering"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/postgres"
	"github.com/qmsuite/correlative/internal/sentry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Cache  cache.Cache
	Sentry *sentry.Service

	// Clock returns the current instant; numbering resolves it once per call
	Clock func() time.Time

	// Repositories
	NumberingRepo    numbering.Repository
	NumberingLogRepo numbering.LogRepository
}

// NewServiceParams creates a new ServiceParams instance
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db *postgres.DB,
	cache cache.Cache,
	sentry *sentry.Service,
	numberingRepo numbering.Repository,
	numberingLogRepo numbering.LogRepository,
) ServiceParams {
	return ServiceParams{
		Logger:           logger,
		Config:           config,
		DB:               db,
		Cache:            cache,
		Sentry:           sentry,
		Clock:            time.Now,
		NumberingRepo:    numberingRepo,
		NumberingLogRepo: numberingLogRepo,
	}
}

// now returns the current instant in the configured numbering timezone
func (p ServiceParams) now() time.Time {
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().In(p.Config.Numbering.Location())
}
