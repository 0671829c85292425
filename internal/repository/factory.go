package repository

import (
	"github.com/qmsuite/correlative/internal/domain/numbering"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/postgres"
	postgresRepo "github.com/qmsuite/correlative/internal/repository/postgres"
)

func NewNumberingRepository(db *postgres.DB, logger *logger.Logger) numbering.Repository {
	return postgresRepo.NewNumberingRepository(db, logger)
}

func NewNumberingLogRepository(db *postgres.DB, logger *logger.Logger) numbering.LogRepository {
	return postgresRepo.NewNumberingLogRepository(db, logger)
}
