package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/postgres"
)

const logColumns = `id, tenant_id, scope_id, entity_type, prefix, action, code, number,
	success, error_message, created_by, created_at`

type numberingLogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewNumberingLogRepository(db *postgres.DB, logger *logger.Logger) numbering.LogRepository {
	return &numberingLogRepository{db: db, logger: logger}
}

func (r *numberingLogRepository) Create(ctx context.Context, entry *numbering.LogEntry) error {
	query, args, err := psql.Insert("numbering_logs").
		Columns("id", "tenant_id", "scope_id", "entity_type", "prefix", "action", "code",
			"number", "success", "error_message", "created_by", "created_at").
		Values(entry.ID, entry.TenantID, entry.ScopeID, entry.EntityType, entry.Prefix, entry.Action,
			entry.Code, entry.Number, entry.Success, entry.ErrorMessage, entry.CreatedBy, entry.CreatedAt).
		ToSql()
	if err != nil {
		return ierr.WithError(err).WithHint("Failed to build query").Mark(ierr.ErrSystem)
	}

	if _, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "Failed to write numbering log", ierr.ErrDatabase, map[string]any{
			"tenant_id": entry.TenantID,
			"scope_id":  entry.ScopeID,
		})
	}
	return nil
}

func (r *numberingLogRepository) List(ctx context.Context, filter *numbering.LogFilter) ([]*numbering.LogEntry, error) {
	qb := psql.Select(logColumns).
		From("numbering_logs").
		Where(sq.Eq{"tenant_id": filter.TenantID}).
		OrderBy("created_at DESC", "id DESC")
	if filter.ScopeID != "" {
		qb = qb.Where(sq.Eq{"scope_id": filter.ScopeID})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(filter.Limit)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, ierr.WithError(err).WithHint("Failed to build query").Mark(ierr.ErrSystem)
	}

	entries := make([]*numbering.LogEntry, 0)
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, mapError(err, "Failed to list numbering logs", ierr.ErrDatabase, map[string]any{
			"tenant_id": filter.TenantID,
		})
	}
	return entries, nil
}
