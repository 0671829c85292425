package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/postgres"
	"github.com/qmsuite/correlative/internal/types"
)

const scopeColumns = `id, tenant_id, entity_type, prefix, year, month, last_number, format,
	reset_annual, reset_monthly, advanced_config, error_log, status,
	created_at, updated_at, created_by, updated_by`

type numberingRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewNumberingRepository(db *postgres.DB, logger *logger.Logger) numbering.Repository {
	return &numberingRepository{db: db, logger: logger}
}

func keyDetails(key numbering.ScopeKey) map[string]any {
	return map[string]any{
		"tenant_id":   key.TenantID,
		"entity_type": key.EntityType,
		"prefix":      key.Prefix,
		"period":      key.Period.String(),
	}
}

func (r *numberingRepository) GetOrCreate(ctx context.Context, key numbering.ScopeKey, defaults numbering.ScopeDefaults) (*numbering.Scope, error) {
	span := StartRepositorySpan(ctx, "numbering", "get_or_create", keyDetails(key))
	defer FinishSpan(span)

	// the no-op update makes RETURNING yield the existing row on conflict
	query := `
		INSERT INTO numbering_scopes (
			id, tenant_id, entity_type, prefix, year, month, last_number, format,
			reset_annual, reset_monthly, advanced_config, error_log, status,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, '[]'::jsonb, $11,
			NOW(), NOW(), $12, $12
		)
		ON CONFLICT (tenant_id, entity_type, prefix, year, month) DO UPDATE
		SET updated_at = numbering_scopes.updated_at
		RETURNING ` + scopeColumns

	var s numbering.Scope
	err := r.db.GetQuerier(ctx).GetContext(ctx, &s, query,
		types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NUMBERING_SCOPE),
		key.TenantID,
		key.EntityType,
		key.Prefix,
		key.Period.Year,
		key.Period.Month,
		defaults.Format,
		defaults.ResetAnnual,
		defaults.ResetMonthly,
		defaults.AdvancedConfig,
		types.StatusActive,
		defaults.CreatedBy,
	)
	if err != nil {
		SetSpanError(span, err)
		return nil, mapError(err, "Numbering scope could not be resolved", ierr.ErrScopeNotResolvable, keyDetails(key))
	}

	return &s, nil
}

func (r *numberingRepository) Get(ctx context.Context, tenantID, id string) (*numbering.Scope, error) {
	span := StartRepositorySpan(ctx, "numbering", "get", map[string]interface{}{"scope_id": id})
	defer FinishSpan(span)

	query, args, err := psql.Select(scopeColumns).
		From("numbering_scopes").
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return nil, ierr.WithError(err).WithHint("Failed to build query").Mark(ierr.ErrSystem)
	}

	var s numbering.Scope
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &s, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, mapError(err, "Numbering scope not found", ierr.ErrScopeNotResolvable, map[string]any{"scope_id": id})
	}
	return &s, nil
}

func (r *numberingRepository) FindByKey(ctx context.Context, key numbering.ScopeKey) (*numbering.Scope, error) {
	span := StartRepositorySpan(ctx, "numbering", "find_by_key", keyDetails(key))
	defer FinishSpan(span)

	query, args, err := psql.Select(scopeColumns).
		From("numbering_scopes").
		Where(sq.Eq{
			"tenant_id":   key.TenantID,
			"entity_type": key.EntityType,
			"prefix":      key.Prefix,
			"year":        key.Period.Year,
			"month":       key.Period.Month,
		}).
		ToSql()
	if err != nil {
		return nil, ierr.WithError(err).WithHint("Failed to build query").Mark(ierr.ErrSystem)
	}

	var s numbering.Scope
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &s, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, mapError(err, "Numbering scope not found", ierr.ErrScopeNotResolvable, keyDetails(key))
	}
	return &s, nil
}

func (r *numberingRepository) AtomicIncrement(ctx context.Context, tenantID, scopeID string) (*numbering.IncrementResult, error) {
	span := StartRepositorySpan(ctx, "numbering", "atomic_increment", map[string]interface{}{"scope_id": scopeID})
	defer FinishSpan(span)

	// a single statement: the row lock serializes concurrent increments of one scope
	query := `
		UPDATE numbering_scopes
		SET last_number = last_number + 1,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + scopeColumns

	var s numbering.Scope
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &s, query, scopeID, tenantID); err != nil {
		SetSpanError(span, err)
		return nil, mapError(err, "Numbering increment failed", ierr.ErrIncrementFailed, map[string]any{
			"scope_id":  scopeID,
			"tenant_id": tenantID,
		})
	}

	return &numbering.IncrementResult{
		Scope:              &s,
		PreviousLastNumber: s.LastNumber - 1,
		NewLastNumber:      s.LastNumber,
	}, nil
}

func (r *numberingRepository) ApplyConfig(ctx context.Context, tenantID, scopeID string, patch numbering.ConfigPatch) (*numbering.Scope, error) {
	span := StartRepositorySpan(ctx, "numbering", "apply_config", map[string]interface{}{"scope_id": scopeID})
	defer FinishSpan(span)

	advanced, err := json.Marshal(patch.AdvancedConfig)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid advanced configuration").
			Mark(ierr.ErrConfigurationInvalid)
	}

	// jsonb || merges the provided advanced config keys into the stored ones
	query := `
		UPDATE numbering_scopes
		SET format = COALESCE($3, format),
			reset_annual = COALESCE($4, reset_annual),
			reset_monthly = COALESCE($5, reset_monthly),
			advanced_config = advanced_config || $6::jsonb,
			updated_by = COALESCE(NULLIF($7, ''), updated_by),
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + scopeColumns

	var s numbering.Scope
	err = r.db.GetQuerier(ctx).GetContext(ctx, &s, query,
		scopeID,
		tenantID,
		patch.Format,
		patch.ResetAnnual,
		patch.ResetMonthly,
		string(advanced),
		patch.ModifiedBy,
	)
	if err != nil {
		SetSpanError(span, err)
		return nil, mapError(err, "Numbering configuration could not be applied", ierr.ErrScopeNotResolvable, map[string]any{
			"scope_id":  scopeID,
			"tenant_id": tenantID,
		})
	}
	return &s, nil
}

func (r *numberingRepository) List(ctx context.Context, filter *numbering.ScopeFilter) ([]*numbering.Scope, error) {
	span := StartRepositorySpan(ctx, "numbering", "list", map[string]interface{}{"tenant_id": filter.TenantID})
	defer FinishSpan(span)

	qb := psql.Select(scopeColumns).
		From("numbering_scopes").
		Where(sq.Eq{"tenant_id": filter.TenantID, "status": types.StatusActive}).
		OrderBy("entity_type", "prefix", "year", "month")
	if filter.EntityType != "" {
		qb = qb.Where(sq.Eq{"entity_type": filter.EntityType})
	}
	if filter.Prefix != "" {
		qb = qb.Where(sq.Eq{"prefix": numbering.NormalizePrefix(filter.Prefix)})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, ierr.WithError(err).WithHint("Failed to build query").Mark(ierr.ErrSystem)
	}

	scopes := make([]*numbering.Scope, 0)
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &scopes, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, mapError(err, "Failed to list numbering scopes", ierr.ErrDatabase, map[string]any{
			"tenant_id": filter.TenantID,
		})
	}
	return scopes, nil
}

func (r *numberingRepository) ListResetCandidates(ctx context.Context, tenantID string, policy types.ResetPolicy) ([]*numbering.Scope, error) {
	span := StartRepositorySpan(ctx, "numbering", "list_reset_candidates", map[string]interface{}{
		"tenant_id": tenantID,
		"policy":    policy,
	})
	defer FinishSpan(span)

	// yearly configurations that also reset monthly are handled by the monthly run
	condition := "reset_annual AND NOT reset_monthly"
	if policy == types.ResetPolicyMonthly {
		condition = "reset_monthly"
	}

	// the flags of the most recent scope are the live configuration
	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT DISTINCT ON (entity_type, prefix) %s
			FROM numbering_scopes
			WHERE tenant_id = $1 AND status = $2
			ORDER BY entity_type, prefix, year DESC, month DESC
		) latest
		WHERE %s
		ORDER BY entity_type, prefix`, scopeColumns, scopeColumns, condition)

	scopes := make([]*numbering.Scope, 0)
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &scopes, query, tenantID, types.StatusActive); err != nil {
		SetSpanError(span, err)
		return nil, mapError(err, "Failed to list reset candidates", ierr.ErrDatabase, map[string]any{
			"tenant_id": tenantID,
			"policy":    policy,
		})
	}
	return scopes, nil
}

func (r *numberingRepository) ListTenants(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("DISTINCT tenant_id").
		From("numbering_scopes").
		Where(sq.Eq{"status": types.StatusActive}).
		OrderBy("tenant_id").
		ToSql()
	if err != nil {
		return nil, ierr.WithError(err).WithHint("Failed to build query").Mark(ierr.ErrSystem)
	}

	tenants := make([]string, 0)
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &tenants, query, args...); err != nil {
		return nil, mapError(err, "Failed to list tenants", ierr.ErrDatabase, nil)
	}
	return tenants, nil
}

func (r *numberingRepository) ResetWhere(ctx context.Context, filter numbering.ResetFilter) (bool, error) {
	key := filter.Key()
	span := StartRepositorySpan(ctx, "numbering", "reset_where", keyDetails(key))
	defer FinishSpan(span)

	// the old value is read under the row lock so a concurrent increment that commits
	// first is counted; rows already at zero are left alone
	query := `
		WITH old AS (
			SELECT id, last_number FROM numbering_scopes
			WHERE tenant_id = $2 AND entity_type = $3 AND prefix = $4 AND year = $5 AND month = $6
			FOR UPDATE
		), zeroed AS (
			UPDATE numbering_scopes AS s
			SET last_number = 0,
				updated_at = NOW()
			FROM old
			WHERE s.id = old.id AND old.last_number <> 0
			RETURNING old.last_number
		), created AS (
			INSERT INTO numbering_scopes (
				id, tenant_id, entity_type, prefix, year, month, last_number, format,
				reset_annual, reset_monthly, advanced_config, error_log, status,
				created_at, updated_at, created_by, updated_by
			) VALUES (
				$1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, '[]'::jsonb, $11,
				NOW(), NOW(), $12, $12
			)
			ON CONFLICT (tenant_id, entity_type, prefix, year, month) DO NOTHING
		)
		SELECT COALESCE((SELECT last_number FROM zeroed), 0)`

	var previous int64
	err := r.db.GetQuerier(ctx).GetContext(ctx, &previous, query,
		types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NUMBERING_SCOPE),
		key.TenantID,
		key.EntityType,
		key.Prefix,
		key.Period.Year,
		key.Period.Month,
		filter.Defaults.Format,
		filter.Defaults.ResetAnnual,
		filter.Defaults.ResetMonthly,
		filter.Defaults.AdvancedConfig,
		types.StatusActive,
		filter.Defaults.CreatedBy,
	)
	if err != nil {
		SetSpanError(span, err)
		return false, mapError(err, "Numbering scope could not be reset", ierr.ErrScopeNotResolvable, keyDetails(key))
	}

	r.logger.Debugw("numbering scope reset",
		"tenant_id", key.TenantID,
		"entity_type", key.EntityType,
		"prefix", key.Prefix,
		"period", key.Period.String(),
		"previous_last_number", previous,
	)
	return previous > 0, nil
}

func (r *numberingRepository) AppendErrorLog(ctx context.Context, tenantID string, entityType types.EntityType, prefix string, entry numbering.ErrorLogEntry, limit int) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrLoggingFailure)
	}

	// appends to the most recent scope of the configuration and keeps the last $5 entries
	query := `
		UPDATE numbering_scopes
		SET error_log = (
				SELECT COALESCE(jsonb_agg(e.value ORDER BY e.ord), '[]'::jsonb)
				FROM jsonb_array_elements(numbering_scopes.error_log || jsonb_build_array($4::jsonb))
					WITH ORDINALITY AS e(value, ord)
				WHERE e.ord > jsonb_array_length(numbering_scopes.error_log) + 1 - $5
			),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM numbering_scopes
			WHERE tenant_id = $1 AND entity_type = $2 AND prefix = $3
			ORDER BY year DESC, month DESC
			LIMIT 1
		)`

	res, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		tenantID, entityType, numbering.NormalizePrefix(prefix), string(payload), limit)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to append numbering error log").
			Mark(ierr.ErrLoggingFailure)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Debugw("no numbering scope to attach error log entry to",
			"tenant_id", tenantID,
			"entity_type", entityType,
			"prefix", prefix,
		)
	}
	return nil
}
