package service

import (
	"context"
	"time"

	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/metrics"
	"github.com/qmsuite/correlative/internal/types"
)

// sinkTimeout bounds the best-effort writes made after a failed issuance
const sinkTimeout = 2 * time.Second

// recordFailure reports a failed issuance everywhere it is observable. None of the
// writes here may change the error returned to the caller.
func (s *numberingService) recordFailure(ctx context.Context, key numbering.ScopeKey, userID string, cause error) {
	reason := failureReason(cause)
	metrics.GenerationFailed(key.EntityType.String(), reason)

	s.Logger.Errorw("numbering code generation failed",
		"tenant_id", key.TenantID,
		"entity_type", key.EntityType,
		"prefix", key.Prefix,
		"period", key.Period.String(),
		"reason", reason,
		"error", cause,
	)

	if s.Sentry != nil {
		s.Sentry.CaptureWithTags(ctx, cause, map[string]string{
			"tenant_id":   key.TenantID,
			"entity_type": key.EntityType.String(),
			"prefix":      key.Prefix,
			"reason":      reason,
		})
	}

	// the request context may already be done, the sink must still run
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	s.appendErrorLog(sinkCtx, key, cause)
	s.writeAudit(sinkCtx, &numbering.LogEntry{
		TenantID:     key.TenantID,
		EntityType:   key.EntityType,
		Prefix:       key.Prefix,
		Action:       numbering.LogActionCreate,
		Success:      false,
		ErrorMessage: cause.Error(),
		CreatedBy:    userID,
	})
}

// appendErrorLog adds the failure to the error log of the configuration. A failure
// to do so is logged and counted, never returned.
func (s *numberingService) appendErrorLog(ctx context.Context, key numbering.ScopeKey, cause error) {
	entry := numbering.ErrorLogEntry{
		Message:    cause.Error(),
		OccurredAt: s.now(),
	}

	err := s.NumberingRepo.AppendErrorLog(ctx, key.TenantID, key.EntityType, key.Prefix, entry, s.Config.Numbering.ErrorLogLimit)
	if err == nil {
		return
	}

	err = ierr.WithError(err).
		WithHint("Could not record the numbering failure").
		Mark(ierr.ErrLoggingFailure)
	metrics.ErrorLogWriteFailed()
	s.Logger.Warnw("failed to append numbering error log",
		"tenant_id", key.TenantID,
		"entity_type", key.EntityType,
		"prefix", key.Prefix,
		"original_error", cause,
		"error", err,
	)
}

// writeAudit appends an entry to the audit trail when it is enabled
func (s *numberingService) writeAudit(ctx context.Context, entry *numbering.LogEntry) {
	if !s.Config.Numbering.AuditLogEnabled || s.NumberingLogRepo == nil {
		return
	}

	if entry.ID == "" {
		entry.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NUMBERING_LOG)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	if err := s.NumberingLogRepo.Create(ctx, entry); err != nil {
		s.Logger.Warnw("failed to write numbering audit entry",
			"tenant_id", entry.TenantID,
			"entity_type", entry.EntityType,
			"action", entry.Action,
			"error", err,
		)
	}
}

func failureReason(err error) string {
	switch {
	case ierr.IsConfigurationInvalid(err):
		return ierr.ErrCodeConfigurationInvalid
	case ierr.IsIncrementFailed(err):
		return ierr.ErrCodeIncrementFailed
	case ierr.IsScopeNotResolvable(err):
		return ierr.ErrCodeScopeNotResolvable
	default:
		return ierr.ErrCodeSystemError
	}
}
