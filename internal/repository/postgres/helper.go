package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/getsentry/sentry-go"
	"github.com/lib/pq"
	ierr "github.com/qmsuite/correlative/internal/errors"
)

// psql builds statements with postgres placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// StartRepositorySpan creates a new span for a repository operation
// Returns nil if Sentry is not available in the context
func StartRepositorySpan(ctx context.Context, repository, operation string, params map[string]interface{}) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "repository."+repository+"."+operation)
	if span != nil {
		span.Description = "repository." + repository + "." + operation
		span.Op = "db.postgres"
		span.SetData("repository", repository)
		span.SetData("operation", operation)
		for k, v := range params {
			span.SetData(k, v)
		}
	}

	return span
}

// FinishSpan safely finishes a span, handling nil spans
func FinishSpan(span *sentry.Span) {
	if span != nil {
		span.Finish()
	}
}

// SetSpanError marks a span as failed and adds error information
func SetSpanError(span *sentry.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.Status = sentry.SpanStatusInternalError
	span.SetData("error", err.Error())
}

// mapError classifies a storage error. Anything that is not a constraint
// violation or a missing row is marked with the fallback sentinel.
func mapError(err error, hint string, fallback error, details map[string]any) error {
	if err == nil {
		return nil
	}

	b := ierr.WithError(err).WithHint(hint).WithReportableDetails(details)

	if errors.Is(err, sql.ErrNoRows) {
		return b.Mark(ierr.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return b.Mark(ierr.ErrAlreadyExists)
		case "23514", "22001": // check_violation, string_data_right_truncation
			return b.Mark(ierr.ErrConfigurationInvalid)
		}
		if strings.HasPrefix(string(pqErr.Code), "08") {
			b = b.WithMessage("connection exception")
		}
	}

	return b.Mark(fallback)
}
