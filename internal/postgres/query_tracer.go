package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/metrics"
)

// queryTrace times one statement; finish logs it and records its latency
type queryTrace struct {
	logger *logger.Logger
	query  string
	args   []interface{}
	txID   string
	start  time.Time
}

// finish reports the statement. No rows is an expected outcome for lookups.
func (t queryTrace) finish(err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		outcome = metrics.OutcomeFailure
	}
	metrics.ObserveQuery(statementVerb(t.query), outcome, t.start)

	fields := []interface{}{
		"duration_ms", time.Since(t.start).Milliseconds(),
		"query", t.query,
		"args", len(t.args),
	}
	if t.txID != "" {
		fields = append(fields, "tx_id", t.txID)
	}
	if outcome == metrics.OutcomeFailure {
		t.logger.Errorw("database query failed", append(fields, "error", err)...)
		return
	}
	t.logger.Debugw("database query completed", fields...)
}

// statementVerb returns the leading keyword of a statement, ex "insert"
func statementVerb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// TracedQuerier logs and times every statement run through the wrapped Querier
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

// NewTracedQuerier wraps q; txID is empty outside a transaction
func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{Querier: q, logger: logger, txID: txID}
}

func (tq *TracedQuerier) trace(query string, args []interface{}) queryTrace {
	return queryTrace{logger: tq.logger, query: query, args: args, txID: tq.txID, start: time.Now()}
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	t := tq.trace(query, args)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	t.finish(err)
	return result, err
}

func (tq *TracedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	t := tq.trace(query, args)
	rows, err := tq.Querier.QueryContext(ctx, query, args...)
	t.finish(err)
	return rows, err
}

// QueryRowxContext reports the row error eagerly; callers still see it on Scan
func (tq *TracedQuerier) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	t := tq.trace(query, args)
	row := tq.Querier.QueryRowxContext(ctx, query, args...)
	t.finish(row.Err())
	return row
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	t := tq.trace(query, args)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	t.finish(err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	t := tq.trace(query, args)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	t.finish(err)
	return err
}
