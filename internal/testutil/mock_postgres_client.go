package testutil

import (
	"context"
	"sync/atomic"

	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

type txDepthKey struct{}

// MockPostgresClient is a mock implementation of postgres client for testing.
// The in-memory stores have no rollback, so a failed fn leaves its writes in place.
type MockPostgresClient struct {
	logger *logger.Logger
	txs    atomic.Int64
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function within a transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	// If we're already in a transaction, reuse it
	if depth, ok := ctx.Value(txDepthKey{}).(int); ok {
		return fn(context.WithValue(ctx, txDepthKey{}, depth+1))
	}

	c.txs.Add(1)
	return fn(context.WithValue(ctx, txDepthKey{}, 1))
}

// TxCount returns the number of outermost transactions started
func (c *MockPostgresClient) TxCount() int64 {
	return c.txs.Load()
}
