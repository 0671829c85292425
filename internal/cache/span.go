package cache

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// startSpan traces a cache operation when the request carries a sentry hub.
// The returned span may be nil.
func startSpan(ctx context.Context, operation, key string) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}
	span := sentry.StartSpan(ctx, "cache.inmemory."+operation)
	span.Op = "cache." + operation
	span.SetData("key", key)
	return span
}

// finishSpan closes a span started by startSpan, recording whether the key was present
func finishSpan(span *sentry.Span, hit bool) {
	if span == nil {
		return
	}
	span.SetData("hit", hit)
	span.Status = sentry.SpanStatusOK
	span.Finish()
}
