package cache

import (
	"context"
	"testing"
	"time"

	"github.com/qmsuite/correlative/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_FlushDropsEveryKey(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Cache.Enabled = true
	c := NewInMemoryCache(cfg)
	ctx := context.Background()

	c.Set(ctx, GenerateKey(PrefixNumberingScope, "tenant_a:audit:AUD:2024:00"), "nscope_1", time.Minute)
	c.Set(ctx, GenerateKey(PrefixNumberingScope, "tenant_b:audit:AUD:2024:00"), "nscope_2", 0)

	v, ok := c.Get(ctx, GenerateKey(PrefixNumberingScope, "tenant_a:audit:AUD:2024:00"))
	assert.True(t, ok)
	assert.Equal(t, "nscope_1", v)

	c.Flush(ctx)

	_, ok = c.Get(ctx, GenerateKey(PrefixNumberingScope, "tenant_a:audit:AUD:2024:00"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, GenerateKey(PrefixNumberingScope, "tenant_b:audit:AUD:2024:00"))
	assert.False(t, ok)
}

func TestInMemoryCache_DisabledNeverStores(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Cache.Enabled = false
	c := NewInMemoryCache(cfg)
	ctx := context.Background()

	c.Set(ctx, "k", "v", time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
