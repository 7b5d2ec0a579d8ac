package admin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sb-console/engine/pkg/admin"
)

func TestResourceCacheInvalidateByKind(t *testing.T) {
	c := admin.NewResourceCache(admin.DefaultCacheConfig())

	c.Invalidate(admin.CacheKindResourceGroups, "sub-1")
	c.Invalidate(admin.CacheKindNamespaces, "")
	c.Invalidate(admin.CacheKindConnectionString, "sub-1/rg-1/ns-1")
	c.Invalidate(admin.CacheKindQueueStats, "orders")
	c.Invalidate(admin.CacheKindSubscriptions, "")

	assert.NotPanics(t, func() {
		c.Invalidate(admin.CacheKindQueueStats, "orders")
	}, "invalidating twice must be idempotent")
}
