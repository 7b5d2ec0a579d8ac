package admin

import (
	"strings"
	"time"

	"github.com/sb-console/engine/pkg/cache"
	"github.com/sb-console/engine/pkg/model"
)

// CacheKind names the kind half of the (kind, key) lookup the resource
// cache uses. Each kind is backed by its own typed cache underneath.
type CacheKind string

const (
	CacheKindSubscriptions    CacheKind = "subscriptions"
	CacheKindResourceGroups   CacheKind = "resource_groups"
	CacheKindNamespaces       CacheKind = "namespaces"
	CacheKindConnectionString CacheKind = "connection_string"
	CacheKindQueueStats       CacheKind = "queue_stats"
)

// CacheConfig tunes TTLs and the LRU ceiling for the resource cache.
type CacheConfig struct {
	ResourceTTL   time.Duration
	QueueStatsTTL time.Duration
	MaxEntries    int
}

// DefaultCacheConfig returns the recommended resource/stats TTLs.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ResourceTTL:   5 * time.Minute,
		QueueStatsTTL: 60 * time.Second,
		MaxEntries:    1000,
	}
}

const subscriptionsKey = "_"

// ResourceCache fronts the admin client's slow-changing lookups: the
// subscription/resource-group/namespace discovery tree, namespace
// connection strings, and per-queue statistics. Each kind is a separate
// cache.Cache instance so values keep their concrete type.
type ResourceCache struct {
	cfg CacheConfig

	subscriptions    *cache.Cache[string, []Subscription]
	resourceGroups   *cache.Cache[string, []ResourceGroup]
	namespaces       *cache.Cache[string, []Namespace]
	connectionString *cache.Cache[string, string]
	queueStats       *cache.Cache[string, model.QueueStatsCache]
}

// NewResourceCache constructs a ResourceCache with the given TTL/size
// policy.
func NewResourceCache(cfg CacheConfig) *ResourceCache {
	entryCfg := cache.Config{MaxEntries: cfg.MaxEntries}
	return &ResourceCache{
		cfg:              cfg,
		subscriptions:    cache.New[string, []Subscription](entryCfg),
		resourceGroups:   cache.New[string, []ResourceGroup](entryCfg),
		namespaces:       cache.New[string, []Namespace](entryCfg),
		connectionString: cache.New[string, string](entryCfg),
		queueStats:       cache.New[string, model.QueueStatsCache](entryCfg),
	}
}

func namespaceScopedKey(subscriptionID string) string { return subscriptionID }

func connectionStringKey(subscriptionID, resourceGroup, namespace string) string {
	return strings.Join([]string{subscriptionID, resourceGroup, namespace}, "/")
}

func queueStatsKey(subscriptionID, resourceGroup, namespace, queueName string) string {
	return strings.Join([]string{subscriptionID, resourceGroup, namespace, queueName}, "/")
}

// QueueStatsCacheKey builds the cache key GetQueueCounts stores its results
// under, for callers (the mediator) that need to invalidate an entry
// without a namespace-scoped client in hand.
func QueueStatsCacheKey(subscriptionID, resourceGroup, namespace, queueName string) string {
	return queueStatsKey(subscriptionID, resourceGroup, namespace, queueName)
}

// Invalidate drops the cached entry for (kind, key). An empty key clears
// every entry of that kind.
func (c *ResourceCache) Invalidate(kind CacheKind, key string) {
	switch kind {
	case CacheKindSubscriptions:
		c.subscriptions.Invalidate(subscriptionsKey)
	case CacheKindResourceGroups:
		if key == "" {
			c.resourceGroups.InvalidateAll()
		} else {
			c.resourceGroups.Invalidate(key)
		}
	case CacheKindNamespaces:
		if key == "" {
			c.namespaces.InvalidateAll()
		} else {
			c.namespaces.Invalidate(key)
		}
	case CacheKindConnectionString:
		if key == "" {
			c.connectionString.InvalidateAll()
		} else {
			c.connectionString.Invalidate(key)
		}
	case CacheKindQueueStats:
		if key == "" {
			c.queueStats.InvalidateAll()
		} else {
			c.queueStats.Invalidate(key)
		}
	}
}
