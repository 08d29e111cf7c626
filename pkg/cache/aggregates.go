package cache

import (
	"context"
	"time"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/models"
)

// DefaultTTL applies when Aggregates is built with a zero TTL
const DefaultTTL = 60 * time.Second

// Aggregates is a read-through cache for the count queries behind dashboards.
// Cache failures fall back to the loader.
type Aggregates struct {
	cache  Cache
	ttl    time.Duration
	logger *logging.Logger
}

// NewAggregates wraps c. A nil c disables caching.
func NewAggregates(c Cache, ttl time.Duration, logger *logging.Logger) *Aggregates {
	if c == nil {
		c = NopCache{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Aggregates{cache: c, ttl: ttl, logger: logger.WithComponent("cache")}
}

func dashboardKey(customerID string) string { return "dashboard:" + customerID }
func sidebarKey(customerID string) string   { return "sidebar:" + customerID }

const adminKey = "admin:counts"

// Dashboard returns the customer's dashboard counts
func (a *Aggregates) Dashboard(ctx context.Context, customerID string, load func(context.Context) (*models.DashboardCounts, error)) (*models.DashboardCounts, error) {
	return readThrough(ctx, a, dashboardKey(customerID), load)
}

// Sidebar returns the customer's navigation badge counts
func (a *Aggregates) Sidebar(ctx context.Context, customerID string, load func(context.Context) (*models.SidebarCounts, error)) (*models.SidebarCounts, error) {
	return readThrough(ctx, a, sidebarKey(customerID), load)
}

// Admin returns the platform-wide counts
func (a *Aggregates) Admin(ctx context.Context, load func(context.Context) (*models.AdminCounts, error)) (*models.AdminCounts, error) {
	return readThrough(ctx, a, adminKey, load)
}

// InvalidateCustomer drops the cached counts of one customer and the admin totals
func (a *Aggregates) InvalidateCustomer(ctx context.Context, customerID string) {
	patterns := []string{"admin:*"}
	if customerID != "" {
		patterns = append(patterns, dashboardKey(customerID)+"*", sidebarKey(customerID)+"*")
	}
	for _, p := range patterns {
		if _, err := a.cache.DeletePattern(ctx, p); err != nil {
			a.logger.Warn("Failed to invalidate cache", map[string]interface{}{"pattern": p, "error": err})
		}
	}
}

// InvalidateAdmin drops the cached admin totals
func (a *Aggregates) InvalidateAdmin(ctx context.Context) {
	a.InvalidateCustomer(ctx, "")
}

// Ping checks the backing cache
func (a *Aggregates) Ping(ctx context.Context) error {
	return a.cache.Ping(ctx)
}

func readThrough[T any](ctx context.Context, a *Aggregates, key string, load func(context.Context) (*T, error)) (*T, error) {
	var cached T
	found, err := a.cache.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		a.logger.Warn("Cache read failed", map[string]interface{}{"key": key, "error": err})
	case found:
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return &cached, nil
	default:
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.cache.SetJSON(ctx, key, v, a.ttl); err != nil {
		a.logger.Warn("Cache write failed", map[string]interface{}{"key": key, "error": err})
	}
	return v, nil
}
