package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/backoffice/pkg/models"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+mr.Addr()+"/0", "vx:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return mr, c
}

func TestRedisCacheJSON(t *testing.T) {
	ctx := context.Background()
	mr, c := newRedis(t)

	var out models.SidebarCounts
	found, err := c.GetJSON(ctx, "sidebar:c1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetJSON(ctx, "sidebar:c1", models.SidebarCounts{DIDs: 3, Users: 2}, time.Minute))
	assert.True(t, mr.Exists("vx:sidebar:c1"))

	found, err = c.GetJSON(ctx, "sidebar:c1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, out.DIDs)

	mr.FastForward(2 * time.Minute)
	found, err = c.GetJSON(ctx, "sidebar:c1", &out)
	require.NoError(t, err)
	assert.False(t, found, "entry should expire with its TTL")
}

func TestRedisCacheDeletePattern(t *testing.T) {
	ctx := context.Background()
	mr, c := newRedis(t)

	for i := 0; i < 450; i++ {
		require.NoError(t, c.SetJSON(ctx, fmt.Sprintf("dashboard:c1:%d", i), i, time.Minute))
	}
	require.NoError(t, c.SetJSON(ctx, "dashboard:c2", 1, time.Minute))

	n, err := c.DeletePattern(ctx, "dashboard:c1*")
	require.NoError(t, err)
	assert.Equal(t, 450, n)
	assert.True(t, mr.Exists("vx:dashboard:c2"))
}

func TestAggregatesReadThrough(t *testing.T) {
	ctx := context.Background()
	_, c := newRedis(t)
	agg := NewAggregates(c, time.Minute, nil)

	calls := 0
	load := func(context.Context) (*models.DashboardCounts, error) {
		calls++
		return &models.DashboardCounts{Balance: models.NewMoney(10, 0), CallsToday: calls}, nil
	}

	first, err := agg.Dashboard(ctx, "c1", load)
	require.NoError(t, err)
	second, err := agg.Dashboard(ctx, "c1", load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	agg.InvalidateCustomer(ctx, "c1")
	third, err := agg.Dashboard(ctx, "c1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, third.CallsToday)
}

func TestAggregatesDegradeWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	c, err := NewRedisCache("redis://"+mr.Addr()+"/0", "vx:")
	require.NoError(t, err)
	defer c.Close()
	agg := NewAggregates(c, time.Minute, nil)
	mr.Close()

	counts, err := agg.Admin(ctx, func(context.Context) (*models.AdminCounts, error) {
		return &models.AdminCounts{Customers: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, counts.Customers)
	assert.Error(t, agg.Ping(ctx))
}

func TestNopCache(t *testing.T) {
	agg := NewAggregates(nil, 0, nil)
	calls := 0
	load := func(context.Context) (*models.SidebarCounts, error) {
		calls++
		return &models.SidebarCounts{}, nil
	}
	for i := 0; i < 3; i++ {
		_, err := agg.Sidebar(context.Background(), "c1", load)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}
