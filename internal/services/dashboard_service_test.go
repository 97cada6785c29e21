package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

func TestDashboardServiceStats(t *testing.T) {
	ict := time.FixedZone("ICT", 7*3600)
	now := time.Date(2025, 3, 10, 1, 0, 0, 0, ict)

	orders := newStubOrderRepo(domain.Order{ID: "o1"}, domain.Order{ID: "o2"})
	var gotFrom, gotTo time.Time
	var gotStatuses []domain.OrderStatus
	orders.betweenFn = func(_ context.Context, from, to time.Time, statuses []domain.OrderStatus) ([]domain.Order, error) {
		gotFrom, gotTo, gotStatuses = from, to, statuses
		return []domain.Order{
			{ID: "a", TotalAmount: 100, CreatedAt: time.Date(2025, 3, 8, 3, 0, 0, 0, time.UTC)},
			{ID: "b", TotalAmount: 50, CreatedAt: time.Date(2025, 3, 8, 20, 0, 0, 0, time.UTC)},
			{ID: "c", TotalAmount: 70, CreatedAt: time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC)},
		}, nil
	}
	orders.sumFn = func(context.Context, []domain.OrderStatus) (int64, error) { return 999, nil }
	var recentLimit int
	orders.listFn = func(_ context.Context, filter repositories.OrderListFilter) (domain.PageResult[domain.Order], error) {
		recentLimit = filter.Page.Limit
		return domain.PageResult[domain.Order]{Items: []domain.Order{{ID: "o2"}}}, nil
	}
	products := newStubProductRepo(domain.Product{ID: "p1"})
	products.feeds[repositories.ProductFeedBestSelling] = []domain.Product{{ID: "p1"}}

	svc, err := NewDashboardService(DashboardServiceDeps{
		Users:    newStubUserRepo(domain.User{ID: "u1"}),
		Brands:   newStubBrandRepo(),
		Products: products,
		Orders:   orders,
		Clock:    fixedClock(now),
		Location: ict,
	})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 0, stats.Brands)
	assert.Equal(t, 1, stats.Products)
	assert.Equal(t, 2, stats.Orders)
	assert.Equal(t, int64(999), stats.PaidRevenue)
	assert.Equal(t, domain.RevenueStatuses, gotStatuses)
	assert.Equal(t, time.Date(2025, 3, 7, 17, 0, 0, 0, time.UTC), gotFrom)
	assert.Equal(t, time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC), gotTo)
	assert.Equal(t, 6, recentLimit)
	assert.Equal(t, 5, products.lastLimit)

	require.Len(t, stats.Daily, 3)
	assert.Equal(t, domain.DailyRevenue{Date: "2025-03-08", Revenue: 100, Orders: 1}, stats.Daily[0])
	assert.Equal(t, domain.DailyRevenue{Date: "2025-03-09", Revenue: 50, Orders: 1}, stats.Daily[1])
	assert.Equal(t, domain.DailyRevenue{Date: "2025-03-10", Revenue: 70, Orders: 1}, stats.Daily[2])
}

func TestDashboardServiceClampsDays(t *testing.T) {
	svc, err := NewDashboardService(DashboardServiceDeps{
		Users:    newStubUserRepo(),
		Brands:   newStubBrandRepo(),
		Products: newStubProductRepo(),
		Orders:   newStubOrderRepo(),
		Clock:    fixedClock(time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Days)
	assert.Len(t, stats.Daily, 7)
	assert.Equal(t, "2025-01-25", stats.Daily[0].Date)

	stats, err = svc.Stats(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Days)
	assert.Len(t, stats.Daily, 30)
}
