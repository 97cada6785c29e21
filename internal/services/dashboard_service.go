package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

const (
	defaultDashboardDays = 7
	maxDashboardDays     = 30
	topProductsLimit     = 5
	recentOrdersLimit    = 6
	dayLayout            = "2006-01-02"
)

// DashboardServiceDeps wires the admin dashboard. Location selects the calendar used for the
// daily revenue buckets and defaults to UTC.
type DashboardServiceDeps struct {
	Users    repositories.UserRepository
	Brands   repositories.BrandRepository
	Products repositories.ProductRepository
	Orders   repositories.OrderRepository
	Clock    func() time.Time
	Location *time.Location
}

type dashboardService struct {
	users    repositories.UserRepository
	brands   repositories.BrandRepository
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	clock    func() time.Time
	loc      *time.Location
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(deps DashboardServiceDeps) (DashboardService, error) {
	if deps.Users == nil || deps.Brands == nil || deps.Products == nil || deps.Orders == nil {
		return nil, errors.New("dashboard service: user, brand, product and order repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &dashboardService{
		users:    deps.Users,
		brands:   deps.Brands,
		products: deps.Products,
		orders:   deps.Orders,
		clock:    clock,
		loc:      loc,
	}, nil
}

// Stats builds the admin overview for the trailing days, today included.
func (s *dashboardService) Stats(ctx context.Context, days int) (DashboardStats, error) {
	if days <= 0 {
		days = defaultDashboardDays
	}
	days = min(days, maxDashboardDays)

	now := s.clock().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	stats := DashboardStats{Days: days, From: from.UTC(), To: to.UTC()}
	var windowOrders []Order

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { stats.Users, err = s.users.Count(gctx); return })
	g.Go(func() (err error) { stats.Brands, err = s.brands.Count(gctx); return })
	g.Go(func() (err error) { stats.Products, err = s.products.Count(gctx); return })
	g.Go(func() (err error) { stats.Orders, err = s.orders.Count(gctx); return })
	g.Go(func() (err error) {
		stats.PaidRevenue, err = s.orders.SumTotal(gctx, domain.RevenueStatuses)
		return
	})
	g.Go(func() (err error) {
		windowOrders, err = s.orders.ListCreatedBetween(gctx, from.UTC(), to.UTC(), domain.RevenueStatuses)
		return
	})
	g.Go(func() (err error) {
		stats.TopProducts, err = s.products.Feed(gctx, repositories.ProductFeedBestSelling, topProductsLimit)
		return
	})
	g.Go(func() error {
		page, err := s.orders.List(gctx, repositories.OrderListFilter{
			Page: domain.Page{Limit: recentOrdersLimit, SortField: "created_at", SortOrder: domain.SortDesc},
		})
		stats.RecentOrders = page.Items
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardStats{}, mapRepositoryError(err, "")
	}

	stats.Daily = dailyRevenue(from, days, windowOrders, s.loc)
	return stats, nil
}

// dailyRevenue buckets orders by calendar day in loc, emitting a zero row for days without
// orders.
func dailyRevenue(from time.Time, days int, orders []Order, loc *time.Location) []domain.DailyRevenue {
	out := make([]domain.DailyRevenue, days)
	index := make(map[string]int, days)
	for i := range days {
		key := from.AddDate(0, 0, i).Format(dayLayout)
		out[i] = domain.DailyRevenue{Date: key}
		index[key] = i
	}
	for _, order := range orders {
		i, ok := index[order.CreatedAt.In(loc).Format(dayLayout)]
		if !ok {
			continue
		}
		out[i].Revenue += order.TotalAmount
		out[i].Orders++
	}
	return out
}
