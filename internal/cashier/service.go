package cashier

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lastmile/cashdesk/internal/platform/cache"
	"github.com/lastmile/cashdesk/internal/shared"
)

const dayLayout = "2006-01-02"

// Service serves the front desk's read models through the versioned cache.
type Service struct {
	repo  Repository
	cache *cache.Versioned
	loc   *time.Location
	now   func() time.Time
}

// NewService wires a Repository with the cache. A nil cache reads straight from the repository.
func NewService(repo Repository, c *cache.Versioned, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, cache: c, loc: loc, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// day resolves an optional YYYY-MM-DD into the day label and its bounds. Empty means today.
func (s *Service) day(raw string) (string, time.Time, time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = s.now().In(s.loc).Format(dayLayout)
	}
	start, err := time.ParseInLocation(dayLayout, raw, s.loc)
	if err != nil {
		return "", time.Time{}, time.Time{}, shared.Validation("invalid date %q", raw)
	}
	return raw, start, start.AddDate(0, 0, 1), nil
}

// DailySummary returns, per active deliveryman with activity on date, what is still owed.
func (s *Service) DailySummary(ctx context.Context, date string) ([]DeliverymanSummary, error) {
	label, start, end, err := s.day(date)
	if err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, "cashier", "daily", label)
	if err != nil {
		return nil, err
	}
	var out []DeliverymanSummary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		totals, err := s.repo.DailyTotals(ctx, start, end)
		if err != nil {
			return nil, err
		}
		rows := make([]DeliverymanSummary, 0, len(totals))
		for _, t := range totals {
			rows = append(rows, Summarize(t))
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeliverymanDay returns the orders and ledger rows behind one deliveryman's daily line.
func (s *Service) DeliverymanDay(ctx context.Context, deliverymanID int64, date string) (DeliverymanDay, error) {
	if deliverymanID <= 0 {
		return DeliverymanDay{}, shared.Validation("deliveryman is required")
	}
	label, start, end, err := s.day(date)
	if err != nil {
		return DeliverymanDay{}, err
	}
	key, err := s.cache.BuildKey(ctx, "cashier", "day", strconv.FormatInt(deliverymanID, 10), label)
	if err != nil {
		return DeliverymanDay{}, err
	}
	var out DeliverymanDay
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		orders, err := s.repo.DayOrders(ctx, deliverymanID, start, end)
		if err != nil {
			return nil, err
		}
		movements, err := s.repo.DayMovements(ctx, deliverymanID, start, end)
		if err != nil {
			return nil, err
		}
		if orders == nil {
			orders = []DayOrder{}
		}
		if movements == nil {
			movements = []DayMovement{}
		}
		return DeliverymanDay{DeliverymanID: deliverymanID, Date: label, Orders: orders, Movements: movements}, nil
	})
	if err != nil {
		return DeliverymanDay{}, err
	}
	return out, nil
}
