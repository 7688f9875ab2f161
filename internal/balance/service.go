package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/lastmile/cashdesk/internal/shared"
)

// Apply folds one order write into the daily balances through tx: the old impact is withdrawn,
// sent counters and expedition fees follow the order between (shop, date) pairs, the new impact is
// added, and the debt of every touched pair is recomputed. Any error must abort the caller's
// transaction. Dates are cut in loc.
func Apply(ctx context.Context, tx TxRepository, change OrderChange, loc *time.Location) error {
	if change.Old == nil && change.New == nil {
		return nil
	}
	if err := validateSnapshot(change.Old); err != nil {
		return err
	}
	if err := validateSnapshot(change.New); err != nil {
		return err
	}
	plan := Plan(change, loc)
	for _, d := range plan {
		if d.IsZero() {
			continue
		}
		if err := tx.ApplyDelta(ctx, d); err != nil {
			return err
		}
	}
	for _, d := range plan {
		if err := tx.SyncDebt(ctx, d.Key); err != nil {
			return err
		}
	}
	return nil
}

func validateSnapshot(o *OrderSnapshot) error {
	if o == nil {
		return nil
	}
	if o.ShopID <= 0 {
		return shared.Validation("order %d has no shop", o.ID)
	}
	if o.CreatedAt.IsZero() {
		return shared.Validation("order %d has no creation date", o.ID)
	}
	if !o.Status.Valid() {
		return shared.Validation("order %d has unknown status %q", o.ID, o.Status)
	}
	return nil
}

// Service exposes daily balance reads and maintenance.
type Service struct {
	repo Repository
	loc  *time.Location
}

// NewService constructs a Service cutting days in UTC.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, loc: time.UTC}
}

// WithLocation sets the business time zone order dates are bucketed in.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// ApplyOrderChange runs Apply in a transaction of its own.
func (s *Service) ApplyOrderChange(ctx context.Context, change OrderChange) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return Apply(ctx, tx, change, s.loc)
	})
}

// Get returns the balance of a shop for one day.
func (s *Service) Get(ctx context.Context, shopID int64, day string) (DailyBalance, error) {
	if shopID <= 0 {
		return DailyBalance{}, shared.Validation("shop id required")
	}
	if _, err := ParseDay(day); err != nil {
		return DailyBalance{}, shared.Validation("invalid date %q", day)
	}
	return s.repo.Get(ctx, shopID, day)
}

// List returns balances matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]DailyBalance, error) {
	for _, day := range []string{filter.From, filter.To} {
		if day == "" {
			continue
		}
		if _, err := ParseDay(day); err != nil {
			return nil, shared.Validation("invalid date %q", day)
		}
	}
	return s.repo.List(ctx, filter)
}

// ResyncDebt recomputes the debt of rows whose stored value drifted from the formula and
// returns the repaired rows.
func (s *Service) ResyncDebt(ctx context.Context, from, to string) ([]DailyBalance, error) {
	drifted, err := s.repo.ListDebtDrift(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(drifted) == 0 {
		return nil, nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, b := range drifted {
			if err := tx.SyncDebt(ctx, Key{ShopID: b.ShopID, Date: b.Date}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("balance: resync debt: %w", err)
	}
	return drifted, nil
}
