package cash

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lastmile/cashdesk/internal/shared"
)

// CashMetrics computes collected, spent and on-hand cash over days.
func (s *Service) CashMetrics(ctx context.Context, days DateRange) (Metrics, error) {
	window, err := s.window(days)
	if err != nil {
		return Metrics{}, err
	}
	totals, err := s.repo.Totals(ctx, window)
	if err != nil {
		return Metrics{}, err
	}
	return MetricsFrom(totals), nil
}

// CloseCash snapshots the drawer for one day: the expected cash is the day's cash on hand and
// the difference is counted minus expected. A day can be closed once.
func (s *Service) CloseCash(ctx context.Context, in CloseInput) (Closing, error) {
	if in.Date == "" {
		return Closing{}, shared.Validation("closing date is required")
	}
	if in.UserID <= 0 {
		return Closing{}, shared.Validation("closing user is required")
	}
	if in.ActualCash.IsNegative() {
		return Closing{}, shared.Validation("counted cash cannot be negative")
	}
	window, err := s.window(Day(in.Date))
	if err != nil {
		return Closing{}, err
	}
	var closing Closing
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		totals, err := tx.Totals(ctx, window)
		if err != nil {
			return err
		}
		expected := MetricsFrom(totals).CashOnHand
		closing, err = tx.InsertClosing(ctx, Closing{
			ClosingDate:  in.Date,
			ExpectedCash: expected,
			ActualCash:   in.ActualCash,
			Difference:   in.ActualCash.Sub(expected),
			Comment:      strings.TrimSpace(in.Comment),
			CreatedBy:    in.UserID,
			CreatedAt:    s.now(),
		})
		if err != nil {
			return err
		}
		return tx.Audit(ctx, shared.AuditLog{
			ActorID:  in.UserID,
			Action:   shared.AuditCashClosed,
			Entity:   "cash_closing",
			EntityID: closing.ClosingDate,
			Meta: map[string]any{
				"expected":   closing.ExpectedCash.String(),
				"actual":     closing.ActualCash.String(),
				"difference": closing.Difference.String(),
			},
			At: closing.CreatedAt,
		})
	})
	if err != nil {
		return Closing{}, err
	}
	s.instruments.observeClosing(closing.Difference)
	s.invalidate(ctx)
	s.logger.Info("cash closed",
		slog.String("date", closing.ClosingDate),
		slog.String("expected", closing.ExpectedCash.String()),
		slog.String("actual", closing.ActualCash.String()),
		slog.String("difference", closing.Difference.String()),
	)
	return closing, nil
}

// ClosingHistory lists closings over days, newest first.
func (s *Service) ClosingHistory(ctx context.Context, days DateRange) ([]Closing, error) {
	if _, err := s.window(days); err != nil {
		return nil, err
	}
	return s.repo.ListClosings(ctx, days)
}
