package cash

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lastmile/cashdesk/internal/shared"
)

// ListShortfalls returns shortfalls matching filter, newest first.
func (s *Service) ListShortfalls(ctx context.Context, filter ShortfallFilter) ([]Shortfall, error) {
	switch filter.Status {
	case "", ShortfallOpen, ShortfallSettled:
	default:
		return nil, shared.Validation("unknown shortfall status %q", filter.Status)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListShortfalls(ctx, filter)
}

// SettleShortfall records a payment against an open shortfall. A partial payment lowers the
// outstanding amount and keeps it open; paying exactly the outstanding amount settles it.
// Paying more than is outstanding is rejected.
func (s *Service) SettleShortfall(ctx context.Context, in SettleInput) (Shortfall, error) {
	if in.ShortfallID <= 0 {
		return Shortfall{}, shared.Validation("invalid shortfall id")
	}
	if !in.Amount.IsPositive() {
		return Shortfall{}, shared.Validation("settlement amount must be greater than zero")
	}
	if in.UserID <= 0 {
		return Shortfall{}, shared.Validation("settling user is required")
	}
	var settled Shortfall
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockShortfall(ctx, in.ShortfallID)
		if err != nil {
			return err
		}
		if current.Status == ShortfallSettled {
			return shared.InvalidState("shortfall %d is already settled", current.ID)
		}
		if in.Amount.GreaterThan(current.Amount) {
			return shared.Validation("settlement of %s exceeds outstanding %s", in.Amount, current.Amount)
		}
		now := s.now()
		current.Amount = current.Amount.Sub(in.Amount)
		if current.Amount.IsZero() {
			current.Status = ShortfallSettled
			current.SettledAt = &now
		}
		if err := tx.UpdateShortfall(ctx, current); err != nil {
			return err
		}
		if _, err := tx.InsertSettlement(ctx, Settlement{
			ShortfallID: current.ID,
			Amount:      in.Amount,
			SettledBy:   in.UserID,
			SettledAt:   now,
		}); err != nil {
			return err
		}
		settled = current
		return tx.Audit(ctx, shared.AuditLog{
			ActorID:  in.UserID,
			Action:   shared.AuditShortfallSettled,
			Entity:   "deliveryman_shortfall",
			EntityID: strconv.FormatInt(current.ID, 10),
			Meta: map[string]any{
				"paid":        in.Amount.String(),
				"outstanding": current.Amount.String(),
				"status":      string(current.Status),
			},
			At: now,
		})
	})
	if err != nil {
		return Shortfall{}, err
	}
	s.instruments.observeSettlement(settled)
	s.invalidate(ctx)
	s.logger.Info("shortfall payment recorded",
		slog.Int64("shortfall_id", settled.ID),
		slog.String("paid", in.Amount.String()),
		slog.String("outstanding", settled.Amount.String()),
		slog.String("status", string(settled.Status)),
	)
	return settled, nil
}
