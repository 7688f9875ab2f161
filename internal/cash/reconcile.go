package cash

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/number"

	"github.com/lastmile/cashdesk/internal/shared"
)

func validateConfirm(in ConfirmInput) ([]int64, error) {
	if len(in.TransactionIDs) == 0 {
		return nil, shared.Validation("select at least one remittance")
	}
	seen := make(map[int64]struct{}, len(in.TransactionIDs))
	ids := make([]int64, 0, len(in.TransactionIDs))
	for _, id := range in.TransactionIDs {
		if id <= 0 {
			return nil, shared.Validation("invalid transaction id %d", id)
		}
		if _, dup := seen[id]; dup {
			return nil, shared.Validation("transaction %d selected twice", id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if in.PaidAmount.IsNegative() {
		return nil, shared.Validation("paid amount cannot be negative")
	}
	if in.ValidatedBy <= 0 {
		return nil, shared.Validation("validating user is required")
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// checkBatch verifies the locked rows form a confirmable batch and returns the deliveryman.
func checkBatch(ids []int64, rows []Transaction) (int64, error) {
	found := make(map[int64]Transaction, len(rows))
	for _, t := range rows {
		found[t.ID] = t
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, strconv.FormatInt(id, 10))
		}
	}
	if len(missing) > 0 {
		return 0, shared.NotFound("cash transactions not found: %s", strings.Join(missing, ", "))
	}
	var actor int64
	for _, id := range ids {
		t := found[id]
		if t.Movement.Kind != KindRemittance {
			return 0, shared.Validation("transaction %d is not a remittance", id)
		}
		if t.Status != StatusPending {
			return 0, shared.InvalidState("remittance %d is already confirmed", id)
		}
		if actor == 0 {
			actor = t.ActorID
		} else if t.ActorID != actor {
			return 0, shared.Conflict("a batch must belong to a single deliveryman")
		}
	}
	return actor, nil
}

// ExpectedAmount sums |amount| minus the linked order's expedition fee over rows. Rows without
// a resolvable order deduct nothing.
func ExpectedAmount(rows []Transaction, fees map[int64]decimal.Decimal) decimal.Decimal {
	expected := decimal.Zero
	for _, t := range rows {
		line := t.Amount().Abs()
		if orderID, ok := t.LinkedOrder(); ok {
			if fee, ok := fees[orderID]; ok {
				line = line.Sub(fee)
			}
		}
		expected = expected.Add(line)
	}
	return expected
}

func linkedOrders(rows []Transaction) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, t := range rows {
		id, ok := t.LinkedOrder()
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) shortfallComment(amount decimal.Decimal, ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return s.printer.Sprintf("Manquant de %v %s sur versement(s) ID: %s",
		number.Decimal(amount.InexactFloat64(), number.MaxFractionDigits(2)), s.currency, strings.Join(parts, ", "))
}

// ConfirmBatch confirms the pending remittances a deliveryman hands over at once. The rows are
// locked, the expected cash is computed net of expedition fees, every row is confirmed, and a
// shortfall is raised when less than expected was paid. All of it commits or none of it does.
func (s *Service) ConfirmBatch(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	ids, err := validateConfirm(in)
	if err != nil {
		return ConfirmResult{}, err
	}
	result := ConfirmResult{TransactionIDs: ids, Paid: in.PaidAmount, Shortfall: decimal.Zero}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LockTransactions(ctx, ids)
		if err != nil {
			return err
		}
		actor, err := checkBatch(ids, rows)
		if err != nil {
			return err
		}
		fees, err := tx.ExpeditionFees(ctx, linkedOrders(rows))
		if err != nil {
			return err
		}
		now := s.now()
		result.DeliverymanID = actor
		result.Expected = ExpectedAmount(rows, fees)
		result.Difference = result.Expected.Sub(in.PaidAmount)
		result.BatchRef = uuid.New()

		if err := tx.ConfirmTransactions(ctx, ids, in.ValidatedBy, now, result.BatchRef); err != nil {
			return err
		}
		if result.Difference.IsPositive() {
			shortfall, err := tx.InsertShortfall(ctx, Shortfall{
				DeliverymanID: actor,
				InitialAmount: result.Difference,
				Amount:        result.Difference,
				Comment:       s.shortfallComment(result.Difference, ids),
				Status:        ShortfallOpen,
				CreatedBy:     in.ValidatedBy,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
			result.Shortfall = result.Difference
			result.ShortfallID = &shortfall.ID
		}
		return tx.Audit(ctx, shared.AuditLog{
			ActorID:  in.ValidatedBy,
			Action:   shared.AuditRemittanceConfirmed,
			Entity:   "cash_batch",
			EntityID: result.BatchRef.String(),
			Meta: map[string]any{
				"deliveryman_id":  actor,
				"transaction_ids": ids,
				"expected":        result.Expected.String(),
				"paid":            result.Paid.String(),
				"shortfall":       result.Shortfall.String(),
			},
			At: now,
		})
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	s.instruments.observeConfirmation(result)
	s.invalidate(ctx)
	logger := s.logger.With(
		slog.Int64("deliveryman_id", result.DeliverymanID),
		slog.String("batch_ref", result.BatchRef.String()),
		slog.Int("transactions", len(ids)),
	)
	logger.Info("remittances confirmed",
		slog.String("expected", result.Expected.String()),
		slog.String("paid", result.Paid.String()),
	)
	if result.ShortfallID != nil {
		logger.Warn("shortfall raised", slog.Int64("shortfall_id", *result.ShortfallID), slog.String("amount", result.Shortfall.String()))
		s.notifyShortfall(ctx, result, in.ValidatedBy)
	}
	return result, nil
}

func (s *Service) notifyShortfall(ctx context.Context, res ConfirmResult, createdBy int64) {
	if s.notifier == nil {
		return
	}
	evt := ShortfallRaised{
		ShortfallID:    *res.ShortfallID,
		DeliverymanID:  res.DeliverymanID,
		CreatedBy:      createdBy,
		Amount:         res.Shortfall,
		TransactionIDs: res.TransactionIDs,
		BatchRef:       res.BatchRef,
	}
	if err := s.notifier.ShortfallRaised(ctx, evt); err != nil {
		s.logger.Error("publish shortfall raised", slog.Int64("shortfall_id", evt.ShortfallID), slog.Any("error", err))
	}
}
