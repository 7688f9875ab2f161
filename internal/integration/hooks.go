package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lastmile/cashdesk/internal/balance"
	"github.com/lastmile/cashdesk/internal/cash"
	"github.com/lastmile/cashdesk/internal/platform/db"
)

// RemittanceWriter is the slice of the cash ledger touched by order changes.
type RemittanceWriter interface {
	InsertTransaction(ctx context.Context, t cash.Transaction) (cash.Transaction, error)
	DeletePendingRemittancesForOrder(ctx context.Context, orderID, actorID int64) (int64, error)
}

// Scope binds the writers to one database transaction.
type Scope struct {
	Balances    balance.TxRepository
	Remittances RemittanceWriter
}

// ScopeOf builds the writers over tx.
func ScopeOf(tx pgx.Tx) Scope {
	return Scope{Balances: balance.NewTxRepository(tx), Remittances: cash.NewTxRepository(tx)}
}

// Invalidator drops cached read models after a committed change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Hooks keeps the daily balances and the pending remittances in step with order writes.
type Hooks struct {
	pool   db.Beginner
	cache  Invalidator
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewHooks constructs integration hooks. pool is only needed by ApplyOrderChange.
func NewHooks(pool db.Beginner, cache Invalidator, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		pool:   pool,
		cache:  cache,
		logger: logger.With(slog.String("component", "integration")),
		loc:    time.UTC,
		now:    time.Now,
	}
}

// WithLocation sets the business time zone balance dates are cut in.
func (h *Hooks) WithLocation(loc *time.Location) {
	if loc != nil {
		h.loc = loc
	}
}

// WithNow overrides the clock for deterministic tests.
func (h *Hooks) WithNow(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// OnOrderChange runs inside the order writer's transaction. Any error must roll that
// transaction back; once it commits the writer calls AfterCommit so cached views follow.
func (h *Hooks) OnOrderChange(ctx context.Context, tx pgx.Tx, old, updated *balance.OrderSnapshot) error {
	return h.Handle(ctx, ScopeOf(tx), balance.OrderChange{Old: old, New: updated})
}

// ApplyOrderChange runs OnOrderChange in a transaction of its own and refreshes cached views.
func (h *Hooks) ApplyOrderChange(ctx context.Context, old, updated *balance.OrderSnapshot) error {
	err := db.WithTx(ctx, h.pool, func(tx pgx.Tx) error {
		return h.OnOrderChange(ctx, tx, old, updated)
	})
	if err != nil {
		return err
	}
	h.AfterCommit(ctx)
	return nil
}

// AfterCommit invalidates cached read models once an order write has committed. A failed bump
// is logged; entries then expire with their TTL.
func (h *Hooks) AfterCommit(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Bump(ctx); err != nil {
		h.logger.Warn("cache bump failed", slog.Any("error", err))
	}
}

// Handle applies change through scope: balances first, then the remittance bookkeeping.
func (h *Hooks) Handle(ctx context.Context, scope Scope, change balance.OrderChange) error {
	if err := balance.Apply(ctx, scope.Balances, change, h.loc); err != nil {
		return err
	}
	return h.syncRemittance(ctx, scope.Remittances, change)
}

func deliveredForCash(o *balance.OrderSnapshot) bool {
	return o != nil &&
		o.Status == balance.StatusDelivered &&
		o.PaymentStatus == balance.PaymentCash &&
		o.DeliverymanID > 0
}

func (h *Hooks) syncRemittance(ctx context.Context, w RemittanceWriter, change balance.OrderChange) error {
	old, updated := change.Old, change.New
	wasCash, isCash := deliveredForCash(old), deliveredForCash(updated)

	if old != nil && old.DeliverymanID > 0 && (updated == nil || updated.DeliverymanID != old.DeliverymanID) {
		removed, err := w.DeletePendingRemittancesForOrder(ctx, old.ID, old.DeliverymanID)
		if err != nil {
			return err
		}
		if removed > 0 {
			h.logger.Info("stale pending remittances removed",
				slog.Int64("order_id", old.ID),
				slog.Int64("deliveryman_id", old.DeliverymanID),
				slog.Int64("count", removed),
			)
		}
	}

	switch {
	case isCash && wasCash && old.DeliverymanID == updated.DeliverymanID:
		if old.CollectedCash().Equal(updated.CollectedCash()) {
			return nil
		}
		// Amounts moved: only a still-pending remittance is replaced, a confirmed one stays.
		removed, err := w.DeletePendingRemittancesForOrder(ctx, updated.ID, updated.DeliverymanID)
		if err != nil || removed == 0 {
			return err
		}
		return h.recordRemittance(ctx, w, updated)
	case isCash:
		return h.recordRemittance(ctx, w, updated)
	case wasCash && updated != nil && updated.DeliverymanID == old.DeliverymanID:
		_, err := w.DeletePendingRemittancesForOrder(ctx, old.ID, old.DeliverymanID)
		return err
	}
	return nil
}

func (h *Hooks) recordRemittance(ctx context.Context, w RemittanceWriter, o *balance.OrderSnapshot) error {
	amount := o.CollectedCash()
	if !amount.IsPositive() {
		return nil
	}
	orderID := o.ID
	t, err := cash.PrepareRecord(cash.RecordInput{
		ActorID: o.DeliverymanID,
		Kind:    cash.KindRemittance,
		Amount:  amount,
		Comment: cash.RemittanceComment(o.ID),
		OrderID: &orderID,
	}, h.now())
	if err != nil {
		return err
	}
	_, err = w.InsertTransaction(ctx, t)
	return err
}
