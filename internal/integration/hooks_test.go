package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lastmile/cashdesk/internal/balance"
	"github.com/lastmile/cashdesk/internal/cash"
)

type fakeBalances struct {
	deltas []balance.Delta
	synced []balance.Key
	err    error
}

func (f *fakeBalances) ApplyDelta(_ context.Context, d balance.Delta) error {
	if f.err != nil {
		return f.err
	}
	f.deltas = append(f.deltas, d)
	return nil
}

func (f *fakeBalances) SyncDebt(_ context.Context, k balance.Key) error {
	f.synced = append(f.synced, k)
	return nil
}

type pendingKey struct{ order, actor int64 }

type fakeRemittances struct {
	inserted []cash.Transaction
	pending  map[pendingKey]int64
	deleted  []pendingKey
}

func newFakeRemittances() *fakeRemittances {
	return &fakeRemittances{pending: make(map[pendingKey]int64)}
}

func (f *fakeRemittances) InsertTransaction(_ context.Context, t cash.Transaction) (cash.Transaction, error) {
	t.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, t)
	f.pending[pendingKey{*t.OrderID, t.ActorID}]++
	return t, nil
}

func (f *fakeRemittances) DeletePendingRemittancesForOrder(_ context.Context, orderID, actorID int64) (int64, error) {
	k := pendingKey{orderID, actorID}
	f.deleted = append(f.deleted, k)
	n := f.pending[k]
	delete(f.pending, k)
	return n, nil
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func order(status balance.OrderStatus, payment balance.PaymentStatus, deliveryman int64) *balance.OrderSnapshot {
	return &balance.OrderSnapshot{
		ID:            42,
		ShopID:        3,
		DeliverymanID: deliveryman,
		Status:        status,
		PaymentStatus: payment,
		ArticleAmount: dec("5000"),
		DeliveryFee:   dec("500"),
		ExpeditionFee: dec("200"),
		CreatedAt:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func newHooks() (*Hooks, *fakeBalances, *fakeRemittances, Scope) {
	h := NewHooks(nil, nil, nil)
	h.WithNow(func() time.Time { return time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC) })
	b, r := &fakeBalances{}, newFakeRemittances()
	return h, b, r, Scope{Balances: b, Remittances: r}
}

func TestDeliveredForCashRecordsPendingRemittance(t *testing.T) {
	h, balances, remittances, scope := newHooks()
	ctx := context.Background()

	err := h.Handle(ctx, scope, balance.OrderChange{
		Old: order(balance.StatusEnRoute, balance.PaymentPending, 7),
		New: order(balance.StatusDelivered, balance.PaymentCash, 7),
	})
	require.NoError(t, err)
	require.NotEmpty(t, balances.deltas)
	require.Len(t, remittances.inserted, 1)

	rem := remittances.inserted[0]
	require.Equal(t, cash.KindRemittance, rem.Movement.Kind)
	require.Equal(t, cash.StatusPending, rem.Status)
	require.EqualValues(t, 7, rem.ActorID)
	require.True(t, rem.Amount().Equal(dec("5500")))
	require.Equal(t, "Versement pour la commande n°42", rem.Comment)
	require.EqualValues(t, 42, *rem.OrderID)
}

func TestRepeatedDeliveredWriteDoesNotDuplicate(t *testing.T) {
	h, _, remittances, scope := newHooks()
	delivered := order(balance.StatusDelivered, balance.PaymentCash, 7)

	require.NoError(t, h.Handle(context.Background(), scope, balance.OrderChange{Old: delivered, New: delivered}))
	require.Empty(t, remittances.inserted)
	require.Empty(t, remittances.deleted)
}

func TestReassignmentMovesPendingRemittance(t *testing.T) {
	h, _, remittances, scope := newHooks()
	ctx := context.Background()
	remittances.pending[pendingKey{42, 7}] = 1

	err := h.Handle(ctx, scope, balance.OrderChange{
		Old: order(balance.StatusDelivered, balance.PaymentCash, 7),
		New: order(balance.StatusDelivered, balance.PaymentCash, 8),
	})
	require.NoError(t, err)
	require.Equal(t, []pendingKey{{42, 7}}, remittances.deleted)
	require.Len(t, remittances.inserted, 1)
	require.EqualValues(t, 8, remittances.inserted[0].ActorID)
}

func TestLeavingDeliveredDropsPendingRemittance(t *testing.T) {
	h, _, remittances, scope := newHooks()
	remittances.pending[pendingKey{42, 7}] = 1

	err := h.Handle(context.Background(), scope, balance.OrderChange{
		Old: order(balance.StatusDelivered, balance.PaymentCash, 7),
		New: order(balance.StatusFailedDelivery, balance.PaymentPending, 7),
	})
	require.NoError(t, err)
	require.Equal(t, []pendingKey{{42, 7}}, remittances.deleted)
	require.Empty(t, remittances.inserted)
}

func TestAmountCorrectionReplacesOnlyPendingRemittance(t *testing.T) {
	h, _, remittances, scope := newHooks()
	ctx := context.Background()
	old := order(balance.StatusDelivered, balance.PaymentCash, 7)
	updated := order(balance.StatusDelivered, balance.PaymentCash, 7)
	updated.ArticleAmount = dec("6000")

	// Confirmed already: nothing pending to replace.
	require.NoError(t, h.Handle(ctx, scope, balance.OrderChange{Old: old, New: updated}))
	require.Empty(t, remittances.inserted)

	remittances.pending[pendingKey{42, 7}] = 1
	require.NoError(t, h.Handle(ctx, scope, balance.OrderChange{Old: old, New: updated}))
	require.Len(t, remittances.inserted, 1)
	require.True(t, remittances.inserted[0].Amount().Equal(dec("6500")))
}

func TestDeletedOrderDropsPendingRemittance(t *testing.T) {
	h, _, remittances, scope := newHooks()
	require.NoError(t, h.Handle(context.Background(), scope, balance.OrderChange{
		Old: order(balance.StatusDelivered, balance.PaymentCash, 7),
	}))
	require.Equal(t, []pendingKey{{42, 7}}, remittances.deleted)
}

func TestBalanceFailureStopsRemittanceBookkeeping(t *testing.T) {
	h, balances, remittances, scope := newHooks()
	balances.err = errors.New("boom")

	err := h.Handle(context.Background(), scope, balance.OrderChange{
		New: order(balance.StatusDelivered, balance.PaymentCash, 7),
	})
	require.Error(t, err)
	require.Empty(t, remittances.inserted)
}

func TestDeliveredWithoutDeliverymanRecordsNothing(t *testing.T) {
	h, _, remittances, scope := newHooks()
	require.NoError(t, h.Handle(context.Background(), scope, balance.OrderChange{
		New: order(balance.StatusDelivered, balance.PaymentCash, 0),
	}))
	require.Empty(t, remittances.inserted)
}

type countingInvalidator struct {
	bumps int
	err   error
}

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return c.err
}

func TestAfterCommitInvalidatesReadModels(t *testing.T) {
	cache := &countingInvalidator{}
	h := NewHooks(nil, cache, nil)
	h.AfterCommit(context.Background())
	require.Equal(t, 1, cache.bumps)

	cache.err = errors.New("redis down")
	require.NotPanics(t, func() { h.AfterCommit(context.Background()) })
	require.Equal(t, 2, cache.bumps)

	require.NotPanics(t, func() { NewHooks(nil, nil, nil).AfterCommit(context.Background()) })
}

func TestBalanceDateFollowsBusinessZone(t *testing.T) {
	h, balances, _, scope := newHooks()
	h.WithLocation(time.FixedZone("UTC+1", 3600))
	o := order(balance.StatusDelivered, balance.PaymentCash, 7)
	o.CreatedAt = time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	require.NoError(t, h.Handle(context.Background(), scope, balance.OrderChange{New: o}))
	require.Len(t, balances.deltas, 1)
	require.Equal(t, "2026-03-11", balances.deltas[0].Date)
	require.Equal(t, []balance.Key{{ShopID: 3, Date: "2026-03-11"}}, balances.synced)
}
