package cashier

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the per-day projections. Bounds are [start, end).
type Repository interface {
	DailyTotals(ctx context.Context, start, end time.Time) ([]DeliverymanTotals, error)
	DayOrders(ctx context.Context, deliverymanID int64, start, end time.Time) ([]DayOrder, error)
	DayMovements(ctx context.Context, deliverymanID int64, start, end time.Time) ([]DayMovement, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*pgRepository)(nil)

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// Order and ledger sums are computed in separate subqueries so one side never multiplies the other.
const dailyTotalsSQL = `
WITH delivered AS (
    SELECT deliveryman_id,
           COALESCE(SUM(article_amount + delivery_fee), 0) AS collected,
           COUNT(*) AS orders
    FROM orders
    WHERE status = 'delivered' AND payment_status = 'cash'
      AND updated_at >= $1 AND updated_at < $2
    GROUP BY deliveryman_id
), ledger AS (
    SELECT user_id,
           COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0) AS expenses,
           COALESCE(SUM(amount) FILTER (WHERE type = 'remittance'), 0) AS remitted
    FROM cash_transactions
    WHERE status = 'confirmed' AND type IN ('remittance', 'expense')
      AND created_at >= $1 AND created_at < $2
    GROUP BY user_id
)
SELECT u.id, u.name,
       COALESCE(d.collected, 0), COALESCE(d.orders, 0),
       COALESCE(l.expenses, 0), COALESCE(l.remitted, 0)
FROM users u
LEFT JOIN delivered d ON d.deliveryman_id = u.id
LEFT JOIN ledger l ON l.user_id = u.id
WHERE u.role = 'livreur' AND u.status = 'actif'
  AND (COALESCE(d.orders, 0) > 0 OR COALESCE(l.expenses, 0) <> 0 OR COALESCE(l.remitted, 0) <> 0)
ORDER BY u.name`

func (r *pgRepository) DailyTotals(ctx context.Context, start, end time.Time) ([]DeliverymanTotals, error) {
	rows, err := r.pool.Query(ctx, dailyTotalsSQL, start, end)
	if err != nil {
		return nil, fmt.Errorf("cashier: daily totals: %w", err)
	}
	defer rows.Close()
	var out []DeliverymanTotals
	for rows.Next() {
		var t DeliverymanTotals
		if err := rows.Scan(&t.DeliverymanID, &t.DeliverymanName, &t.CashCollected, &t.DeliveredCashOrders, &t.ExpensesConfirmed, &t.RemittedConfirmed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *pgRepository) DayOrders(ctx context.Context, deliverymanID int64, start, end time.Time) ([]DayOrder, error) {
	const q = `
SELECT o.id, o.status, o.payment_status, o.article_amount, o.delivery_fee, o.expedition_fee,
       o.article_amount + o.delivery_fee, o.delivery_location, COALESCE(s.name, ''),
       COALESCE((SELECT string_agg(i.item_name, ', ' ORDER BY i.id) FROM order_items i WHERE i.order_id = o.id), ''),
       o.created_at
FROM orders o
LEFT JOIN shops s ON s.id = o.shop_id
WHERE o.deliveryman_id = $1
  AND o.updated_at >= $2 AND o.updated_at < $3
  AND o.status IN ('delivered', 'failed_delivery', 'cancelled')
ORDER BY o.created_at`
	rows, err := r.pool.Query(ctx, q, deliverymanID, start, end)
	if err != nil {
		return nil, fmt.Errorf("cashier: day orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DayOrder, error) {
		var o DayOrder
		err := row.Scan(&o.ID, &o.Status, &o.PaymentStatus, &o.ArticleAmount, &o.DeliveryFee, &o.ExpeditionFee,
			&o.CashCollected, &o.DeliveryLocation, &o.ShopName, &o.ItemNames, &o.CreatedAt)
		return o, err
	})
}

func (r *pgRepository) DayMovements(ctx context.Context, deliverymanID int64, start, end time.Time) ([]DayMovement, error) {
	const q = `
SELECT id, type, amount, comment, status, created_at
FROM cash_transactions
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, q, deliverymanID, start, end)
	if err != nil {
		return nil, fmt.Errorf("cashier: day movements: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DayMovement, error) {
		var m DayMovement
		err := row.Scan(&m.ID, &m.Type, &m.Amount, &m.Comment, &m.Status, &m.CreatedAt)
		return m, err
	})
}
