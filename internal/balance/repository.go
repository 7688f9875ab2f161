package balance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lastmile/cashdesk/internal/platform/db"
	"github.com/lastmile/cashdesk/internal/shared"
)

// Repository exposes daily balance persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, shopID int64, day string) (DailyBalance, error)
	List(ctx context.Context, filter ListFilter) ([]DailyBalance, error)
	ListDebtDrift(ctx context.Context, from, to string) ([]DailyBalance, error)
}

// TxRepository exposes the transactional balance writes. Both operations must run inside
// the transaction that persists the order change.
type TxRepository interface {
	ApplyDelta(ctx context.Context, d Delta) error
	SyncDebt(ctx context.Context, key Key) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*pgRepository)(nil)

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const balanceColumns = `shop_id, to_char(balance_date, 'YYYY-MM-DD'), orders_sent, orders_delivered,
revenue_articles, delivery_fees, packaging_fees, expedition_fees, debt, updated_at`

func scanBalance(row pgx.Row) (DailyBalance, error) {
	var b DailyBalance
	err := row.Scan(&b.ShopID, &b.Date, &b.OrdersSent, &b.OrdersDelivered,
		&b.RevenueArticles, &b.DeliveryFees, &b.PackagingFees, &b.ExpeditionFees, &b.Debt, &b.UpdatedAt)
	return b, err
}

func (r *pgRepository) Get(ctx context.Context, shopID int64, day string) (DailyBalance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM daily_balances WHERE shop_id = $1 AND balance_date = $2::date`, shopID, day)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DailyBalance{}, shared.NotFound("no balance for shop %d on %s", shopID, day)
		}
		return DailyBalance{}, fmt.Errorf("balance: get: %w", err)
	}
	return b, nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]DailyBalance, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ShopID > 0 {
		args = append(args, filter.ShopID)
		conditions = append(conditions, fmt.Sprintf("shop_id = $%d", len(args)))
	}
	if filter.From != "" {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("balance_date >= $%d::date", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("balance_date <= $%d::date", len(args)))
	}
	query := `SELECT ` + balanceColumns + ` FROM daily_balances`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY balance_date DESC, shop_id"
	return r.query(ctx, query, args...)
}

func (r *pgRepository) ListDebtDrift(ctx context.Context, from, to string) ([]DailyBalance, error) {
	return r.query(ctx, `SELECT `+balanceColumns+` FROM daily_balances
WHERE balance_date BETWEEN $1::date AND $2::date
  AND debt <> GREATEST(0, delivery_fees + packaging_fees + expedition_fees - revenue_articles)
ORDER BY balance_date, shop_id`, from, to)
}

func (r *pgRepository) query(ctx context.Context, query string, args ...any) ([]DailyBalance, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("balance: query: %w", err)
	}
	defer rows.Close()
	var out []DailyBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("balance: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds balance writes to an open transaction owned by the caller.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (t *txRepo) ApplyDelta(ctx context.Context, d Delta) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO daily_balances
    (shop_id, balance_date, orders_sent, orders_delivered, revenue_articles, delivery_fees, packaging_fees, expedition_fees, updated_at)
VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (shop_id, balance_date) DO UPDATE SET
    orders_sent      = daily_balances.orders_sent + EXCLUDED.orders_sent,
    orders_delivered = daily_balances.orders_delivered + EXCLUDED.orders_delivered,
    revenue_articles = daily_balances.revenue_articles + EXCLUDED.revenue_articles,
    delivery_fees    = daily_balances.delivery_fees + EXCLUDED.delivery_fees,
    packaging_fees   = daily_balances.packaging_fees + EXCLUDED.packaging_fees,
    expedition_fees  = daily_balances.expedition_fees + EXCLUDED.expedition_fees,
    updated_at       = NOW()`,
		d.ShopID, d.Date, d.OrdersSent, d.OrdersDelivered,
		d.RevenueArticles, d.DeliveryFees, d.PackagingFees, d.ExpeditionFees)
	if err != nil {
		return fmt.Errorf("balance: apply delta shop=%d date=%s: %w", d.ShopID, d.Date, err)
	}
	return nil
}

func (t *txRepo) SyncDebt(ctx context.Context, key Key) error {
	_, err := t.tx.Exec(ctx, `UPDATE daily_balances
SET debt = GREATEST(0, delivery_fees + packaging_fees + expedition_fees - revenue_articles), updated_at = NOW()
WHERE shop_id = $1 AND balance_date = $2::date`, key.ShopID, key.Date)
	if err != nil {
		return fmt.Errorf("balance: sync debt shop=%d date=%s: %w", key.ShopID, key.Date, err)
	}
	return nil
}
