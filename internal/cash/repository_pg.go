package cash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/platform/db"
	"github.com/lastmile/cashdesk/internal/shared"
)

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*pgRepository)(nil)

// NewRepository constructs a PostgreSQL backed ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepo struct {
	tx pgx.Tx
}

var _ TxRepository = (*txRepo)(nil)

// NewTxRepository binds ledger writes to an open transaction, typically the one an order
// write is running in.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

const transactionSelect = `SELECT ct.id, ct.user_id, u.name, ct.type, ct.amount, ct.category_id, COALESCE(c.name, ''),
       ct.comment, ct.order_id, ct.status, ct.batch_ref, ct.created_at, ct.validated_by, COALESCE(v.name, ''), ct.validated_at`

const transactionFrom = ` FROM cash_transactions ct
JOIN users u ON u.id = ct.user_id
LEFT JOIN expense_categories c ON c.id = ct.category_id
LEFT JOIN users v ON v.id = ct.validated_by`

func scanTransaction(row pgx.Row, extra ...any) (Transaction, error) {
	var (
		t      Transaction
		kind   string
		status string
		amount decimal.Decimal
	)
	dest := []any{&t.ID, &t.ActorID, &t.ActorName, &kind, &amount, &t.CategoryID, &t.CategoryName,
		&t.Comment, &t.OrderID, &status, &t.BatchRef, &t.CreatedAt, &t.ValidatedBy, &t.ValidatedByName, &t.ValidatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Transaction{}, err
	}
	t.Movement = Movement{Kind: Kind(kind), Magnitude: amount.Abs()}
	t.Status = Status(status)
	return t, nil
}

func collectTransactions(rows pgx.Rows, err error) ([]Transaction, error) {
	if err != nil {
		return nil, fmt.Errorf("cash: query transactions: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("cash: scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *pgRepository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return getTransaction(ctx, r.pool, id, false)
}

func (t *txRepo) LockTransaction(ctx context.Context, id int64) (Transaction, error) {
	return getTransaction(ctx, t.tx, id, true)
}

func getTransaction(ctx context.Context, q dbtx, id int64, lock bool) (Transaction, error) {
	query := transactionSelect + transactionFrom + ` WHERE ct.id = $1`
	if lock {
		query += ` FOR UPDATE OF ct`
	}
	tr, err := scanTransaction(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, shared.NotFound("cash transaction %d not found", id)
		}
		return Transaction{}, fmt.Errorf("cash: get transaction: %w", err)
	}
	return tr, nil
}

func (r *pgRepository) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	query := transactionSelect + transactionFrom + `
WHERE ($1 = '' OR ct.type = $1)
  AND ($2::bigint = 0 OR ct.user_id = $2)
  AND ($3::timestamptz IS NULL OR ct.created_at >= $3)
  AND ($4::timestamptz IS NULL OR ct.created_at < $4)
  AND ($5 = '' OR u.name ILIKE '%' || $5 || '%' OR ct.comment ILIKE '%' || $5 || '%' OR c.name ILIKE '%' || $5 || '%')
ORDER BY ct.created_at DESC, ct.id DESC`
	return collectTransactions(r.pool.Query(ctx, query, string(filter.Kind), filter.ActorID,
		filter.Window.Start, filter.Window.End, filter.Search))
}

func (r *pgRepository) RemittanceSummary(ctx context.Context, window Window, search string) ([]ActorSummary, error) {
	return actorSummaries(ctx, r.pool, `SELECT u.id, u.name,
       COUNT(ct.id) FILTER (WHERE ct.status = 'pending'),
       COALESCE(SUM(ABS(ct.amount)) FILTER (WHERE ct.status = 'pending'), 0),
       COUNT(ct.id) FILTER (WHERE ct.status = 'confirmed'),
       COALESCE(SUM(ABS(ct.amount)) FILTER (WHERE ct.status = 'confirmed'), 0)
FROM users u
JOIN cash_transactions ct ON ct.user_id = u.id AND ct.type = 'remittance'
WHERE u.role = 'livreur'
  AND ($1::timestamptz IS NULL OR ct.created_at >= $1)
  AND ($2::timestamptz IS NULL OR ct.created_at < $2)
  AND ($3 = '' OR u.name ILIKE '%' || $3 || '%')
GROUP BY u.id, u.name
HAVING COUNT(ct.id) > 0
ORDER BY u.name`, window.Start, window.End, search)
}

func (r *pgRepository) PendingRemittancesOlderThan(ctx context.Context, cutoff time.Time) ([]ActorSummary, error) {
	return actorSummaries(ctx, r.pool, `SELECT u.id, u.name, COUNT(ct.id), COALESCE(SUM(ABS(ct.amount)), 0), 0, 0
FROM cash_transactions ct
JOIN users u ON u.id = ct.user_id
WHERE ct.type = 'remittance' AND ct.status = 'pending' AND ct.created_at < $1
GROUP BY u.id, u.name
ORDER BY u.name`, cutoff)
}

func actorSummaries(ctx context.Context, q dbtx, query string, args ...any) ([]ActorSummary, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cash: remittance summary: %w", err)
	}
	defer rows.Close()
	var out []ActorSummary
	for rows.Next() {
		var s ActorSummary
		if err := rows.Scan(&s.ActorID, &s.ActorName, &s.PendingCount, &s.PendingAmount, &s.ConfirmedCount, &s.ConfirmedAmount); err != nil {
			return nil, fmt.Errorf("cash: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgRepository) RemittanceDetails(ctx context.Context, actorID int64, window Window) ([]RemittanceDetail, error) {
	query := transactionSelect + `, o.id, COALESCE(o.delivery_location, ''), COALESCE(o.expedition_fee, 0), COALESCE(s.name, ''),
       COALESCE((SELECT string_agg(oi.item_name, ', ' ORDER BY oi.id) FROM order_items oi WHERE oi.order_id = o.id), '')` +
		transactionFrom + `
LEFT JOIN orders o ON o.id = COALESCE(ct.order_id, NULLIF(substring(ct.comment from '(?:n°|#)\s*(\d+)\s*$'), '')::bigint)
LEFT JOIN shops s ON s.id = o.shop_id
WHERE ct.type = 'remittance' AND ct.user_id = $1
  AND ($2::timestamptz IS NULL OR ct.created_at >= $2)
  AND ($3::timestamptz IS NULL OR ct.created_at < $3)
ORDER BY CASE ct.status WHEN 'pending' THEN 0 ELSE 1 END, ct.created_at DESC, ct.id DESC`
	rows, err := r.pool.Query(ctx, query, actorID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("cash: remittance details: %w", err)
	}
	defer rows.Close()
	var out []RemittanceDetail
	for rows.Next() {
		var d RemittanceDetail
		tr, err := scanTransaction(rows, &d.LinkedOrderID, &d.DeliveryLocation, &d.ExpeditionFee, &d.ShopName, &d.ItemNames)
		if err != nil {
			return nil, fmt.Errorf("cash: scan remittance detail: %w", err)
		}
		d.Transaction = tr
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListCategories(ctx context.Context, categoryType CategoryType) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type FROM expense_categories WHERE ($1 = '' OR type = $1) ORDER BY name`, string(categoryType))
	if err != nil {
		return nil, fmt.Errorf("cash: list categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("cash: scan category: %w", err)
		}
		c.Type = CategoryType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertTransaction(ctx context.Context, tr Transaction) (Transaction, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO cash_transactions
    (user_id, type, category_id, amount, comment, order_id, status, created_at, validated_by, validated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		tr.ActorID, string(tr.Movement.Kind), tr.CategoryID, tr.Amount(), tr.Comment, tr.OrderID,
		string(tr.Status), tr.CreatedAt, tr.ValidatedBy, tr.ValidatedAt).Scan(&tr.ID)
	if err != nil {
		return Transaction{}, fmt.Errorf("cash: insert transaction: %w", err)
	}
	return tr, nil
}

func (t *txRepo) LockTransactions(ctx context.Context, ids []int64) ([]Transaction, error) {
	query := transactionSelect + transactionFrom + ` WHERE ct.id = ANY($1) ORDER BY ct.id FOR UPDATE OF ct`
	return collectTransactions(t.tx.Query(ctx, query, ids))
}

func (t *txRepo) UpdateTransaction(ctx context.Context, id int64, amount decimal.Decimal, comment string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE cash_transactions SET amount = $2, comment = $3 WHERE id = $1`, id, amount, comment)
	if err != nil {
		return fmt.Errorf("cash: update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("cash transaction %d not found", id)
	}
	return nil
}

func (t *txRepo) DeleteTransaction(ctx context.Context, id int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM cash_transactions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("cash: delete transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) DeletePendingRemittancesForOrder(ctx context.Context, orderID, actorID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM cash_transactions
WHERE type = 'remittance' AND status = 'pending' AND user_id = $2
  AND (order_id = $1 OR (order_id IS NULL AND comment ~ ('(n°|#)\s*' || $1::text || '\s*$')))`, orderID, actorID)
	if err != nil {
		return 0, fmt.Errorf("cash: delete pending remittances: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) ExpeditionFees(ctx context.Context, orderIDs []int64) (map[int64]decimal.Decimal, error) {
	fees := make(map[int64]decimal.Decimal, len(orderIDs))
	if len(orderIDs) == 0 {
		return fees, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT id, expedition_fee FROM orders WHERE id = ANY($1)`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("cash: expedition fees: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  int64
			fee decimal.Decimal
		)
		if err := rows.Scan(&id, &fee); err != nil {
			return nil, fmt.Errorf("cash: scan expedition fee: %w", err)
		}
		fees[id] = fee
	}
	return fees, rows.Err()
}

func (t *txRepo) ConfirmTransactions(ctx context.Context, ids []int64, validatedBy int64, at time.Time, batch uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `UPDATE cash_transactions
SET status = 'confirmed', validated_by = $2, validated_at = $3, batch_ref = $4
WHERE id = ANY($1) AND status = 'pending'`, ids, validatedBy, at, batch)
	if err != nil {
		return fmt.Errorf("cash: confirm transactions: %w", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return shared.Conflict("remittances changed while being confirmed")
	}
	return nil
}

const shortfallSelect = `SELECT ds.id, ds.deliveryman_id, u.name, ds.initial_amount, ds.amount, ds.comment, ds.status,
       COALESCE(ds.created_by, 0), ds.created_at, ds.settled_at
FROM deliveryman_shortfalls ds
JOIN users u ON u.id = ds.deliveryman_id`

func scanShortfall(row pgx.Row) (Shortfall, error) {
	var (
		s      Shortfall
		status string
	)
	err := row.Scan(&s.ID, &s.DeliverymanID, &s.DeliverymanName, &s.InitialAmount, &s.Amount, &s.Comment,
		&status, &s.CreatedBy, &s.CreatedAt, &s.SettledAt)
	s.Status = ShortfallStatus(status)
	return s, err
}

func (r *pgRepository) ListShortfalls(ctx context.Context, filter ShortfallFilter) ([]Shortfall, error) {
	rows, err := r.pool.Query(ctx, shortfallSelect+`
WHERE ($1 = '' OR ds.status = $1)
  AND ($2 = '' OR u.name ILIKE '%' || $2 || '%')
ORDER BY ds.created_at DESC, ds.id DESC`, string(filter.Status), filter.Search)
	if err != nil {
		return nil, fmt.Errorf("cash: list shortfalls: %w", err)
	}
	defer rows.Close()
	var out []Shortfall
	for rows.Next() {
		s, err := scanShortfall(rows)
		if err != nil {
			return nil, fmt.Errorf("cash: scan shortfall: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertShortfall(ctx context.Context, s Shortfall) (Shortfall, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO deliveryman_shortfalls
    (deliveryman_id, initial_amount, amount, comment, status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, s.DeliverymanID, s.InitialAmount, s.Amount, s.Comment, string(s.Status), s.CreatedBy, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		return Shortfall{}, fmt.Errorf("cash: insert shortfall: %w", err)
	}
	return s, nil
}

func (t *txRepo) LockShortfall(ctx context.Context, id int64) (Shortfall, error) {
	s, err := scanShortfall(t.tx.QueryRow(ctx, shortfallSelect+` WHERE ds.id = $1 FOR UPDATE OF ds`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shortfall{}, shared.NotFound("shortfall %d not found", id)
		}
		return Shortfall{}, fmt.Errorf("cash: lock shortfall: %w", err)
	}
	return s, nil
}

func (t *txRepo) UpdateShortfall(ctx context.Context, s Shortfall) error {
	_, err := t.tx.Exec(ctx, `UPDATE deliveryman_shortfalls SET amount = $2, status = $3, settled_at = $4 WHERE id = $1`,
		s.ID, s.Amount, string(s.Status), s.SettledAt)
	if err != nil {
		return fmt.Errorf("cash: update shortfall: %w", err)
	}
	return nil
}

func (t *txRepo) InsertSettlement(ctx context.Context, s Settlement) (Settlement, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO shortfall_settlements (shortfall_id, amount, settled_by, settled_at)
VALUES ($1, $2, $3, $4) RETURNING id`, s.ShortfallID, s.Amount, s.SettledBy, s.SettledAt).Scan(&s.ID)
	if err != nil {
		return Settlement{}, fmt.Errorf("cash: insert settlement: %w", err)
	}
	return s, nil
}

const totalsQuery = `SELECT
    (SELECT COALESCE(SUM(ABS(amount)), 0) FROM cash_transactions
      WHERE type = 'remittance' AND status = 'confirmed'
        AND ($1::timestamptz IS NULL OR validated_at >= $1) AND ($2::timestamptz IS NULL OR validated_at < $2)),
    (SELECT COALESCE(SUM(ABS(amount)), 0) FROM cash_transactions
      WHERE type IN ('expense', 'manual_withdrawal') AND status = 'confirmed'
        AND ($1::timestamptz IS NULL OR created_at >= $1) AND ($2::timestamptz IS NULL OR created_at < $2)),
    (SELECT COALESCE(SUM(ABS(amount)), 0) FROM cash_transactions
      WHERE type = 'manual_withdrawal' AND status = 'confirmed'
        AND ($1::timestamptz IS NULL OR created_at >= $1) AND ($2::timestamptz IS NULL OR created_at < $2)),
    (SELECT COALESCE(SUM(amount), 0) FROM shortfall_settlements
      WHERE ($1::timestamptz IS NULL OR settled_at >= $1) AND ($2::timestamptz IS NULL OR settled_at < $2))
  + (SELECT COALESCE(SUM(amount), 0) FROM debts
      WHERE status = 'paid'
        AND ($1::timestamptz IS NULL OR settled_at >= $1) AND ($2::timestamptz IS NULL OR settled_at < $2))`

func totals(ctx context.Context, q dbtx, window Window) (Totals, error) {
	var t Totals
	if err := q.QueryRow(ctx, totalsQuery, window.Start, window.End).Scan(&t.Collected, &t.Expenses, &t.Withdrawals, &t.DebtsSettled); err != nil {
		return Totals{}, fmt.Errorf("cash: totals: %w", err)
	}
	return t, nil
}

func (r *pgRepository) Totals(ctx context.Context, window Window) (Totals, error) {
	return totals(ctx, r.pool, window)
}

func (t *txRepo) Totals(ctx context.Context, window Window) (Totals, error) {
	return totals(ctx, t.tx, window)
}

func (t *txRepo) InsertClosing(ctx context.Context, c Closing) (Closing, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO cash_closings (closing_date, expected_cash, actual_cash, difference, comment, created_by, created_at)
VALUES ($1::date, $2, $3, $4, $5, $6, $7) RETURNING id`,
		c.ClosingDate, c.ExpectedCash, c.ActualCash, c.Difference, c.Comment, c.CreatedBy, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Closing{}, shared.Conflict("a cash closing already exists for %s", c.ClosingDate)
		}
		return Closing{}, fmt.Errorf("cash: insert closing: %w", err)
	}
	return c, nil
}

func (r *pgRepository) ListClosings(ctx context.Context, days DateRange) ([]Closing, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, to_char(closing_date, 'YYYY-MM-DD'), expected_cash, actual_cash, difference, comment, created_by, created_at
FROM cash_closings
WHERE (NULLIF($1, '') IS NULL OR closing_date >= NULLIF($1, '')::date)
  AND (NULLIF($2, '') IS NULL OR closing_date <= NULLIF($2, '')::date)
ORDER BY closing_date DESC`, days.From, days.To)
	if err != nil {
		return nil, fmt.Errorf("cash: list closings: %w", err)
	}
	defer rows.Close()
	var out []Closing
	for rows.Next() {
		var c Closing
		if err := rows.Scan(&c.ID, &c.ClosingDate, &c.ExpectedCash, &c.ActualCash, &c.Difference, &c.Comment, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("cash: scan closing: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txRepo) Audit(ctx context.Context, entry shared.AuditLog) error {
	return shared.NewAuditLogger(t.tx).Record(ctx, entry)
}
