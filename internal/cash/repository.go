package cash

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/shared"
)

// Repository exposes ledger reads and the transactional boundary.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error)
	RemittanceSummary(ctx context.Context, window Window, search string) ([]ActorSummary, error)
	RemittanceDetails(ctx context.Context, actorID int64, window Window) ([]RemittanceDetail, error)
	ListShortfalls(ctx context.Context, filter ShortfallFilter) ([]Shortfall, error)
	ListClosings(ctx context.Context, days DateRange) ([]Closing, error)
	ListCategories(ctx context.Context, categoryType CategoryType) ([]Category, error)
	Totals(ctx context.Context, window Window) (Totals, error)
	PendingRemittancesOlderThan(ctx context.Context, cutoff time.Time) ([]ActorSummary, error)
}

// TxRepository exposes ledger writes bound to one transaction. Lock* methods take row locks
// that are held until the transaction ends.
type TxRepository interface {
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	LockTransaction(ctx context.Context, id int64) (Transaction, error)
	LockTransactions(ctx context.Context, ids []int64) ([]Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, amount decimal.Decimal, comment string) error
	DeleteTransaction(ctx context.Context, id int64) (bool, error)
	DeletePendingRemittancesForOrder(ctx context.Context, orderID, actorID int64) (int64, error)
	ExpeditionFees(ctx context.Context, orderIDs []int64) (map[int64]decimal.Decimal, error)
	ConfirmTransactions(ctx context.Context, ids []int64, validatedBy int64, at time.Time, batch uuid.UUID) error
	InsertShortfall(ctx context.Context, s Shortfall) (Shortfall, error)
	LockShortfall(ctx context.Context, id int64) (Shortfall, error)
	UpdateShortfall(ctx context.Context, s Shortfall) error
	InsertSettlement(ctx context.Context, s Settlement) (Settlement, error)
	Totals(ctx context.Context, window Window) (Totals, error)
	InsertClosing(ctx context.Context, c Closing) (Closing, error)
	Audit(ctx context.Context, entry shared.AuditLog) error
}
