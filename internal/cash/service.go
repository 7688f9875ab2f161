package cash

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lastmile/cashdesk/internal/shared"
)

// Invalidator drops cached read models after a committed write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// ShortfallRaised is published after a confirmation batch created a shortfall.
type ShortfallRaised struct {
	ShortfallID    int64           `json:"shortfall_id"`
	DeliverymanID  int64           `json:"deliveryman_id"`
	CreatedBy      int64           `json:"created_by"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionIDs []int64         `json:"transaction_ids"`
	BatchRef       uuid.UUID       `json:"batch_ref"`
}

// Notifier hands events to asynchronous consumers.
type Notifier interface {
	ShortfallRaised(ctx context.Context, evt ShortfallRaised) error
}

// ServiceConfig bundles the optional collaborators of Service.
type ServiceConfig struct {
	Cache       Invalidator
	Notifier    Notifier
	Instruments *Instruments
	Logger      *slog.Logger
	Location    *time.Location
	// Currency labels amounts in generated comments. Defaults to FCFA.
	Currency string
}

// Service implements the cash ledger, remittance reconciliation, shortfalls and closings.
type Service struct {
	repo        Repository
	cache       Invalidator
	notifier    Notifier
	instruments *Instruments
	logger      *slog.Logger
	loc         *time.Location
	printer     *message.Printer
	currency    string
	now         func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "FCFA"
	}
	return &Service{
		repo:        repo,
		cache:       cfg.Cache,
		notifier:    cfg.Notifier,
		instruments: cfg.Instruments,
		logger:      logger.With(slog.String("component", "cash")),
		loc:         loc,
		printer:     message.NewPrinter(language.French),
		currency:    currency,
		now:         time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Location is the business time zone days are cut in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) window(r DateRange) (Window, error) {
	start, end, err := r.Bounds(s.loc)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump failed", slog.Any("error", err))
	}
}

// PrepareRecord validates in and builds the transaction to insert. Remittances start pending;
// expenses and withdrawals are confirmed on entry by whoever recorded them.
func PrepareRecord(in RecordInput, now time.Time) (Transaction, error) {
	if in.ActorID <= 0 {
		return Transaction{}, shared.Validation("actor is required")
	}
	if in.Kind == "" {
		return Transaction{}, shared.Validation("movement type is required")
	}
	movement, err := NewMovement(in.Kind, in.Amount)
	if err != nil {
		return Transaction{}, err
	}
	if in.CategoryID != nil && *in.CategoryID <= 0 {
		return Transaction{}, shared.Validation("invalid category")
	}
	createdAt := now
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		createdAt = *in.CreatedAt
	}
	t := Transaction{
		ActorID:    in.ActorID,
		Movement:   movement,
		CategoryID: in.CategoryID,
		Comment:    strings.TrimSpace(in.Comment),
		OrderID:    in.OrderID,
		Status:     in.Kind.InitialStatus(),
		CreatedAt:  createdAt,
	}
	if t.Status == StatusConfirmed {
		validator := in.ActorID
		if in.RecordedBy > 0 {
			validator = in.RecordedBy
		}
		t.ValidatedBy = &validator
		t.ValidatedAt = &createdAt
	}
	return t, nil
}

// Record creates a cash movement.
func (s *Service) Record(ctx context.Context, in RecordInput) (Transaction, error) {
	t, err := PrepareRecord(in, s.now())
	if err != nil {
		return Transaction{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		t, err = tx.InsertTransaction(ctx, t)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.invalidate(ctx)
	return t, nil
}

// Edit changes the amount and comment of a movement. A confirmed remittance cannot be edited.
func (s *Service) Edit(ctx context.Context, id int64, in EditInput) (Transaction, error) {
	if id <= 0 {
		return Transaction{}, shared.Validation("invalid transaction id")
	}
	if !in.Amount.IsPositive() {
		return Transaction{}, shared.Validation("amount must be greater than zero")
	}
	var updated Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if current.Movement.Kind == KindRemittance && current.Status != StatusPending {
			return shared.InvalidState("remittance %d is already confirmed", id)
		}
		current.Movement.Magnitude = in.Amount
		current.Comment = strings.TrimSpace(in.Comment)
		if err := tx.UpdateTransaction(ctx, id, current.Amount(), current.Comment); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// EditPendingRemittanceAmount corrects the amount of a remittance that has not been confirmed yet.
func (s *Service) EditPendingRemittanceAmount(ctx context.Context, id int64, amount decimal.Decimal) (Transaction, error) {
	if id <= 0 {
		return Transaction{}, shared.Validation("invalid transaction id")
	}
	if !amount.IsPositive() {
		return Transaction{}, shared.Validation("amount must be greater than zero")
	}
	var updated Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if current.Movement.Kind != KindRemittance {
			return shared.Validation("transaction %d is not a remittance", id)
		}
		if current.Status != StatusPending {
			return shared.InvalidState("remittance %d is not pending", id)
		}
		current.Movement.Magnitude = amount
		if err := tx.UpdateTransaction(ctx, id, current.Amount(), current.Comment); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a movement permanently.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validation("invalid transaction id")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.DeleteTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return shared.NotFound("cash transaction %d not found", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteStalePendingByOrder drops the pending remittances an actor still has for an order,
// used when the order moves to another deliveryman.
func (s *Service) DeleteStalePendingByOrder(ctx context.Context, orderID, actorID int64) (int64, error) {
	if orderID <= 0 || actorID <= 0 {
		return 0, shared.Validation("order and actor are required")
	}
	var removed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = tx.DeletePendingRemittancesForOrder(ctx, orderID, actorID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.invalidate(ctx)
	}
	return removed, nil
}

// Get returns one movement.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	if id <= 0 {
		return Transaction{}, shared.Validation("invalid transaction id")
	}
	return s.repo.GetTransaction(ctx, id)
}

// ListQuery is the caller-facing form of ListFilter.
type ListQuery struct {
	Kind    Kind
	ActorID int64
	Range   DateRange
	Search  string
}

// List returns movements matching q, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Transaction, error) {
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, shared.Validation("unknown movement type %q", q.Kind)
	}
	window, err := s.window(q.Range)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, ListFilter{
		Kind:    q.Kind,
		ActorID: q.ActorID,
		Window:  window,
		Search:  strings.TrimSpace(q.Search),
	})
}

// RemittanceSummary aggregates remittances per deliveryman over days.
func (s *Service) RemittanceSummary(ctx context.Context, days DateRange, search string) ([]ActorSummary, error) {
	window, err := s.window(days)
	if err != nil {
		return nil, err
	}
	return s.repo.RemittanceSummary(ctx, window, strings.TrimSpace(search))
}

// RemittanceDetails lists one deliveryman's remittances with their order context, pending first.
func (s *Service) RemittanceDetails(ctx context.Context, actorID int64, days DateRange) ([]RemittanceDetail, error) {
	if actorID <= 0 {
		return nil, shared.Validation("deliveryman is required")
	}
	window, err := s.window(days)
	if err != nil {
		return nil, err
	}
	return s.repo.RemittanceDetails(ctx, actorID, window)
}

// ExpenseCategories lists categories, optionally of one type.
func (s *Service) ExpenseCategories(ctx context.Context, categoryType CategoryType) ([]Category, error) {
	switch categoryType {
	case "", CategoryDeliverymanCharge, CategoryCompanyCharge:
	default:
		return nil, shared.Validation("unknown category type %q", categoryType)
	}
	return s.repo.ListCategories(ctx, categoryType)
}

// StalePendingRemittances summarises pending remittances older than age per deliveryman.
func (s *Service) StalePendingRemittances(ctx context.Context, age time.Duration) ([]ActorSummary, error) {
	if age <= 0 {
		return nil, shared.Validation("age must be positive")
	}
	return s.repo.PendingRemittancesOlderThan(ctx, s.now().Add(-age))
}
