package cash

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/shared"
)

type memoryState struct {
	txs         map[int64]Transaction
	shortfalls  map[int64]Shortfall
	settlements []Settlement
	closings    []Closing
	audit       []shared.AuditLog
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		txs:         make(map[int64]Transaction, len(s.txs)),
		shortfalls:  make(map[int64]Shortfall, len(s.shortfalls)),
		settlements: append([]Settlement(nil), s.settlements...),
		closings:    append([]Closing(nil), s.closings...),
		audit:       append([]shared.AuditLog(nil), s.audit...),
	}
	for k, v := range s.txs {
		out.txs[k] = v
	}
	for k, v := range s.shortfalls {
		out.shortfalls[k] = v
	}
	return out
}

// memoryLedger implements Repository and TxRepository over maps. WithTx stages writes on a
// copy that only replaces the live state when fn succeeds.
type memoryLedger struct {
	state      memoryState
	users      map[int64]string
	fees       map[int64]decimal.Decimal
	categories []Category
	nextID     int64
	failOn     string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		state: memoryState{
			txs:        make(map[int64]Transaction),
			shortfalls: make(map[int64]Shortfall),
		},
		users: map[int64]string{1: "Admin", 7: "Moussa", 8: "Awa"},
		fees:  make(map[int64]decimal.Decimal),
		categories: []Category{
			{ID: 1, Name: "Carburant", Type: CategoryDeliverymanCharge},
			{ID: 2, Name: "Loyer", Type: CategoryCompanyCharge},
		},
	}
}

func (m *memoryLedger) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	live := m.state
	m.state = live.clone()
	if err := fn(ctx, m); err != nil {
		m.state = live
		return err
	}
	return nil
}

func (m *memoryLedger) decorate(t Transaction) Transaction {
	t.ActorName = m.users[t.ActorID]
	if t.CategoryID != nil {
		for _, c := range m.categories {
			if c.ID == *t.CategoryID {
				t.CategoryName = c.Name
			}
		}
	}
	return t
}

func (m *memoryLedger) GetTransaction(_ context.Context, id int64) (Transaction, error) {
	t, ok := m.state.txs[id]
	if !ok {
		return Transaction{}, shared.NotFound("cash transaction %d not found", id)
	}
	return m.decorate(t), nil
}

func (m *memoryLedger) sortedTransactions() []Transaction {
	out := make([]Transaction, 0, len(m.state.txs))
	for _, t := range m.state.txs {
		out = append(out, m.decorate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *memoryLedger) ListTransactions(_ context.Context, f ListFilter) ([]Transaction, error) {
	var out []Transaction
	search := strings.ToLower(f.Search)
	for _, t := range m.sortedTransactions() {
		if f.Kind != "" && t.Movement.Kind != f.Kind {
			continue
		}
		if f.ActorID > 0 && t.ActorID != f.ActorID {
			continue
		}
		if !f.Window.Contains(t.CreatedAt) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.ActorName+"|"+t.Comment+"|"+t.CategoryName), search) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryLedger) RemittanceSummary(_ context.Context, w Window, search string) ([]ActorSummary, error) {
	byActor := make(map[int64]*ActorSummary)
	for _, t := range m.state.txs {
		if t.Movement.Kind != KindRemittance || !w.Contains(t.CreatedAt) {
			continue
		}
		name := m.users[t.ActorID]
		if search != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(search)) {
			continue
		}
		s, ok := byActor[t.ActorID]
		if !ok {
			s = &ActorSummary{ActorID: t.ActorID, ActorName: name}
			byActor[t.ActorID] = s
		}
		if t.Status == StatusPending {
			s.PendingCount++
			s.PendingAmount = s.PendingAmount.Add(t.Amount().Abs())
		} else {
			s.ConfirmedCount++
			s.ConfirmedAmount = s.ConfirmedAmount.Add(t.Amount().Abs())
		}
	}
	out := make([]ActorSummary, 0, len(byActor))
	for _, s := range byActor {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorName < out[j].ActorName })
	return out, nil
}

func (m *memoryLedger) PendingRemittancesOlderThan(_ context.Context, cutoff time.Time) ([]ActorSummary, error) {
	all, _ := m.RemittanceSummary(context.Background(), Window{End: &cutoff}, "")
	var out []ActorSummary
	for _, s := range all {
		if s.PendingCount > 0 {
			s.ConfirmedCount, s.ConfirmedAmount = 0, decimal.Zero
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryLedger) RemittanceDetails(_ context.Context, actorID int64, w Window) ([]RemittanceDetail, error) {
	var out []RemittanceDetail
	for _, t := range m.sortedTransactions() {
		if t.Movement.Kind != KindRemittance || t.ActorID != actorID || !w.Contains(t.CreatedAt) {
			continue
		}
		d := RemittanceDetail{Transaction: t, ExpeditionFee: decimal.Zero}
		if id, ok := t.LinkedOrder(); ok {
			if fee, ok := m.fees[id]; ok {
				orderID := id
				d.LinkedOrderID = &orderID
				d.ExpeditionFee = fee
			}
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Status == StatusPending && out[j].Status != StatusPending
	})
	return out, nil
}

func (m *memoryLedger) ListShortfalls(_ context.Context, f ShortfallFilter) ([]Shortfall, error) {
	var out []Shortfall
	for _, s := range m.state.shortfalls {
		s.DeliverymanName = m.users[s.DeliverymanID]
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(s.DeliverymanName), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryLedger) ListClosings(_ context.Context, days DateRange) ([]Closing, error) {
	var out []Closing
	for _, c := range m.state.closings {
		if days.From != "" && c.ClosingDate < days.From {
			continue
		}
		if days.To != "" && c.ClosingDate > days.To {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosingDate > out[j].ClosingDate })
	return out, nil
}

func (m *memoryLedger) ListCategories(_ context.Context, typ CategoryType) ([]Category, error) {
	var out []Category
	for _, c := range m.categories {
		if typ == "" || c.Type == typ {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryLedger) Totals(_ context.Context, w Window) (Totals, error) {
	t := Totals{Collected: decimal.Zero, Expenses: decimal.Zero, Withdrawals: decimal.Zero, DebtsSettled: decimal.Zero}
	for _, tr := range m.state.txs {
		if tr.Status != StatusConfirmed {
			continue
		}
		amount := tr.Amount().Abs()
		switch tr.Movement.Kind {
		case KindRemittance:
			if tr.ValidatedAt != nil && w.Contains(*tr.ValidatedAt) {
				t.Collected = t.Collected.Add(amount)
			}
		case KindExpense:
			if w.Contains(tr.CreatedAt) {
				t.Expenses = t.Expenses.Add(amount)
			}
		case KindManualWithdrawal:
			if w.Contains(tr.CreatedAt) {
				t.Expenses = t.Expenses.Add(amount)
				t.Withdrawals = t.Withdrawals.Add(amount)
			}
		}
	}
	for _, s := range m.state.settlements {
		if w.Contains(s.SettledAt) {
			t.DebtsSettled = t.DebtsSettled.Add(s.Amount)
		}
	}
	return t, nil
}

func (m *memoryLedger) InsertTransaction(_ context.Context, t Transaction) (Transaction, error) {
	t.ID = m.id()
	m.state.txs[t.ID] = t
	return m.decorate(t), nil
}

func (m *memoryLedger) LockTransaction(ctx context.Context, id int64) (Transaction, error) {
	return m.GetTransaction(ctx, id)
}

func (m *memoryLedger) LockTransactions(_ context.Context, ids []int64) ([]Transaction, error) {
	var out []Transaction
	for _, id := range ids {
		if t, ok := m.state.txs[id]; ok {
			out = append(out, m.decorate(t))
		}
	}
	return out, nil
}

func (m *memoryLedger) UpdateTransaction(_ context.Context, id int64, amount decimal.Decimal, comment string) error {
	t, ok := m.state.txs[id]
	if !ok {
		return shared.NotFound("cash transaction %d not found", id)
	}
	t.Movement.Magnitude = amount.Abs()
	t.Comment = comment
	m.state.txs[id] = t
	return nil
}

func (m *memoryLedger) DeleteTransaction(_ context.Context, id int64) (bool, error) {
	if _, ok := m.state.txs[id]; !ok {
		return false, nil
	}
	delete(m.state.txs, id)
	return true, nil
}

func (m *memoryLedger) DeletePendingRemittancesForOrder(_ context.Context, orderID, actorID int64) (int64, error) {
	var removed int64
	for id, t := range m.state.txs {
		if t.Movement.Kind != KindRemittance || t.Status != StatusPending || t.ActorID != actorID {
			continue
		}
		if linked, ok := t.LinkedOrder(); ok && linked == orderID {
			delete(m.state.txs, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryLedger) ExpeditionFees(_ context.Context, orderIDs []int64) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal)
	for _, id := range orderIDs {
		if fee, ok := m.fees[id]; ok {
			out[id] = fee
		}
	}
	return out, nil
}

func (m *memoryLedger) ConfirmTransactions(_ context.Context, ids []int64, validatedBy int64, at time.Time, batch uuid.UUID) error {
	for _, id := range ids {
		t := m.state.txs[id]
		if t.Status != StatusPending {
			return shared.Conflict("remittances changed while being confirmed")
		}
		by, when, ref := validatedBy, at, batch
		t.Status = StatusConfirmed
		t.ValidatedBy = &by
		t.ValidatedAt = &when
		t.BatchRef = &ref
		m.state.txs[id] = t
	}
	return nil
}

func (m *memoryLedger) InsertShortfall(_ context.Context, s Shortfall) (Shortfall, error) {
	if m.failOn == "insert_shortfall" {
		return Shortfall{}, context.DeadlineExceeded
	}
	s.ID = m.id()
	m.state.shortfalls[s.ID] = s
	return s, nil
}

func (m *memoryLedger) LockShortfall(_ context.Context, id int64) (Shortfall, error) {
	s, ok := m.state.shortfalls[id]
	if !ok {
		return Shortfall{}, shared.NotFound("shortfall %d not found", id)
	}
	return s, nil
}

func (m *memoryLedger) UpdateShortfall(_ context.Context, s Shortfall) error {
	m.state.shortfalls[s.ID] = s
	return nil
}

func (m *memoryLedger) InsertSettlement(_ context.Context, s Settlement) (Settlement, error) {
	s.ID = m.id()
	m.state.settlements = append(m.state.settlements, s)
	return s, nil
}

func (m *memoryLedger) InsertClosing(_ context.Context, c Closing) (Closing, error) {
	for _, existing := range m.state.closings {
		if existing.ClosingDate == c.ClosingDate {
			return Closing{}, shared.Conflict("a cash closing already exists for %s", c.ClosingDate)
		}
	}
	c.ID = m.id()
	m.state.closings = append(m.state.closings, c)
	return c, nil
}

func (m *memoryLedger) Audit(_ context.Context, entry shared.AuditLog) error {
	m.state.audit = append(m.state.audit, entry)
	return nil
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(context.Context) error {
	c.bumps++
	return nil
}

type recordingNotifier struct{ events []ShortfallRaised }

func (n *recordingNotifier) ShortfallRaised(_ context.Context, evt ShortfallRaised) error {
	n.events = append(n.events, evt)
	return nil
}
