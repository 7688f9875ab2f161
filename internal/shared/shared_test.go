package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  []string
	args [][]any
	err  error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	r.args = append(r.args, args)
	return pgconn.CommandTag{}, r.err
}

func TestErrorKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("cash: confirm: %w", InvalidState("transaction %d already confirmed", 4))
	require.ErrorIs(t, err, ErrInvalidState)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Equal(t, "transaction 4 already confirmed", Message(err))
	require.Equal(t, "plain", Message(errors.New("plain")))
}

func TestMapTxErrorTurnsSerializationIntoConflict(t *testing.T) {
	err := MapTxError(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}))
	require.ErrorIs(t, err, ErrConflict)

	other := errors.New("boom")
	require.Same(t, other, MapTxError(other))
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
}

func TestIdempotencyReserveDetectsDuplicates(t *testing.T) {
	db := &recordingExecer{}
	store := NewIdempotencyStore(db)
	require.NoError(t, store.Reserve(context.Background(), "k-1", "cash.confirm"))

	db.err = &pgconn.PgError{Code: "23505"}
	require.ErrorIs(t, store.Reserve(context.Background(), "k-1", "cash.confirm"), ErrIdempotencyConflict)
	require.Error(t, store.Reserve(context.Background(), "", "cash.confirm"))
}

func TestAuditRecordRequiresEntity(t *testing.T) {
	db := &recordingExecer{}
	logger := NewAuditLogger(db)
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: AuditShortfallRaised}))

	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, logger.Record(context.Background(), AuditLog{
		ActorID:  7,
		Action:   AuditShortfallRaised,
		Entity:   "deliveryman_shortfall",
		EntityID: "12",
		Meta:     map[string]any{"amount": "300"},
		At:       at,
	}))
	require.Len(t, db.sql, 1)
	require.Equal(t, int64(7), db.args[0][0])
}
