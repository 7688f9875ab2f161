package balance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/lastmile/cashdesk/internal/rbac"
	"github.com/lastmile/cashdesk/internal/shared"
)

func newBalanceRouter(t *testing.T) (http.Handler, *memoryBalanceRepo) {
	t.Helper()
	repo := newMemoryBalanceRepo()
	svc := NewService(repo)
	o := deliveredOrder()
	require.NoError(t, svc.ApplyOrderChange(context.Background(), OrderChange{New: &o}))

	mw := rbac.Middleware{}
	r := chi.NewRouter()
	r.Use(mw.Identify)
	NewHandler(nil, svc, mw).MountRoutes(r)
	return r, repo
}

func getBalance(h http.Handler, path, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(rbac.HeaderActorID, "2")
	req.Header.Set(rbac.HeaderActorRole, role)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBalanceHandlerGet(t *testing.T) {
	h, _ := newBalanceRouter(t)

	rec := getBalance(h, "/balances/1/2025-03-04", shared.RoleCashier)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var row DailyBalance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	require.Equal(t, 1, row.OrdersDelivered)
	requireDec(t, 5000, row.RevenueArticles)
	requireDec(t, 0, row.Debt)
}

func TestBalanceHandlerList(t *testing.T) {
	h, _ := newBalanceRouter(t)

	rec := getBalance(h, "/balances/?shop_id=1&start_date=2025-03-01&end_date=2025-03-31", shared.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rows []DailyBalance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
}

func TestBalanceHandlerErrors(t *testing.T) {
	h, _ := newBalanceRouter(t)

	cases := []struct {
		name   string
		path   string
		role   string
		status int
	}{
		{name: "deliveryman forbidden", path: "/balances/1/2025-03-04", role: shared.RoleDeliveryman, status: http.StatusForbidden},
		{name: "bad shop", path: "/balances/x/2025-03-04", role: shared.RoleAdmin, status: http.StatusBadRequest},
		{name: "bad date", path: "/balances/1/04-03-2025", role: shared.RoleAdmin, status: http.StatusBadRequest},
		{name: "missing row", path: "/balances/1/2025-03-05", role: shared.RoleAdmin, status: http.StatusNotFound},
		{name: "bad range", path: "/balances/?start_date=yesterday", role: shared.RoleAdmin, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.status, getBalance(h, tc.path, tc.role).Code)
		})
	}
}
