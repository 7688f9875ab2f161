package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/lastmile/cashdesk/internal/balance"
	"github.com/lastmile/cashdesk/internal/rbac"
	"github.com/lastmile/cashdesk/internal/shared"
)

type stubApplier struct {
	old, updated *balance.OrderSnapshot
	calls        int
	err          error
}

func (s *stubApplier) ApplyOrderChange(_ context.Context, old, updated *balance.OrderSnapshot) error {
	s.calls++
	s.old, s.updated = old, updated
	return s.err
}

func newIntegrationRouter(applier ChangeApplier) http.Handler {
	mw := rbac.Middleware{}
	r := chi.NewRouter()
	r.Use(mw.Identify)
	NewHandler(nil, applier, mw).MountRoutes(r)
	return r
}

func postChange(t *testing.T, h http.Handler, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/integration/order-changes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(rbac.HeaderActorID, "1")
	req.Header.Set(rbac.HeaderActorRole, role)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const deliveredOrder = `{"id":12,"shop_id":3,"deliveryman_id":7,"status":"delivered","payment_status":"cash",
"article_amount":"5000","delivery_fee":"500","expedition_fee":"200","created_at":"2026-03-10T09:00:00Z"}`

func TestOrderChangeHandlerAppliesSnapshots(t *testing.T) {
	applier := &stubApplier{}
	h := newIntegrationRouter(applier)

	body := `{"before":{"id":12,"shop_id":3,"deliveryman_id":7,"status":"en_route","payment_status":"pending",
"article_amount":"5000","delivery_fee":"500","created_at":"2026-03-10T09:00:00Z"},"after":` + deliveredOrder + `}`
	rec := postChange(t, h, shared.RoleAdmin, body)

	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Equal(t, 1, applier.calls)
	require.Equal(t, balance.StatusEnRoute, applier.old.Status)
	require.Equal(t, balance.StatusDelivered, applier.updated.Status)
	require.Equal(t, balance.PaymentCash, applier.updated.PaymentStatus)
	require.Equal(t, "5500", applier.updated.CollectedCash().String())
}

func TestOrderChangeHandlerAcceptsCreationOnly(t *testing.T) {
	applier := &stubApplier{}
	rec := postChange(t, newIntegrationRouter(applier), shared.RoleAdmin, `{"after":`+deliveredOrder+`}`)

	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Nil(t, applier.old)
	require.NotNil(t, applier.updated)
}

func TestOrderChangeHandlerRejects(t *testing.T) {
	cases := []struct {
		name   string
		role   string
		body   string
		status int
	}{
		{name: "cashier", role: shared.RoleCashier, body: `{"after":` + deliveredOrder + `}`, status: http.StatusForbidden},
		{name: "empty change", role: shared.RoleAdmin, body: `{}`, status: http.StatusBadRequest},
		{name: "unknown status", role: shared.RoleAdmin, body: `{"after":{"id":1,"shop_id":3,"status":"lost","payment_status":"cash","created_at":"2026-03-10T09:00:00Z"}}`, status: http.StatusBadRequest},
		{name: "bad payment", role: shared.RoleAdmin, body: `{"after":{"id":1,"shop_id":3,"status":"delivered","payment_status":"card","created_at":"2026-03-10T09:00:00Z"}}`, status: http.StatusBadRequest},
		{name: "different orders", role: shared.RoleAdmin, body: `{"before":{"id":1,"shop_id":3,"status":"en_route","payment_status":"pending","created_at":"2026-03-10T09:00:00Z"},"after":` + deliveredOrder + `}`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			applier := &stubApplier{}
			rec := postChange(t, newIntegrationRouter(applier), tc.role, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Zero(t, applier.calls)
		})
	}
}

func TestOrderChangeHandlerMapsServiceErrors(t *testing.T) {
	applier := &stubApplier{err: shared.InvalidState("order %d is locked", 12)}
	rec := postChange(t, newIntegrationRouter(applier), shared.RoleAdmin, `{"after":`+deliveredOrder+`}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
