package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lastmile/cashdesk/internal/shared"
)

func TestRequireAny(t *testing.T) {
	m := Middleware{}
	var seen shared.Actor
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := m.Identify(m.RequireAny(shared.RoleAdmin, shared.RoleCashier)(ok))

	cases := []struct {
		name   string
		id     string
		role   string
		status int
	}{
		{"admin", "1", "admin", http.StatusNoContent},
		{"cashier mixed case", "2", " Cashier ", http.StatusNoContent},
		{"deliveryman", "3", "livreur", http.StatusForbidden},
		{"anonymous", "", "", http.StatusUnauthorized},
		{"garbage id", "abc", "admin", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cash/metrics", nil)
			if tc.id != "" {
				req.Header.Set(HeaderActorID, tc.id)
				req.Header.Set(HeaderActorRole, tc.role)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "2")
	req.Header.Set(HeaderActorRole, "CASHIER")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, shared.Actor{ID: 2, Role: shared.RoleCashier}, seen)
}
