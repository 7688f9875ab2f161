package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lastmile/cashdesk/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{shared.Validation("paid amount must be >= 0"), http.StatusBadRequest},
		{shared.NotFound("transaction 9"), http.StatusNotFound},
		{fmt.Errorf("cash: %w", shared.InvalidState("already confirmed")), http.StatusUnprocessableEntity},
		{shared.Conflict("mixed actors"), http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.code, rr.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorUsesUserMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("cash: confirm: %w", shared.InvalidState("transaction 4 is not pending")))
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, "transaction 4 is not pending", body.Detail)
}

type samplePayload struct {
	IDs  []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Name string  `json:"name" validate:"required"`
}

func TestDecoderValidates(t *testing.T) {
	d := NewDecoder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ids":[0],"name":"x"}`))
	var p samplePayload
	err := d.Decode(req, &p)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ids":[1,2],"name":"x"}`))
	require.NoError(t, d.Decode(req, &p))
	require.Equal(t, []int64{1, 2}, p.IDs)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ids":`))
	require.ErrorIs(t, d.Decode(req, &p), ErrBadRequest)
}
