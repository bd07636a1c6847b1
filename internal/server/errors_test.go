package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/authorization"
	billingdomain "github.com/smallbiznis/martpos/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	scannerdomain "github.com/smallbiznis/martpos/internal/scanner/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"unauthenticated", authorization.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"expired session", authdomain.ErrSessionExpired, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"csrf", ErrCSRFRejected, http.StatusForbidden, "csrf_rejected"},
		{"not active", scannerdomain.ErrNotActive, http.StatusConflict, "scanner_not_active"},
		{"stale token", scannerdomain.ErrInvalidOrExpiredToken, http.StatusGone, "invalid_or_expired_token"},
		{"queue full", scannerdomain.ErrQueueFull, http.StatusTooManyRequests, "scan_queue_full"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"stock", fmt.Errorf("line 1: %w", catalogdomain.ErrInsufficientStock), http.StatusConflict, "insufficient_stock"},
		{"duplicate product", catalogdomain.ErrConflict, http.StatusConflict, "conflict"},
		{"duplicate user", authdomain.ErrUserExists, http.StatusConflict, "conflict"},
		{"bill missing", billingdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"product missing", fmt.Errorf("line 3: %w", catalogdomain.ErrNotFound), http.StatusNotFound, "not_found"},
		{"validation", scannerdomain.ErrInvalidBarcode, http.StatusBadRequest, "validation_error"},
		{"unknown", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}

func TestMapErrorKeepsLinePrefixOnValidation(t *testing.T) {
	status, payload := mapError(fmt.Errorf("line 2: %w", billingdomain.ErrInvalidQuantity))
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_quantity", payload.Errors[0].Code)
	assert.Equal(t, "quantity", payload.Errors[0].Field)
	assert.Equal(t, "line 2: invalid_quantity", payload.Errors[0].Message)
}

func TestMapErrorHidesInternalDetails(t *testing.T) {
	_, payload := mapError(errors.New("dial tcp 10.0.0.7:5432: connection refused"))
	assert.Equal(t, "internal server error", payload.Message)
	assert.Empty(t, payload.Errors)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(billingdomain.ErrEmptyBill)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "empty_bill", code)

	typ, code = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", typ)
	assert.Equal(t, "rate_limited", code)
}

func TestSameOrigin(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"matching origin", map[string]string{"Origin": "http://pos.local:8080"}, true},
		{"foreign origin", map[string]string{"Origin": "http://evil.example"}, false},
		{"referer fallback", map[string]string{"Referer": "http://pos.local:8080/checkout"}, true},
		{"null origin uses referer", map[string]string{"Origin": "null", "Referer": "http://pos.local:8080/"}, true},
		{"nothing", nil, false},
		{"garbage", map[string]string{"Origin": "::"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, "http://pos.local:8080/scanner/activate-pos", nil)
			require.NoError(t, err)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, sameOrigin(req))
		})
	}
}
