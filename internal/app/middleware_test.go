package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func authzProbe(t *testing.T, got *shared.AuthorizationContext, found *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz, ok := shared.AuthorizationFromContext(r.Context())
		*got = authz
		*found = ok
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthorizationMiddlewareAttachesScope(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var got shared.AuthorizationContext
	var found bool
	handler := authorizationMiddleware(logger)(authzProbe(t, &got, &found))

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.Header.Set("X-Business-ID", "7")
	req.Header.Set("X-Actor-ID", "42")
	req.Header.Set("X-Branch-ID", "3")
	req.Header.Set("X-Accessible-Branches", "3, 4,5")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, found)
	assert.Equal(t, int64(7), got.BusinessID)
	assert.Equal(t, int64(42), got.ActorID)
	assert.Equal(t, int64(3), got.SelectedBranchID)
	assert.Equal(t, []int64{3, 4, 5}, got.AccessibleBranchIDs)
}

func TestAuthorizationMiddlewarePassesThroughWithoutBusiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var got shared.AuthorizationContext
	var found bool
	handler := authorizationMiddleware(logger)(authzProbe(t, &got, &found))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, found)
}

func TestAuthorizationMiddlewareRejectsBadHeaders(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := authorizationMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/expenses", nil)
	req.Header.Set("X-Business-ID", "abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// A selected branch outside the accessible set is a scope violation.
	req = httptest.NewRequest(http.MethodPost, "/expenses", nil)
	req.Header.Set("X-Business-ID", "7")
	req.Header.Set("X-Branch-ID", "9")
	req.Header.Set("X-Accessible-Branches", "1,2")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMutatingRateLimitSkipsReads(t *testing.T) {
	handler := mutatingRateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Reads bypass the limiter entirely.
	for range 5 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/accounts", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/expenses", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/expenses", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
