package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHealthzAlwaysOK(t *testing.T) {
	h := New(Checker{Name: "components", Check: func(context.Context) error {
		return errors.New("down")
	}})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec).Status)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestReadyzAllChecksPass(t *testing.T) {
	h := New(
		Checker{Name: "components", Check: func(context.Context) error { return nil }},
		Checker{Name: "sessions", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["components"])
	assert.Equal(t, "ok", body.Checks["sessions"])
}

func TestReadyzFailingCheck(t *testing.T) {
	h := New(
		Checker{Name: "components", Check: func(context.Context) error { return nil }},
		Checker{Name: "analytics", Check: func(context.Context) error {
			return errors.New("connection refused")
		}},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "fail", body.Status)
	assert.Equal(t, "ok", body.Checks["components"])
	assert.Equal(t, "fail: connection refused", body.Checks["analytics"])
}

func TestHealthAggregatesWithTimestamp(t *testing.T) {
	h := New(Checker{Name: "components", Check: func(context.Context) error { return nil }})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Timestamp.IsZero())
}

func TestHealthReportsFailure(t *testing.T) {
	h := New(Checker{Name: "providers", Check: func(context.Context) error {
		return errors.New("all breakers open")
	}})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "fail", decode(t, rec).Status)
}

func TestCheckTimeoutApplied(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok, "check context should carry a deadline")
		assert.NotZero(t, deadline)
		return nil
	}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterMountsProbes(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
