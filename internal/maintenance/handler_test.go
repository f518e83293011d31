package maintenance

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"auth-service/internal/observability"
)

type fakeCleaner struct {
	cleared int64
	err     error
	calls   int
}

func (f *fakeCleaner) ClearExpiredLocks(_ context.Context, _ int) (int64, error) {
	f.calls++
	return f.cleared, f.err
}

func cleanupRequest(secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req
}

func TestCleanup_DisabledWithoutSecret(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewCleanupHandler(cleaner, observability.NewLoggerTo(io.Discard), "", 500)

	rec := httptest.NewRecorder()
	handler.Handle(rec, cleanupRequest("anything"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, cleaner.calls)
}

func TestCleanup_RejectsWrongSecret(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewCleanupHandler(cleaner, observability.NewLoggerTo(io.Discard), "cron-secret", 500)

	rec := httptest.NewRecorder()
	handler.Handle(rec, cleanupRequest("wrong"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.Handle(rec, cleanupRequest(""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Zero(t, cleaner.calls)
}

func TestCleanup_ClearsLocks(t *testing.T) {
	cleaner := &fakeCleaner{cleared: 7}
	handler := NewCleanupHandler(cleaner, observability.NewLoggerTo(io.Discard), "cron-secret", 500)

	rec := httptest.NewRecorder()
	handler.Handle(rec, cleanupRequest("cron-secret"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, cleaner.calls)
	require.Contains(t, rec.Body.String(), `"cleared_locks":7`)
}

func TestCleanup_RepositoryFailure(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("db down")}
	handler := NewCleanupHandler(cleaner, observability.NewLoggerTo(io.Discard), "cron-secret", 500)

	rec := httptest.NewRecorder()
	handler.Handle(rec, cleanupRequest("cron-secret"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
