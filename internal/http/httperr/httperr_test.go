package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mt-platform/admission-service/internal/service"
	"github.com/mt-platform/admission-service/internal/storage"
	"github.com/mt-platform/admission-service/internal/store"
)

// Тесты маппинга доменных ошибок на (HTTP-статус, код), формата конверта
// и тела 429.

func TestToHTTP_Mapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "nil is a bug -> internal", err: nil, wantStatus: http.StatusInternalServerError, wantCode: "internal"},
		{name: "unknown error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal"},

		{name: "invalid argument", err: ErrInvalidArgument, wantStatus: http.StatusBadRequest, wantCode: "invalid_argument"},
		{name: "invalid email", err: service.ErrInvalidEmail, wantStatus: http.StatusBadRequest, wantCode: "invalid_argument"},
		{name: "weak password", err: service.ErrWeakPassword, wantStatus: http.StatusBadRequest, wantCode: "invalid_argument"},

		{name: "unauthenticated", err: ErrUnauthenticated, wantStatus: http.StatusUnauthorized, wantCode: "unauthenticated"},
		{name: "invalid credentials", err: service.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: "invalid_credentials"},
		{name: "malformed token", err: service.ErrMalformedToken, wantStatus: http.StatusUnauthorized, wantCode: "token_malformed"},
		{name: "expired token", err: service.ErrTokenExpired, wantStatus: http.StatusUnauthorized, wantCode: "token_expired"},
		{name: "wrong token type", err: service.ErrWrongTokenType, wantStatus: http.StatusUnauthorized, wantCode: "wrong_token_type"},
		{name: "revoked token", err: service.ErrTokenRevoked, wantStatus: http.StatusUnauthorized, wantCode: "token_revoked"},
		{name: "inactive user", err: service.ErrUserInactive, wantStatus: http.StatusUnauthorized, wantCode: "user_inactive"},
		{name: "banned user", err: service.ErrUserBanned, wantStatus: http.StatusUnauthorized, wantCode: "user_banned"},

		{name: "permission denied", err: ErrPermissionDenied, wantStatus: http.StatusForbidden, wantCode: "permission_denied"},
		{name: "mature access denied", err: ErrMatureAccessDenied, wantStatus: http.StatusForbidden, wantCode: "mature_access_denied"},
		{name: "csrf missing", err: ErrCsrfMissing, wantStatus: http.StatusForbidden, wantCode: "csrf_missing"},
		{name: "csrf invalid", err: ErrCsrfInvalid, wantStatus: http.StatusForbidden, wantCode: "csrf_invalid"},

		{name: "not found", err: storage.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "email taken", err: service.ErrEmailTaken, wantStatus: http.StatusConflict, wantCode: "already_exists"},

		{name: "retries exhausted", err: storage.ErrRetriesExhausted, wantStatus: http.StatusServiceUnavailable, wantCode: "retries_exhausted"},
		{name: "store unavailable", err: store.ErrUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "unavailable"},
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout, wantCode: "deadline_exceeded"},

		// Обёртки %w сохраняют маппинг.
		{name: "wrapped sentinel", err: fmt.Errorf("service.auth.Rotate: %w", service.ErrTokenRevoked), wantStatus: http.StatusUnauthorized, wantCode: "token_revoked"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, resp := ToHTTP(tt.err)
			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, tt.wantCode, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteError_EnvelopeAndRequestID(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "req-123")

	rec := httptest.NewRecorder()
	WriteError(rec, r, service.ErrTokenExpired)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "token_expired", resp.Error.Code)
	require.Equal(t, "req-123", resp.Error.RequestID)
}

func TestWriteError_NoLeakOfInternals(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		errors.New("pq: password authentication failed for user postgres"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "postgres", "детали внутренней ошибки не утекают")
}

func TestWriteRateLimited_Body(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteRateLimited(rec, 42)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp RateLimitedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.False(t, resp.Success)
	require.Equal(t, "Too many requests", resp.Error)
	require.Equal(t, int64(42), resp.RetryAfter)
}
