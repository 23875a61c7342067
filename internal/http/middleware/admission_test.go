package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mt-platform/admission-service/internal/http/httperr"
	"github.com/mt-platform/admission-service/internal/models"
	"github.com/mt-platform/admission-service/internal/ratelimit"
)

// Тесты admission-пайплайна: порядок стадий, короткое замыкание на первой
// отказавшей стадии, заголовки X-RateLimit-*, тело 429, аутентификация,
// роли, mature-гейт и CSRF.

// counterFunc — подмена store.RateCounterStore одной функцией.
type counterFunc func(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

func (f counterFunc) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return f(ctx, key, window)
}

// fixedCount — счётчик, всегда возвращающий одно значение.
func fixedCount(count int64) counterFunc {
	return func(context.Context, string, time.Duration) (int64, time.Duration, error) {
		return count, 50 * time.Second, nil
	}
}

// authStub — подмена Authenticator с подсчётом вызовов.
type authStub struct {
	claims *models.Claims
	user   *models.User
	err    error
	calls  int
}

func (a *authStub) Authenticate(context.Context, string) (*models.Claims, *models.User, error) {
	a.calls++
	return a.claims, a.user, a.err
}

func testLimiter(counters counterFunc) *ratelimit.Limiter {
	table := ratelimit.NewPolicyTable(ratelimit.Policy{MaxRequests: 5, Window: time.Minute})
	return ratelimit.New(counters, table)
}

// serve прогоняет запрос через Admit(pattern, pol) и отмечает, дошёл ли он
// до обработчика.
func serve(t *testing.T, a *Admission, pol Policy, r *http.Request) (*httptest.ResponseRecorder, *bool) {
	t.Helper()

	reached := false
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	a.Admit("POST /things", pol)(h).ServeHTTP(rec, r)
	return rec, &reached
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()

	var resp httperr.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func newRequest(method string) *http.Request {
	r := httptest.NewRequest(method, "/things", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	return r
}

const testCsrfToken = "a3f1b2c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2"

func withCsrf(r *http.Request, header, cookie string) *http.Request {
	if header != "" {
		r.Header.Set("X-Csrf-Token", header)
	}
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: "csrf-token", Value: cookie})
	}
	return r
}

func TestAdmit_RateLimitHeaders_OnAllowedResponse(t *testing.T) {
	a := NewAdmission(testLimiter(fixedCount(1)), &authStub{}, true)

	rec, reached := serve(t, a, Policy{}, newRequest(http.MethodGet))

	require.True(t, *reached)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestAdmit_RateLimited_Body429_AuthNotReached(t *testing.T) {
	auth := &authStub{}
	a := NewAdmission(testLimiter(fixedCount(6)), auth, true)

	r := newRequest(http.MethodPost)
	r.Header.Set("Authorization", "Bearer some-token")

	rec, reached := serve(t, a, Policy{RequireAuth: true}, r)

	require.False(t, *reached)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Zero(t, auth.calls, "отклонённый лимитером запрос не доходит до Auth")
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body httperr.RateLimitedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, "Too many requests", body.Error)
	require.Equal(t, int64(50), body.RetryAfter)
}

func TestAdmit_RequireAuth_NoBearer(t *testing.T) {
	a := NewAdmission(testLimiter(fixedCount(1)), &authStub{}, true)

	rec, reached := serve(t, a, Policy{RequireAuth: true}, newRequest(http.MethodGet))

	require.False(t, *reached)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthenticated", decodeAPIError(t, rec).Error.Code)
}

func TestAdmit_RequireAuth_InjectsIdentity(t *testing.T) {
	claims := &models.Claims{TokenType: models.KindAccess}
	user := &models.User{Role: models.RoleUser, Status: models.StatusActive}
	a := NewAdmission(testLimiter(fixedCount(1)), &authStub{claims: claims, user: user}, true)

	var gotClaims *models.Claims
	var gotUser *models.User
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFrom(r.Context())
		gotUser, _ = UserFrom(r.Context())
	})

	r := newRequest(http.MethodGet)
	r.Header.Set("Authorization", "Bearer valid-token")

	rec := httptest.NewRecorder()
	a.Admit("GET /things", Policy{RequireAuth: true})(h).ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Same(t, claims, gotClaims)
	require.Same(t, user, gotUser)
}

func TestAdmit_RolesImplyAuth(t *testing.T) {
	auth := &authStub{
		claims: &models.Claims{},
		user:   &models.User{Role: models.RoleUser},
	}
	a := NewAdmission(testLimiter(fixedCount(1)), auth, true)

	t.Run("no bearer rejected even without RequireAuth", func(t *testing.T) {
		rec, reached := serve(t, a, Policy{RequiredRoles: []string{models.RoleAdmin}}, newRequest(http.MethodGet))
		require.False(t, *reached)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		r := newRequest(http.MethodGet)
		r.Header.Set("Authorization", "Bearer valid-token")

		rec, reached := serve(t, a, Policy{RequiredRoles: []string{models.RoleAdmin}}, r)
		require.False(t, *reached)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "permission_denied", decodeAPIError(t, rec).Error.Code)
	})

	t.Run("allowed role", func(t *testing.T) {
		r := newRequest(http.MethodGet)
		r.Header.Set("Authorization", "Bearer valid-token")

		rec, reached := serve(t, a, Policy{RequiredRoles: []string{models.RoleUser, models.RoleSeller}}, r)
		require.True(t, *reached)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAdmit_MatureGate(t *testing.T) {
	eligible := &models.User{
		Role:                models.RoleUser,
		AgeVerified:         true,
		MatureAccessEnabled: true,
	}

	newReq := func(ack bool) *http.Request {
		r := newRequest(http.MethodGet)
		r.Header.Set("Authorization", "Bearer valid-token")
		if ack {
			r.Header.Set("X-Mature-Content", "true")
		}
		return r
	}

	pol := Policy{RequireMature: true}

	t.Run("all conditions met", func(t *testing.T) {
		a := NewAdmission(testLimiter(fixedCount(1)), &authStub{claims: &models.Claims{}, user: eligible}, true)
		rec, reached := serve(t, a, pol, newReq(true))
		require.True(t, *reached)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing client ack header", func(t *testing.T) {
		a := NewAdmission(testLimiter(fixedCount(1)), &authStub{claims: &models.Claims{}, user: eligible}, true)
		rec, reached := serve(t, a, pol, newReq(false))
		require.False(t, *reached)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "mature_access_denied", decodeAPIError(t, rec).Error.Code)
	})

	t.Run("age not verified", func(t *testing.T) {
		u := *eligible
		u.AgeVerified = false
		a := NewAdmission(testLimiter(fixedCount(1)), &authStub{claims: &models.Claims{}, user: &u}, true)
		rec, _ := serve(t, a, pol, newReq(true))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("mature access not enabled by user", func(t *testing.T) {
		u := *eligible
		u.MatureAccessEnabled = false
		a := NewAdmission(testLimiter(fixedCount(1)), &authStub{claims: &models.Claims{}, user: &u}, true)
		rec, _ := serve(t, a, pol, newReq(true))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("feature disabled globally", func(t *testing.T) {
		a := NewAdmission(testLimiter(fixedCount(1)), &authStub{claims: &models.Claims{}, user: eligible}, false)
		rec, _ := serve(t, a, pol, newReq(true))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAdmit_Csrf(t *testing.T) {
	pol := Policy{Csrf: true}

	newAdm := func() *Admission {
		return NewAdmission(testLimiter(fixedCount(1)), &authStub{}, true)
	}

	t.Run("matching tokens pass", func(t *testing.T) {
		r := withCsrf(newRequest(http.MethodPost), testCsrfToken, testCsrfToken)
		rec, reached := serve(t, newAdm(), pol, r)
		require.True(t, *reached)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		r := withCsrf(newRequest(http.MethodPost), "", testCsrfToken)
		rec, reached := serve(t, newAdm(), pol, r)
		require.False(t, *reached)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "csrf_missing", decodeAPIError(t, rec).Error.Code)
	})

	t.Run("missing cookie", func(t *testing.T) {
		r := withCsrf(newRequest(http.MethodPost), testCsrfToken, "")
		rec, _ := serve(t, newAdm(), pol, r)
		require.Equal(t, "csrf_missing", decodeAPIError(t, rec).Error.Code)
	})

	t.Run("bad format", func(t *testing.T) {
		r := withCsrf(newRequest(http.MethodPost), "UPPERCASE-not-hex", testCsrfToken)
		rec, _ := serve(t, newAdm(), pol, r)
		require.Equal(t, "csrf_invalid", decodeAPIError(t, rec).Error.Code)
	})

	t.Run("mismatch", func(t *testing.T) {
		other := strings.Repeat("b", 64)
		r := withCsrf(newRequest(http.MethodPost), testCsrfToken, other)
		rec, _ := serve(t, newAdm(), pol, r)
		require.Equal(t, "csrf_invalid", decodeAPIError(t, rec).Error.Code)
	})

	t.Run("safe method bypasses", func(t *testing.T) {
		rec, reached := serve(t, newAdm(), pol, newRequest(http.MethodGet))
		require.True(t, *reached)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bearer request bypasses", func(t *testing.T) {
		auth := &authStub{claims: &models.Claims{}, user: &models.User{Role: models.RoleUser}}
		a := NewAdmission(testLimiter(fixedCount(1)), auth, true)

		r := newRequest(http.MethodPost)
		r.Header.Set("Authorization", "Bearer valid-token")

		rec, reached := serve(t, a, Policy{RequireAuth: true, Csrf: true}, r)
		require.True(t, *reached)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "plain bearer", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "no header", header: "", want: ""},
		{name: "basic auth ignored", header: "Basic dXNlcjpwYXNz", want: ""},
		{name: "lowercase scheme ignored", header: "bearer abc", want: ""},
		{name: "trailing space trimmed", header: "Bearer abc ", want: "abc"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			require.Equal(t, tt.want, bearerToken(r))
		})
	}
}

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"

	require.Equal(t, "ip:203.0.113.7", identityKey(r, ""))

	withToken := identityKey(r, "some.jwt.token")
	require.True(t, strings.HasPrefix(withToken, "t:"))
	require.Equal(t, withToken, identityKey(r, "some.jwt.token"), "отпечаток стабилен")
	require.NotEqual(t, withToken, identityKey(r, "other.jwt.token"))
}

func TestStateChanging(t *testing.T) {
	t.Parallel()

	require.True(t, stateChanging(http.MethodPost))
	require.True(t, stateChanging(http.MethodPut))
	require.True(t, stateChanging(http.MethodPatch))
	require.True(t, stateChanging(http.MethodDelete))
	require.False(t, stateChanging(http.MethodGet))
	require.False(t, stateChanging(http.MethodHead))
	require.False(t, stateChanging(http.MethodOptions))
}
