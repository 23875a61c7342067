package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mt-platform/admission-service/internal/http/httperr"
	"github.com/mt-platform/admission-service/internal/http/middleware"
	"github.com/mt-platform/admission-service/internal/models"
	"github.com/mt-platform/admission-service/internal/service"
)

// Тесты REST-хендлеров: формат запроса/ответа, строгий декодер,
// маппинг ошибок сервиса, обязательность claims для защищённых операций.

// authServiceStub — подмена AuthService; возвращает заданные значения
// и запоминает аргументы последнего вызова.
type authServiceStub struct {
	pair *models.TokenPair
	err  error

	gotEmail    string
	gotPassword string
	gotRefresh  string
	gotClaims   *models.Claims
	gotCurrent  string
	gotNext     string
}

func (s *authServiceStub) RegisterUser(_ context.Context, email, password string) (*models.TokenPair, uuid.UUID, error) {
	s.gotEmail, s.gotPassword = email, password
	return s.pair, uuid.New(), s.err
}

func (s *authServiceStub) LoginUser(_ context.Context, email, password string) (*models.TokenPair, uuid.UUID, error) {
	s.gotEmail, s.gotPassword = email, password
	return s.pair, uuid.New(), s.err
}

func (s *authServiceStub) Rotate(_ context.Context, refreshRaw string) (*models.TokenPair, uuid.UUID, error) {
	s.gotRefresh = refreshRaw
	return s.pair, uuid.New(), s.err
}

func (s *authServiceStub) Logout(_ context.Context, access *models.Claims, refreshRaw string) error {
	s.gotClaims, s.gotRefresh = access, refreshRaw
	return s.err
}

func (s *authServiceStub) ChangePassword(_ context.Context, access *models.Claims, refreshRaw, current, next string) error {
	s.gotClaims, s.gotRefresh, s.gotCurrent, s.gotNext = access, refreshRaw, current, next
	return s.err
}

func testPair() *models.TokenPair {
	return &models.TokenPair{
		AccessToken:     "access.jwt",
		RefreshToken:    "refresh.jwt",
		AccessExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}
}

func doJSON(t *testing.T, h http.HandlerFunc, body string, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if ctx != nil {
		r = r.WithContext(ctx)
	}

	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp httperr.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error.Code
}

func TestLogin_OK(t *testing.T) {
	stub := &authServiceStub{pair: testPair()}
	h := New(stub)

	rec := doJSON(t, h.Login, `{"email":"user@example.com","password":"Str0ng#pass"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user@example.com", stub.gotEmail)
	require.Equal(t, "Str0ng#pass", stub.gotPassword)

	var resp tokensResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "access.jwt", resp.Tokens.AccessToken)
	require.Equal(t, "refresh.jwt", resp.Tokens.RefreshToken)
	require.InDelta(t, 15*60, resp.Tokens.ExpiresIn, 5)
}

func TestLogin_ServiceErrorMapped(t *testing.T) {
	stub := &authServiceStub{err: service.ErrInvalidCredentials}
	h := New(stub)

	rec := doJSON(t, h.Login, `{"email":"user@example.com","password":"wrong"}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credentials", decodeCode(t, rec))
}

func TestRegister_UnknownFieldRejected(t *testing.T) {
	h := New(&authServiceStub{pair: testPair()})

	rec := doJSON(t, h.Register, `{"email":"a@b.c","password":"x","admin":true}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_argument", decodeCode(t, rec))
}

func TestRefresh_EmptyTokenRejected(t *testing.T) {
	h := New(&authServiceStub{pair: testPair()})

	rec := doJSON(t, h.Refresh, `{"refreshToken":""}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_argument", decodeCode(t, rec))
}

func TestRefresh_RevokedMapped(t *testing.T) {
	h := New(&authServiceStub{err: service.ErrTokenRevoked})

	rec := doJSON(t, h.Refresh, `{"refreshToken":"refresh.jwt"}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_revoked", decodeCode(t, rec))
}

// ctxWithClaims воспроизводит то, что делает стадия Auth admission-пайплайна.
func ctxWithClaims(claims *models.Claims) context.Context {
	return middleware.WithClaims(context.Background(), claims)
}

func TestLogout_RequiresClaims(t *testing.T) {
	h := New(&authServiceStub{})

	rec := doJSON(t, h.Logout, `{"refreshToken":"refresh.jwt"}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthenticated", decodeCode(t, rec))
}

func TestLogout_OK_EmptyBodyAllowed(t *testing.T) {
	stub := &authServiceStub{}
	h := New(stub)
	claims := &models.Claims{TokenType: models.KindAccess}

	rec := doJSON(t, h.Logout, "", ctxWithClaims(claims))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Same(t, claims, stub.gotClaims)
	require.Empty(t, stub.gotRefresh)

	var resp okResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Ok)
}

func TestChangePassword_OK(t *testing.T) {
	stub := &authServiceStub{}
	h := New(stub)
	claims := &models.Claims{TokenType: models.KindAccess}

	body := `{"currentPassword":"Old#pass1","newPassword":"N3w#secret","refreshToken":"refresh.jwt"}`
	rec := doJSON(t, h.ChangePassword, body, ctxWithClaims(claims))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Old#pass1", stub.gotCurrent)
	require.Equal(t, "N3w#secret", stub.gotNext)
	require.Equal(t, "refresh.jwt", stub.gotRefresh)
}

func TestChangePassword_WeakPasswordMapped(t *testing.T) {
	h := New(&authServiceStub{err: service.ErrWeakPassword})
	claims := &models.Claims{TokenType: models.KindAccess}

	body := `{"currentPassword":"Old#pass1","newPassword":"short","refreshToken":""}`
	rec := doJSON(t, h.ChangePassword, body, ctxWithClaims(claims))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_argument", decodeCode(t, rec))
}
