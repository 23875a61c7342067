package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mt-platform/admission-service/internal/http/httperr"
	"github.com/mt-platform/admission-service/internal/models"
	"github.com/mt-platform/admission-service/internal/ratelimit"
)

// Policy — admission-дескриптор маршрута, собирается при регистрации.
// Порядок стадий фиксирован: RateLimit → Auth → Role → MatureGate → Csrf;
// первая отказавшая стадия прерывает пайплайн, последующие не выполняются.
type Policy struct {
	// RateLimit — лимит маршрута; nil означает «взять из таблицы политик»
	// (для незарегистрированных паттернов таблица вернёт default).
	RateLimit *ratelimit.Policy
	// RequireAuth — маршрут требует валидный access-credential.
	RequireAuth bool
	// RequiredRoles — роли, которым разрешён маршрут (подразумевает RequireAuth).
	RequiredRoles []string
	// RequireMature — маршрут отдаёт mature-контент (подразумевает RequireAuth).
	RequireMature bool
	// Csrf — для state-changing запросов без bearer-credential'а требуется
	// совпадение CSRF-заголовка и cookie.
	Csrf bool
}

// Authenticator проверяет access-credential и возвращает claims и пользователя.
// Реализуется service.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.Claims, *models.User, error)
}

// Admission строит admission-мидлвары для маршрутов; создаётся один раз
// при сборке роутера.
type Admission struct {
	limiter       *ratelimit.Limiter
	auth          Authenticator
	matureEnabled bool
}

// NewAdmission создаёт фабрику admission-пайплайнов.
func NewAdmission(limiter *ratelimit.Limiter, auth Authenticator, matureEnabled bool) *Admission {
	return &Admission{
		limiter:       limiter,
		auth:          auth,
		matureEnabled: matureEnabled,
	}
}

// Admit возвращает мидлвар, интерпретирующий политику pol для маршрута
// pattern ("METHOD /path"). pattern же служит route_key лимитера.
func (a *Admission) Admit(pattern string, pol Policy) Middleware {
	requireAuth := pol.RequireAuth || len(pol.RequiredRoles) > 0 || pol.RequireMature

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := bearerToken(r)

			// 1. Rate limit. Считаются и отклонённые попытки.
			d := a.limiter.Check(ctx, identityKey(r, raw), pattern)
			writeRateHeaders(w, d)
			if !d.Allowed {
				httperr.WriteRateLimited(w, int64(d.RetryAfter.Seconds()))
				return
			}

			// 2. Аутентификация (и статус учётной записи).
			if requireAuth {
				if raw == "" {
					httperr.WriteError(w, r, httperr.ErrUnauthenticated)
					return
				}

				claims, user, err := a.auth.Authenticate(ctx, raw)
				if err != nil {
					httperr.WriteError(w, r, err)
					return
				}

				ctx = WithClaims(ctx, claims)
				ctx = WithUser(ctx, user)
			}

			// 3. Роли.
			if len(pol.RequiredRoles) > 0 {
				user, _ := UserFrom(ctx)
				if user == nil || !roleAllowed(user.Role, pol.RequiredRoles) {
					httperr.WriteError(w, r, httperr.ErrPermissionDenied)
					return
				}
			}

			// 4. Mature-гейт: флаги пользователя + явное подтверждение клиента.
			if pol.RequireMature {
				user, _ := UserFrom(ctx)
				if !a.matureEnabled || user == nil ||
					!user.AgeVerified || !user.MatureAccessEnabled ||
					r.Header.Get(matureAckHeader) != "true" {
					httperr.WriteError(w, r, httperr.ErrMatureAccessDenied)
					return
				}
			}

			// 5. CSRF — только state-changing запросы без bearer-credential'а.
			if pol.Csrf && stateChanging(r.Method) && raw == "" {
				if err := checkCsrf(r); err != nil {
					httperr.WriteError(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// matureAckHeader — явное подтверждение клиента на выдачу mature-контента.
const matureAckHeader = "X-Mature-Content"

// bearerToken извлекает токен из Authorization: Bearer <...>.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "

	if !strings.HasPrefix(auth, prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}

// identityKey определяет субъект лимитирования до аутентификации:
// отпечаток bearer-токена, если он предъявлен, иначе IP клиента.
func identityKey(r *http.Request, raw string) string {
	if raw != "" {
		sum := sha256.Sum256([]byte(raw))
		return "t:" + base64.RawURLEncoding.EncodeToString(sum[:16])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return "ip:" + host
}

// stateChanging — методы, меняющие состояние.
func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func roleAllowed(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// writeRateHeaders выставляет X-RateLimit-* на каждый ответ маршрута.
func writeRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
