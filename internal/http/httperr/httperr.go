// httperr стандартизирует ответы об ошибках HTTP-слоя.
// На вход — доменная ошибка (sentinel-значения service/storage/store),
// на выход — корректный HTTP-статус, стабильный машиночитаемый код
// и краткое безопасное message без утечки деталей.
//
// Единственное исключение из единого конверта — отказ rate-limiter'а:
// 429 имеет собственное тело с retryAfter (см. WriteRateLimited).
package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mt-platform/admission-service/internal/service"
	"github.com/mt-platform/admission-service/internal/storage"
	"github.com/mt-platform/admission-service/internal/store"
)

// Ошибки admission-пайплайна, возникающие на уровне HTTP-слоя.
var (
	// ErrUnauthenticated — маршрут требует bearer-credential, а его нет.
	// Транспорт: HTTP 401, код unauthenticated.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied — роль пользователя не входит в список
	// разрешённых для маршрута. Транспорт: HTTP 403, код permission_denied.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMatureAccessDenied — не выполнены условия mature-гейта.
	// Транспорт: HTTP 403, код mature_access_denied.
	ErrMatureAccessDenied = errors.New("mature access denied")

	// ErrCsrfMissing — отсутствует CSRF-токен в заголовке или cookie.
	// Транспорт: HTTP 403, код csrf_missing.
	ErrCsrfMissing = errors.New("csrf token missing")

	// ErrCsrfInvalid — CSRF-токены не совпадают или имеют неверный формат.
	// Транспорт: HTTP 403, код csrf_invalid.
	ErrCsrfInvalid = errors.New("csrf token invalid")

	// ErrInvalidArgument — тело запроса не разобралось или не прошло
	// базовую проверку формы. Транспорт: HTTP 400, код invalid_argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

// APIError — единый формат ошибки для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// RateLimitedResponse — тело ответа 429.
type RateLimitedResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
// err == nil — программная ошибка вызова: возвращаем 500/internal, чтобы
// не маскировать баг ответом "200 OK" с телом ошибки.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров и middleware.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id, чтобы клиент мог репортить с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteRateLimited пишет ответ 429 с retryAfter в секундах.
// Заголовки X-RateLimit-* выставляет вызывающий middleware.
func WriteRateLimited(w http.ResponseWriter, retryAfterSeconds int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(RateLimitedResponse{
		Success:    false,
		Error:      "Too many requests",
		RetryAfter: retryAfterSeconds,
	})
}

// classify — таблица маппинга доменных ошибок на (статус, код, сообщение).
func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"

	// 400
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"

	// 401
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, service.ErrMalformedToken):
		return http.StatusUnauthorized, "token_malformed", "malformed token"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case errors.Is(err, service.ErrWrongTokenType):
		return http.StatusUnauthorized, "wrong_token_type", "wrong token type"
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, "token_revoked", "token revoked"
	case errors.Is(err, service.ErrUserInactive):
		return http.StatusUnauthorized, "user_inactive", "user inactive"
	case errors.Is(err, service.ErrUserBanned):
		return http.StatusUnauthorized, "user_banned", "user banned"

	// 403
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied", "permission denied"
	case errors.Is(err, ErrMatureAccessDenied):
		return http.StatusForbidden, "mature_access_denied", "mature access denied"
	case errors.Is(err, ErrCsrfMissing):
		return http.StatusForbidden, "csrf_missing", "csrf token missing"
	case errors.Is(err, ErrCsrfInvalid):
		return http.StatusForbidden, "csrf_invalid", "csrf token invalid"

	// 404 / 409
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict, "already_exists", "already exists"

	// 5xx
	case errors.Is(err, storage.ErrRetriesExhausted):
		return http.StatusServiceUnavailable, "retries_exhausted", "temporarily unavailable"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"

	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
