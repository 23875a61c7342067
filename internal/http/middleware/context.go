package middleware

import (
	"context"

	"github.com/mt-platform/admission-service/internal/models"
)

type requestIDKey struct{}
type claimsKey struct{}
type userKey struct{}

// RequestIDFrom возвращает request id из контекста (или "").
func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClaims кладёт claims аутентифицированного credential'а в контекст.
// Вызывается стадией Auth admission-пайплайна.
func WithClaims(ctx context.Context, c *models.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// WithUser кладёт пользователя текущего запроса в контекст.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// ClaimsFrom возвращает claims аутентифицированного credential'а.
// Заполняется стадией Auth admission-пайплайна.
func ClaimsFrom(ctx context.Context) (*models.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*models.Claims)
	return c, ok
}

// UserFrom возвращает пользователя текущего запроса.
// Заполняется стадией Auth admission-пайплайна.
func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey{}).(*models.User)
	return u, ok
}
