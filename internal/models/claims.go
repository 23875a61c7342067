package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Виды credential'ов. Kind зафиксирован в claims и неизменяем после выпуска.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims — набор утверждений credential'а.
//
// Проволочный формат: {sub, jti, type, iat, exp, iss, aud}.
// TokenID (jti) — случайный уникальный идентификатор выпуска; служит ключом
// отзыва. Тип (access/refresh) проверяется при валидации и не может быть
// подменён после выпуска.
type Claims struct {
	// TokenType — вид credential'а: models.KindAccess или models.KindRefresh.
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenID возвращает jti.
func (c *Claims) TokenID() string { return c.ID }
