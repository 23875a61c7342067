package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mt-platform/admission-service/internal/models"
	logctx "github.com/mt-platform/admission-service/internal/pkg/log"
	"github.com/mt-platform/admission-service/internal/pkg/redact"
)

// issueToken выпускает подписанный credential вида kind со свежим jti.
// Единственная ошибка — отказ подписи (неверно сконфигурированный ключ);
// для процесса она фатальна, конфиг требует ключ на старте.
func (s *Service) issueToken(subject uuid.UUID, kind string, ttl time.Duration, now time.Time) (string, *models.Claims, error) {
	const op = "service.token.issueToken"

	claims := &models.Claims{
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return signed, claims, nil
}

// parseToken декодирует и проверяет credential: подпись, iss, aud, срок,
// форму claims и вид токена. Отзыв здесь не проверяется — это отдельный
// шаг с собственной политикой отказа (см. ValidateAccess/Rotate).
func (s *Service) parseToken(raw, kind string) (*models.Claims, error) {
	const op = "service.token.parseToken"

	token, err := jwt.ParseWithClaims(raw, &models.Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
	}

	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformedToken)
	}

	if claims.TokenType != kind {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongTokenType)
	}

	return claims, nil
}

// ValidateAccess проверяет access-credential и возвращает его claims.
//
// Порядок проверок: подпись/форма/срок, затем запись об отзыве.
// Недоступность хранилища отзыва — fail-closed: непроверяемый credential
// отклоняется как отозванный, потому что пропустить его хуже, чем временно
// отказать легитимному клиенту.
func (s *Service) ValidateAccess(ctx context.Context, raw string) (*models.Claims, error) {
	const op = "service.token.ValidateAccess"

	claims, err := s.parseToken(raw, models.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		logctx.From(ctx).Error("revocation_lookup_failed_closed",
			slog.String("op", op),
			slog.String("token_fp", redact.Fingerprint(raw)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if revoked {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return claims, nil
}

// remainingTTL — остаток жизни credential'а; запись об отзыве живёт ровно
// столько же, чтобы хранилище не копило историю.
func remainingTTL(claims *models.Claims, now time.Time) time.Duration {
	return claims.ExpiresAt.Time.Sub(now)
}
