package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mt-platform/admission-service/internal/models"
	logctx "github.com/mt-platform/admission-service/internal/pkg/log"
	"github.com/mt-platform/admission-service/internal/pkg/redact"
	"github.com/mt-platform/admission-service/internal/storage"
)

// RegisterUser регистрирует нового пользователя и сразу выдаёт пару credential'ов.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.users.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := s.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(user.ID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// LoginUser выполняет вход по email+пароль и выдаёт пару credential'ов.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.users.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := checkUserStatus(user); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(user.ID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// Rotate обменивает refresh-credential на новую пару.
//
// Атомарный шаг — условная запись об отзыве старого jti: из двух конкурентных
// ротаций одного credential'а запись создаёт ровно одна, проигравшая
// наблюдает его уже отозванным. Повторное использование отозванного
// refresh-токена — сигнал кражи, пишется в лог на уровне Warn.
func (s *Service) Rotate(ctx context.Context, refreshRaw string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.Rotate"

	claims, err := s.parseToken(refreshRaw, models.KindRefresh)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	ttl := remainingTTL(claims, now)
	if ttl <= 0 {
		// Токен дожил до exp между parse и этой точкой: это истёкший
		// credential, а не повторное использование отозванного.
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	won, err := s.revocations.Revoke(ctx, claims.ID, ttl)
	if err != nil {
		// Без записи об отзыве ротация не состоялась; это сбой зависимости,
		// а не недействительный credential.
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !won {
		logctx.From(ctx).Warn("refresh_reuse_detected",
			slog.String("op", op),
			slog.String("subject", claims.Subject),
			slog.String("token_fp", redact.Fingerprint(refreshRaw)),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	userID, _ := uuid.Parse(claims.Subject) // формат проверен в parseToken

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := checkUserStatus(user); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(user.ID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// Logout отзывает оба credential'а текущей сессии.
// access уже проверен admission-пайплайном; refresh предъявляется телом
// запроса. «Уже отозван» не считается ошибкой: logout идемпотентен.
func (s *Service) Logout(ctx context.Context, access *models.Claims, refreshRaw string) error {
	const op = "service.auth.Logout"

	now := time.Now().UTC()

	if _, err := s.revocations.Revoke(ctx, access.ID, remainingTTL(access, now)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if refreshRaw != "" {
		refresh, err := s.parseToken(refreshRaw, models.KindRefresh)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if _, err := s.revocations.Revoke(ctx, refresh.ID, remainingTTL(refresh, now)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// ChangePassword меняет пароль и отзывает credential'ы предъявленной сессии.
// Смена пароля идёт через транзакционное хранилище (с ретраями на
// transient-ошибках); отзыв выполняется только после успешной записи.
func (s *Service) ChangePassword(ctx context.Context, access *models.Claims, refreshRaw, current, next string) error {
	const op = "service.auth.ChangePassword"

	userID, _ := uuid.Parse(access.Subject)

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, current) {
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := validatePassword(next); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := hashPassword(next)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return s.Logout(ctx, access, refreshRaw)
}

// Authenticate проверяет access-credential и возвращает claims вместе
// с пользователем. Статус учётной записи проверяется здесь же: отзыв токена
// не успевает за баном, поэтому бан действует на каждый запрос.
func (s *Service) Authenticate(ctx context.Context, raw string) (*models.Claims, *models.User, error) {
	const op = "service.auth.Authenticate"

	claims, err := s.ValidateAccess(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, _ := uuid.Parse(claims.Subject)

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := checkUserStatus(user); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return claims, user, nil
}

// checkUserStatus маппит статус учётной записи на ошибки admission-слоя.
func checkUserStatus(user *models.User) error {
	switch user.Status {
	case models.StatusBanned:
		return ErrUserBanned
	case models.StatusInactive:
		return ErrUserInactive
	default:
		return nil
	}
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// issueTokenPair выпускает новую пару access+refresh credential'ов.
func (s *Service) issueTokenPair(userID uuid.UUID) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	accessToken, accessClaims, err := s.issueToken(userID, models.KindAccess, s.cfg.AccessTokenTTL, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, _, err := s.issueToken(userID, models.KindRefresh, s.cfg.RefreshTokenTTL, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: accessClaims.ExpiresAt.Time,
	}, nil
}
