// storage задаёт контракт работы с реляционным хранилищем пользователей.
// Сам движок БД — внешний коллаборатор; пакет описывает только операции
// и классы ошибок, на которые опирается бизнес-логика.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mt-platform/admission-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email).
	ErrAlreadyExists = errors.New("already exists")
	// ErrRetriesExhausted — transient-ошибка хранилища не ушла за отведённое
	// число попыток транзакционного координатора. Транспорт: HTTP 503.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdatePassword заменяет хэш пароля пользователя.
	// Мутация выполняется транзакционно с ретраями на transient-ошибках.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	Close()
}
