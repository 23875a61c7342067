package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей платформы.
const (
	RoleUser   = "user"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Статусы учётной записи.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusBanned   = "banned"
)

// User — модель пользователя в системе.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	Status       string
	// AgeVerified — пользователь подтвердил возраст.
	AgeVerified bool
	// MatureAccessEnabled — пользователь явно включил доступ к mature-контенту.
	MatureAccessEnabled bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
