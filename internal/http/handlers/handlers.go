// handlers реализует REST-эндпойнты admission-слоя: выпуск, ротацию
// и отзыв credential'ов. Доменные CRUD-ресурсы платформы живут в своих
// сервисах; здесь только то, что обслуживает сессии.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/mt-platform/admission-service/internal/models"
)

// AuthService — контракт бизнес-логики, который нужен хендлерам.
// Реализуется service.Service.
type AuthService interface {
	RegisterUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error)
	LoginUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error)
	Rotate(ctx context.Context, refreshRaw string) (*models.TokenPair, uuid.UUID, error)
	Logout(ctx context.Context, access *models.Claims, refreshRaw string) error
	ChangePassword(ctx context.Context, access *models.Claims, refreshRaw, current, next string) error
}

// Handlers агрегирует зависимости эндпойнтов.
type Handlers struct {
	Auth AuthService
}

func New(auth AuthService) *Handlers {
	return &Handlers{Auth: auth}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через httperr.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
