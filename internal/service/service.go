// service содержит бизнес-логику admission-слоя: выпуск, валидацию,
// ротацию и отзыв credential'ов, а также операции над учётными записями,
// которые этот слой обслуживает (регистрация, логин, смена пароля).
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданные хранилища (storage.UserStorage, store.RevocationStore)
//     потокобезопасны.
//   - Всё межзапросное состояние (записи об отзыве) живёт во внешнем
//     хранилище; память процесса не используется, чтобы отзыв был виден
//     всем инстансам сразу.
//   - Ошибки возвращаются как sentinel-значения и далее маппятся HTTP-слоем
//     на коды ответов (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/mt-platform/admission-service/internal/config"
	"github.com/mt-platform/admission-service/internal/storage"
	"github.com/mt-platform/admission-service/internal/store"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь
	// не найден. Транспорт: HTTP 401, код invalid_credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedToken — credential не декодируется, подпись не сходится
	// или claims не проходят проверку формы/iss/aud.
	// Транспорт: HTTP 401, код token_malformed.
	ErrMalformedToken = errors.New("malformed token")

	// ErrTokenExpired — срок действия credential'а истёк.
	// Транспорт: HTTP 401, код token_expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrWrongTokenType — предъявлен credential не того вида
	// (refresh вместо access или наоборот).
	// Транспорт: HTTP 401, код wrong_token_type.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrTokenRevoked — credential отозван (ротация/logout/смена пароля)
	// и недействителен независимо от срока. Сюда же сводится недоступность
	// хранилища отзыва при проверке: непроверяемый credential не пропускается.
	// Транспорт: HTTP 401, код token_revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrUserInactive — учётная запись деактивирована.
	// Транспорт: HTTP 401, код user_inactive.
	ErrUserInactive = errors.New("user inactive")

	// ErrUserBanned — учётная запись забанена.
	// Транспорт: HTTP 401, код user_banned.
	ErrUserBanned = errors.New("user banned")

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	// Транспорт: HTTP 409, код already_exists.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: HTTP 400, код invalid_argument.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности.
	// Транспорт: HTTP 400, код invalid_argument.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: HTTP 400, код invalid_argument.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику admission-слоя.
type Service struct {
	users       storage.UserStorage
	revocations store.RevocationStore
	cfg         config.AuthConfig
}

// New создаёт новый экземпляр Service.
func New(users storage.UserStorage, revocations store.RevocationStore, cfg config.AuthConfig) *Service {
	return &Service{
		users:       users,
		revocations: revocations,
		cfg:         cfg,
	}
}
