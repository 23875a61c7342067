// store задаёт контракты общего key-value хранилища, в котором живёт
// всё межзапросное состояние admission-слоя: записи об отзыве credential'ов
// и счётчики rate-limit окон.
//
// Состояние намеренно вынесено из памяти процесса: при горизонтальном
// масштабировании гарантии (мгновенный глобальный отзыв, точные лимиты)
// сохраняются только если все инстансы видят одно хранилище. Все мутации —
// одиночные атомарные операции хранилища (conditional set, increment-with-TTL),
// никаких read-modify-write.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable — хранилище недоступно (сеть/таймаут). Политика обработки
// определяется вызывающим компонентом: проверка отзыва — fail-closed,
// rate-limit — fail-open.
var ErrUnavailable = errors.New("store unavailable")

// RevocationStore — разделяемый denylist отозванных token_id (jti).
// Записи самоистекают ровно в момент естественного истечения credential'а,
// поэтому история не растёт неограниченно.
type RevocationStore interface {
	// Revoke атомарно создаёт запись об отзыве tokenID с данным TTL.
	// Возвращает true, если запись создана этим вызовом, и false, если
	// tokenID уже был отозван ранее. Ровно один из конкурентных вызовов
	// для одного tokenID получает true.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	// IsRevoked сообщает, отозван ли tokenID.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RateCounterStore — разделяемые счётчики фиксированных окон.
type RateCounterStore interface {
	// IncrWindow атомарно инкрементирует счётчик ключа key. Первый инкремент
	// заводит окно с TTL=window; TTL никогда не сбрасывается посреди окна.
	// Возвращает значение счётчика после инкремента и остаток окна.
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Store объединяет оба контракта; реализуется одним Redis-клиентом.
type Store interface {
	RevocationStore
	RateCounterStore
	Close() error
}
