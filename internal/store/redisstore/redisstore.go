// redisstore реализует контракты пакета store поверх Redis.
//
// Отзыв credential'ов — SET NX EX: условная запись решает гонку двух
// конкурентных ротаций одного refresh-токена на стороне хранилища.
// Счётчики окон — INCR + EXPIRE NX в одном TxPipeline: инкремент атомарен,
// TTL выставляется только при заведении окна.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mt-platform/admission-service/internal/store"
)

const (
	defaultRevokedPrefix = "adm:revoked:"
	defaultRatePrefix    = "adm:rate:"
)

// Store — Redis-реализация store.Store.
type Store struct {
	rdb           *redis.Client
	revokedPrefix string
	ratePrefix    string
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и проверяет соединение. Fail-fast на старте: без хранилища admission-слой
// не даёт своих гарантий.
func New(ctx context.Context, redisURL string) (*Store, error) {
	const op = "store.redisstore.New"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{
		rdb:           rdb,
		revokedPrefix: defaultRevokedPrefix,
		ratePrefix:    defaultRatePrefix,
	}, nil
}

// Revoke атомарно помечает tokenID отозванным на срок ttl.
// SET NX: возвращает true только тому вызову, который реально создал запись.
func (s *Store) Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	const op = "store.redisstore.Revoke"

	if ttl <= 0 {
		// Credential уже истёк естественным образом; запись не нужна,
		// но и активным токен считать нельзя.
		return false, nil
	}

	ok, err := s.rdb.SetNX(ctx, s.revokedPrefix+tokenID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, store.ErrUnavailable)
	}

	return ok, nil
}

// IsRevoked сообщает, есть ли запись об отзыве tokenID.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	const op = "store.redisstore.IsRevoked"

	n, err := s.rdb.Exists(ctx, s.revokedPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, store.ErrUnavailable)
	}

	return n > 0, nil
}

// IncrWindow инкрементирует счётчик окна и возвращает (count, остаток окна).
// EXPIRE NX выставляет TTL только если его ещё нет, поэтому окно никогда
// не продлевается запросами внутри него.
func (s *Store) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	const op = "store.redisstore.IncrWindow"

	k := s.ratePrefix + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	ttl := pipe.TTL(ctx, k)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, store.ErrUnavailable)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// Ключ без TTL не должен встречаться; не даём окну жить вечно.
		remaining = window
	}

	return incr.Val(), remaining, nil
}

// Close закрывает клиент Redis.
func (s *Store) Close() error { return s.rdb.Close() }

// Проверка на соответствие интерфейсу Store.
var _ store.Store = (*Store)(nil)
