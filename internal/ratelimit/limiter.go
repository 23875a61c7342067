package ratelimit

import (
	"context"
	"log/slog"
	"time"

	logctx "github.com/mt-platform/admission-service/internal/pkg/log"
	"github.com/mt-platform/admission-service/internal/store"
)

// Decision — результат проверки допуска.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter — сколько ждать до конца текущего окна (для 429).
	RetryAfter time.Duration
	// ResetAt — момент конца окна (для X-RateLimit-Reset).
	ResetAt time.Time
	// Degraded — счётчики были недоступны, решение принято fail-open.
	Degraded bool
}

// Limiter вычисляет решения о допуске по разделяемым счётчикам окон.
//
// Политика отказа — fail-open: при недоступности хранилища счётчиков запрос
// пропускается с warn-логом и метрикой деградации. Это противоположно
// fail-closed проверке отзыва credential'ов: лимитер защищает справедливость
// пропускной способности, а не целостность отзыва. Унаследованное поведение;
// для особо чувствительных маршрутов (выпуск credential'ов, платежи) стоит
// рассмотреть fail-closed override.
type Limiter struct {
	counters store.RateCounterStore
	table    *PolicyTable
}

// New создаёт Limiter поверх хранилища счётчиков и таблицы политик.
func New(counters store.RateCounterStore, table *PolicyTable) *Limiter {
	return &Limiter{counters: counters, table: table}
}

// Check инкрементирует счётчик (identityKey, routeKey) и возвращает решение.
// allowed = счётчик до инкремента < лимит; отклонённые попытки тоже входят
// в счёт окна.
func (l *Limiter) Check(ctx context.Context, identityKey, routeKey string) Decision {
	const op = "ratelimit.Check"

	p := l.table.Lookup(routeKey)
	now := time.Now().UTC()

	count, remaining, err := l.counters.IncrWindow(ctx, identityKey+"|"+routeKey, p.Window)
	if err != nil {
		logctx.From(ctx).Warn("rate_counter_unavailable_failing_open",
			slog.String("op", op),
			slog.String("route", routeKey),
			slog.String("err", err.Error()),
		)
		degradedTotal.Inc()

		return Decision{
			Allowed:    true,
			Limit:      p.MaxRequests,
			Remaining:  p.MaxRequests - 1,
			RetryAfter: p.Window,
			ResetAt:    now.Add(p.Window),
			Degraded:   true,
		}
	}

	left := p.MaxRequests - int(count)
	if left < 0 {
		left = 0
	}

	d := Decision{
		Allowed:    count <= int64(p.MaxRequests),
		Limit:      p.MaxRequests,
		Remaining:  left,
		RetryAfter: remaining,
		ResetAt:    now.Add(remaining),
	}

	if !d.Allowed {
		rejectedTotal.WithLabelValues(routeKey).Inc()
	}

	return d
}
