package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	logctx "github.com/mt-platform/admission-service/internal/pkg/log"
	"github.com/mt-platform/admission-service/internal/storage"
)

// RetryOptions — параметры одной логической транзакционной операции.
type RetryOptions struct {
	// MaxAttempts — максимум вызовов операции, включая первый.
	MaxAttempts int
	// BaseDelay — базовая задержка; перед повтором ждём BaseDelay × номер
	// неудавшейся попытки.
	BaseDelay time.Duration
	// Isolation — уровень изоляции транзакции.
	Isolation pgx.TxIsoLevel
}

// DefaultRetryOptions — значения по умолчанию для мутаций хранилища.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		Isolation:   pgx.ReadCommitted,
	}
}

// txBeginner — минимальный контракт пула; нужен для подмены в тестах.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Coordinator оборачивает операцию с хранилищем в транзакцию с ограниченным,
// классифицированным ретраем.
//
// Контракт для fn: операция должна быть безопасна для повторного вызова
// «с нуля» — каждая попытка выполняется в свежей транзакции, частичных
// побочных эффектов между попытками не предполагается. Повторы строго
// последовательны; отмена контекста прерывает дальнейшие попытки, но не
// откатывает уже закоммиченные.
type Coordinator struct {
	db   txBeginner
	opts RetryOptions
}

// NewCoordinator создаёт координатор поверх пула соединений.
func NewCoordinator(db txBeginner, opts RetryOptions) *Coordinator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultRetryOptions().MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultRetryOptions().BaseDelay
	}

	return &Coordinator{db: db, opts: opts}
}

// Run выполняет fn внутри транзакции с запрошенной изоляцией.
// Retryable-ошибки (потеря соединения, таймаут стейтмента, конфликт
// сериализации/блокировки) повторяются с линейно растущей задержкой;
// fatal-ошибки (нарушение ограничений, not-found, валидация) пробрасываются
// сразу. При исчерпании попыток последняя ошибка возвращается обёрнутой
// в ErrRetriesExhausted с числом сделанных попыток.
func (c *Coordinator) Run(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	const op = "storage.postgres.Coordinator.Run"

	lg := logctx.From(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.opts.BaseDelay * time.Duration(attempt-1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		err := c.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return fmt.Errorf("%s: %w", op, err)
		}

		lg.Warn("tx_retryable_failure",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
	}

	lg.Error("tx_retries_exhausted",
		slog.String("op", op),
		slog.Int("attempts", c.opts.MaxAttempts),
		slog.String("err", lastErr.Error()),
	)

	return fmt.Errorf("%s: %w (attempts=%d): %w", op, storage.ErrRetriesExhausted, c.opts.MaxAttempts, lastErr)
}

// runOnce — одна попытка: свежая транзакция, fn, commit.
// Паника откатывает транзакцию и пробрасывается дальше.
func (c *Coordinator) runOnce(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := c.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: c.opts.Isolation})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(ctx, tx)
	return err
}

// retryable классифицирует ошибку попытки.
// Отмена контекста всегда прерывает ретраи, какой бы ни была причина ошибки.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.QueryCanceled:
			return true
		}

		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
