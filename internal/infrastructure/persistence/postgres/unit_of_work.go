package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haleralex/jobboard/internal/application/ports"
)

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork открывает транзакцию на pool и передаёт её репозиториям
// через context.
//
// Уровень изоляции READ COMMITTED: гонку двух доставок одного события
// разрешает unique constraint, а не изоляция.
type UnitOfWork struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewUnitOfWork создаёт UnitOfWork с READ COMMITTED.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// Execute выполняет fn в транзакции: nil - COMMIT, ошибка или panic - ROLLBACK.
// Если ctx уже несёт транзакцию, fn работает в ней.
func (u *UnitOfWork) Execute(ctx context.Context, fn func(context.Context) error) error {
	if hasTx(ctx) {
		return fn(ctx)
	}

	tx, err := u.pool.BeginTx(ctx, u.opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Rollback должен пройти и после отмены ctx (shutdown consumer'а)
	rollbackCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(rollbackCtx)
			panic(r)
		}
	}()

	if err := fn(injectTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(rollbackCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
