package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "statusable/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// Runner executes fn inside a transactional boundary. The context passed to
// fn carries the unit of work (and, for SQL runners, the *sql.Tx).
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PostgresRunner opens a SQL transaction per call.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresRunner returns a runner bound to db. A zero timeout uses the default.
func NewPostgresRunner(db *sql.DB, timeout time.Duration) *PostgresRunner {
	return &PostgresRunner{db: db, timeout: timeout}
}

// RunInTx commits when fn returns nil and then fires the after-commit hooks
// with the caller's context. Any error rolls back and drops the hooks. A call
// made inside an existing unit of work joins it.
func (r *PostgresRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := UnitOfWorkFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	txCtx := ctx
	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(txCtx, nil)
	if err != nil {
		return err
	}
	uow := NewUnitOfWork()
	defer func() {
		_ = sqlTx.Rollback()
		uow.RolledBack()
	}()

	if err := fn(WithUnitOfWork(WithTx(txCtx, sqlTx), uow)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	uow.Committed(ctx)
	return nil
}

// InMemoryRunner provides unit-of-work semantics for in-memory stores, which
// apply writes immediately; only the hooks observe commit or rollback.
type InMemoryRunner struct{}

// NewInMemoryRunner returns an InMemoryRunner.
func NewInMemoryRunner() *InMemoryRunner {
	return &InMemoryRunner{}
}

func (r *InMemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := UnitOfWorkFrom(ctx); ok {
		return fn(ctx)
	}
	uow := NewUnitOfWork()
	if err := fn(WithUnitOfWork(ctx, uow)); err != nil {
		uow.RolledBack()
		return err
	}
	uow.Committed(ctx)
	return nil
}
