package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}

type uowKey struct{}

var (
	txKey         = ctxKey{}
	unitOfWorkKey = uowKey{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok && tx != nil
}

// Hook is a callback deferred until the enclosing unit of work commits.
type Hook func(ctx context.Context)

// UnitOfWork collects hooks registered while a transaction is open. Commit
// hooks run in registration order after a successful commit and are dropped
// on rollback. Rollback hooks run in reverse order on rollback only.
type UnitOfWork struct {
	mu        sync.Mutex
	hooks     []Hook
	rollbacks []func()
	finished  bool
}

// NewUnitOfWork returns an open unit of work.
func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{}
}

// AfterCommit queues fn and reports whether it was queued. A finished unit
// of work accepts no more hooks.
func (u *UnitOfWork) AfterCommit(fn Hook) bool {
	if fn == nil {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return false
	}
	u.hooks = append(u.hooks, fn)
	return true
}

// OnRollback queues fn to undo in-memory state if the unit of work rolls
// back, and reports whether it was queued.
func (u *UnitOfWork) OnRollback(fn func()) bool {
	if fn == nil {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return false
	}
	u.rollbacks = append(u.rollbacks, fn)
	return true
}

// Pending returns the number of queued hooks.
func (u *UnitOfWork) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.hooks)
}

// Committed runs the queued hooks with ctx and closes the unit of work.
func (u *UnitOfWork) Committed(ctx context.Context) {
	u.mu.Lock()
	if u.finished {
		u.mu.Unlock()
		return
	}
	u.finished = true
	hooks := u.hooks
	u.hooks = nil
	u.rollbacks = nil
	u.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx)
	}
}

// RolledBack discards the commit hooks, runs the rollback hooks and closes
// the unit of work. It does nothing once the unit of work has finished.
func (u *UnitOfWork) RolledBack() {
	u.mu.Lock()
	if u.finished {
		u.mu.Unlock()
		return
	}
	u.finished = true
	rollbacks := u.rollbacks
	u.hooks = nil
	u.rollbacks = nil
	u.mu.Unlock()

	for i := len(rollbacks) - 1; i >= 0; i-- {
		rollbacks[i]()
	}
}

// WithUnitOfWork attaches u to ctx.
func WithUnitOfWork(ctx context.Context, u *UnitOfWork) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, unitOfWorkKey, u)
}

// UnitOfWorkFrom extracts the unit of work from ctx if present.
func UnitOfWorkFrom(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(unitOfWorkKey).(*UnitOfWork)
	return u, ok && u != nil
}

// Detached returns ctx stripped of its transaction and unit of work. Writes
// made with it commit on their own and hooks registered with it run at once.
func Detached(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, txKey, (*sql.Tx)(nil))
	return context.WithValue(ctx, unitOfWorkKey, (*UnitOfWork)(nil))
}

// AfterCommit defers fn to the commit of ctx's unit of work. Without an open
// unit of work there is nothing to wait for and fn runs immediately.
func AfterCommit(ctx context.Context, fn Hook) {
	if fn == nil {
		return
	}
	if u, ok := UnitOfWorkFrom(ctx); ok && u.AfterCommit(fn) {
		return
	}
	fn(ctx)
}

// OnRollback registers fn with ctx's open unit of work. Outside one there is
// nothing to roll back and fn is dropped.
func OnRollback(ctx context.Context, fn func()) {
	if u, ok := UnitOfWorkFrom(ctx); ok {
		u.OnRollback(fn)
	}
}
