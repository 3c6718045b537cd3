package uow

import (
	"context"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// TxFunc opens a transaction, hands fn the repositories bound to it and
// commits when fn returns nil.
type TxFunc[T any] func(ctx context.Context, fn func(ctx context.Context, tx T) error) error

// UoW represents a unit of work over repositories of type T.
type UoW[T any] struct {
	run TxFunc[T]
}

func New[T any](run TxFunc[T]) *UoW[T] {
	return &UoW[T]{run: run}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW[T]) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx T, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.run(ctx, func(ctx context.Context, tx T) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
