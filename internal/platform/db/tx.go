package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const TxKey contextKey = "db_tx"

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx stores tx in the context so repositories join it.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// TxFromContext retrieves the transaction started by InTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// InTx runs fn inside a transaction. It joins a transaction already in the
// context, otherwise it begins one on the tenant connection (keeping its
// search_path) or on fallback.
func InTx(ctx context.Context, fallback beginner, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	var b beginner = fallback
	if conn := ConnFromContext(ctx); conn != nil {
		b = conn
	}
	if b == nil {
		return fmt.Errorf("begin transaction: no connection")
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
