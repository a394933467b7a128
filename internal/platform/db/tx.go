package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// MaxAttempts bounds how often WithTx reruns fn after a serialization failure.
const MaxAttempts = 3

// IsSerializationFailure reports whether err is a PostgreSQL serialization
// failure or deadlock, both of which succeed when the transaction is retried.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}

// WithTx executes fn within a RepeatableRead transaction. When fn or the
// commit fails with a serialization failure the whole transaction is rerun,
// up to MaxAttempts times, so fn must not have side effects outside tx.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = runTx(ctx, pool, fn)
		if err == nil || !IsSerializationFailure(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("platform/db: gave up after %d attempts: %w", MaxAttempts, err)
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithSnapshot executes fn inside a read-only RepeatableRead transaction so
// every query sees the same committed state. The transaction is always rolled back.
func WithSnapshot(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("platform/db: begin snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	return fn(tx)
}
