// Package storage is the Postgres persistence of the practice service.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/practicepulse/libs/db"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateProviderEvent = errors.New("duplicate provider event")
	ErrLastPractice           = errors.New("owner has no other live practice")
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// inTx runs fn in a transaction and commits when fn returns nil.
func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) insertEvents(ctx context.Context, tx pgx.Tx, events []outbox.Event) error {
	for _, evt := range events {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
