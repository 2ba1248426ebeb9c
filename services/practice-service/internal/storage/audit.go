package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

// execer is satisfied by the pool and by pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *Repository) InsertAuditEvent(ctx context.Context, evt model.AuditEvent) error {
	return insertAuditEvent(ctx, r.pool, evt)
}

func insertAuditEvent(ctx context.Context, q execer, evt model.AuditEvent) error {
	_, err := q.Exec(ctx, `
		INSERT INTO audit_events (practice_id, actor_id, actor_role, action, entity, entity_id, before, after, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, nullIfEmpty(evt.PracticeID), nullIfEmpty(evt.ActorID), nullIfEmpty(evt.ActorRole), evt.Action, evt.Entity,
		nullIfEmpty(evt.EntityID), jsonOrNil(evt.Before), jsonOrNil(evt.After), nullIfEmpty(evt.IPAddress), nullIfEmpty(evt.UserAgent))
	return err
}

// ListAuditEvents returns the newest events of a practice first.
func (r *Repository) ListAuditEvents(ctx context.Context, practiceID string, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(practice_id::text, ''), COALESCE(actor_id, ''), COALESCE(actor_role, ''), action, entity,
		       COALESCE(entity_id, ''), before, after, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM audit_events
		WHERE practice_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, practiceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.PracticeID, &e.ActorID, &e.ActorRole, &e.Action, &e.Entity,
			&e.EntityID, &before, &after, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Before, e.After = before, after
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertLoginEvent returns ErrNotFound when the practice does not exist.
func (r *Repository) InsertLoginEvent(ctx context.Context, evt model.LoginEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO login_events (practice_id, user_id, method, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.PracticeID, evt.UserID, evt.Method, nullIfEmpty(evt.IPAddress), nullIfEmpty(evt.UserAgent))
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

// isForeignKeyViolation reports SQLSTATE 23503.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func jsonOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
