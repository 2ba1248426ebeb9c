package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Pool struct {
	*pgxpool.Pool
}

// PoolOptions tunes the pgx pool. Zero values keep the defaults in Open.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
	// Statements slower than SlowQuery are logged to Logger at warn.
	SlowQuery time.Duration
	Logger    *slog.Logger
}

// Open parses databaseURL, applies opts and pings before returning.
func Open(ctx context.Context, databaseURL string, opts PoolOptions) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = orDefault(opts.MaxConns, 10)
	cfg.MinConns = orDefault(opts.MinConns, 1)
	cfg.MaxConnLifetime = orDefault(opts.MaxConnLifetime, 30*time.Minute)
	cfg.MaxConnIdleTime = orDefault(opts.MaxConnIdleTime, 5*time.Minute)
	if opts.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}
	if opts.SlowQuery > 0 && opts.Logger != nil {
		cfg.ConnConfig.Tracer = &slowQueryTracer{threshold: opts.SlowQuery, logger: opts.Logger}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// slowQueryTracer implements pgx.QueryTracer.
type slowQueryTracer struct {
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func (t *slowQueryTracer) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.clock(), sql: data.SQL})
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := t.clock().Sub(start.at)
	if elapsed < t.threshold {
		return
	}
	t.logger.WarnContext(ctx, "slow query",
		"duration_ms", elapsed.Milliseconds(),
		"sql", start.sql,
		"rows", data.CommandTag.RowsAffected(),
		"err", data.Err,
	)
}
