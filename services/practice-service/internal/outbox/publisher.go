package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/practicepulse/libs/db"
	"github.com/md-rashed-zaman/practicepulse/libs/kafkax"
	otelx "github.com/md-rashed-zaman/practicepulse/libs/otel"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Recorder receives publish and prune counts.
type Recorder interface {
	OutboxBatch(n int, err error)
	OutboxPruned(n int64)
}

type nopRecorder struct{}

func (nopRecorder) OutboxBatch(int, error) {}
func (nopRecorder) OutboxPruned(int64)     {}

const (
	maxBackoff = time.Minute
	pruneEvery = time.Hour
)

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// Published rows older than Retention are deleted. Zero keeps them.
	Retention time.Duration
	Metrics   Recorder
}

// Publisher drains outbox_events to Kafka. Rows are locked with SKIP LOCKED,
// so several replicas can run one each.
type Publisher struct {
	pool    *db.Pool
	repo    *Repository
	logger  *slog.Logger
	brokers []string
	cfg     PublisherConfig
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	return &Publisher{
		pool:    pool,
		repo:    repo,
		logger:  logger.With("component", "outbox"),
		brokers: kafkax.SplitBrokers(cfg.Brokers),
		cfg:     cfg,
	}
}

// Run polls the outbox until ctx is cancelled. Without brokers it returns
// immediately and events stay queued in the table.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer func() { _ = writer.Close() }()

	timer := time.NewTimer(p.cfg.PollEvery)
	defer timer.Stop()
	var (
		failures  int
		lastPrune time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := p.publishBatch(ctx, writer)
		if err != nil {
			failures++
			p.logger.Error("outbox publish failed", "err", err, "consecutive_failures", failures)
		} else {
			failures = 0
		}
		if p.cfg.Retention > 0 && time.Since(lastPrune) >= pruneEvery {
			p.prune(ctx)
			lastPrune = time.Now()
		}
		timer.Reset(nextDelay(p.cfg.PollEvery, failures, n == p.cfg.BatchSize))
	}
}

// nextDelay polls again at once after a full batch and doubles the wait
// after each consecutive failure, up to maxBackoff.
func nextDelay(base time.Duration, failures int, full bool) time.Duration {
	if failures == 0 {
		if full {
			return 0
		}
		return base
	}
	d := base
	for i := 1; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.cfg.BatchSize)
	if err != nil || len(records) == 0 {
		return 0, err
	}
	err = publish(ctx, writer, records)
	p.cfg.Metrics.OutboxBatch(len(records), err)
	if err != nil {
		return 0, err
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	p.logger.Debug("outbox batch published", "count", len(records))
	return len(records), nil
}

func (p *Publisher) prune(ctx context.Context) {
	n, err := p.repo.PrunePublished(ctx, p.pool, time.Now().Add(-p.cfg.Retention))
	if err != nil {
		p.logger.Warn("outbox prune failed", "err", err)
		return
	}
	p.cfg.Metrics.OutboxPruned(n)
	if n > 0 {
		p.logger.Info("outbox pruned", "rows", n)
	}
}

func publish(ctx context.Context, writer MessageWriter, records []Record) error {
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = toMessage(ctx, r)
	}
	return writer.WriteMessages(ctx, msgs...)
}

// toMessage keys by aggregate id so events of one practice stay ordered.
func toMessage(ctx context.Context, r Record) kafka.Message {
	meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: meta.Headers(otelx.RestoreTrace(ctx, r.Traceparent, r.Tracestate)),
		Time:    r.CreatedAt,
	}
}
