package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shuttercraft/studiobook/libs/db"
	"github.com/shuttercraft/studiobook/libs/kafkax"
	otelx "github.com/shuttercraft/studiobook/libs/otel"
	"github.com/shuttercraft/studiobook/libs/runtime"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher relays outbox rows to Kafka. Delivery is at least once;
// consumers dedupe on the event_id header.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
	drainFor  time.Duration
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// DrainFor bounds the final flush after ctx is cancelled. Zero skips it.
	DrainFor  time.Duration
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		drainFor:  cfg.DrainFor,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.drainFor > 0 {
				_ = runtime.RunShutdown(p.drainFor, func(ctx context.Context) error {
					return p.drain(ctx, writer)
				})
			}
			return
		case <-ticker.C:
			if _, err := p.publishBatch(ctx, writer); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// drain publishes full batches until the backlog is empty or ctx ends.
func (p *Publisher) drain(ctx context.Context, writer MessageWriter) error {
	total := 0
	defer func() {
		if total > 0 {
			p.logger.Info("outbox drained on shutdown", "count", total)
		}
	}()
	for ctx.Err() == nil {
		n, err := p.publishBatch(ctx, writer)
		total += n
		if err != nil {
			p.logger.Error("outbox drain failed", "err", err)
			return err
		}
		if n < p.batchSize {
			return nil
		}
	}
	return ctx.Err()
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.ClaimBatch(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, BuildMessage(ctx, r))
		ids = append(ids, r.ID)
	}

	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		_ = tx.Rollback(ctx)
		if markErr := p.repo.MarkFailed(ctx, p.pool, ids, err); markErr != nil {
			p.logger.Error("outbox attempt not recorded", "err", markErr)
		}
		for _, r := range records {
			if r.Attempts+1 >= MaxAttempts {
				p.logger.Error("outbox event parked", "event_id", r.EventID, "event_type", r.EventType, "attempts", r.Attempts+1)
			}
		}
		return 0, err
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

// BuildMessage maps an outbox row to a Kafka message keyed by aggregate ID,
// so every event for one reservation lands on the same partition in order.
// The trace context captured at insert time is restored onto the headers.
func BuildMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	headers := kafkax.MetaHeaders(kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType})
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, headers),
	}
}
