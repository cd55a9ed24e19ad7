// Package nats implements the JobBus port over core NATS: two subjects with
// JSON envelopes and queue-group consumers. Messages are not persisted: a
// job published while no subscriber is connected is not delivered, and a
// delivered job is not redelivered.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mkravchenko/groundedqa/internal/core/domain"
	"github.com/mkravchenko/groundedqa/internal/infrastructure/resilience"
)

const (
	ingestQueueGroup = "ingestion-workers"
	queryQueueGroup  = "query-workers"
)

type Bus struct {
	conn          *nats.Conn
	ingestSubject string
	querySubject  string
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, ingestSubject, querySubject string) (*Bus, error) {
	return NewWithOptions(url, ingestSubject, querySubject, Options{})
}

func NewWithOptions(url, ingestSubject, querySubject string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("groundedqa"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:          conn,
		ingestSubject: ingestSubject,
		querySubject:  querySubject,
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishIngest(ctx context.Context, job domain.IngestJob) error {
	return b.publish(ctx, b.ingestSubject, job)
}

func (b *Bus) PublishQuery(ctx context.Context, job domain.QueryJob) error {
	return b.publish(ctx, b.querySubject, job)
}

func (b *Bus) publish(ctx context.Context, subject string, envelope any) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", subject, err)
	}

	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}
	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTransientIfNeeded(err)
}

// SubscribeIngest consumes ingest jobs in a queue group. Handler errors are
// logged, never redelivered: the document row already carries the failure.
func (b *Bus) SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestJob) error) error {
	return subscribe(ctx, b, b.ingestSubject, ingestQueueGroup, handler)
}

func (b *Bus) SubscribeQuery(ctx context.Context, handler func(context.Context, domain.QueryJob) error) error {
	return subscribe(ctx, b, b.querySubject, queryQueueGroup, handler)
}

func subscribe[T any](ctx context.Context, b *Bus, subject, group string, handler func(context.Context, T) error) error {
	sub, err := b.conn.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var job T
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			b.logger.Error("dropping undecodable job envelope", "subject", subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, job); err != nil {
			b.logger.Error("job handler error", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
