// Package stream consumes aiess payloads from a Kafka topic and feeds them
// into reconciliation.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/bnstats/internal/adapters/aiess"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/pkg/logger"
	"github.com/okian/bnstats/pkg/metrics"
)

const defaultPollTimeout = 5 * time.Second

// Config holds the Kafka consumer settings.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// Ingester applies decoded events.
type Ingester interface {
	Ingest(ctx context.Context, events []reconcile.Event) error
}

// Fetcher is the part of kafka.Reader the consumer needs.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithFetcher replaces the Kafka reader.
func WithFetcher(f Fetcher) Option {
	return func(c *Consumer) {
		if f != nil {
			c.fetcher = f
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// Consumer reads payloads off the topic one message at a time.
type Consumer struct {
	cfg      Config
	fetcher  Fetcher
	ingester Ingester
	logger   logger.Logger
}

// NewConsumer validates cfg and builds a consumer on a kafka.Reader.
func NewConsumer(cfg Config, ingester Ingester, opts ...Option) (*Consumer, error) {
	if ingester == nil {
		return nil, errors.New("ingester must not be nil")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	c := &Consumer{
		cfg:      cfg,
		ingester: ingester,
		logger:   logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher != nil {
		return c, nil
	}

	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}
	c.fetcher = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return c, nil
}

// Close shuts down the reader.
func (c *Consumer) Close() error {
	if c == nil || c.fetcher == nil {
		return nil
	}
	return c.fetcher.Close()
}

// Run consumes until ctx is cancelled or the reader is closed. Every message
// is committed after handling; payloads that fail are logged and counted.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "stream consumer started",
		logger.String("topic", c.cfg.Topic),
		logger.String("group", c.cfg.GroupID),
		logger.String("brokers", strings.Join(c.cfg.Brokers, ",")))
	defer c.logger.Info(ctx, "stream consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			c.logger.Error(ctx, "fetch failed", logger.Error(err))
			continue
		}

		result := "ok"
		if err := c.handle(ctx, msg); err != nil {
			result = "failed"
			c.logger.Error(ctx, "message failed",
				logger.Int64("offset", msg.Offset),
				logger.Int("partition", msg.Partition),
				logger.Error(err))
		}
		metrics.RecordStreamMessage(result)

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.fetcher.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.logger.Error(ctx, "commit failed", logger.Error(err))
			}
		}
		commitCancel()
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	events, err := aiess.Decode(msg.Value)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := c.ingester.Ingest(ctx, events); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}
