package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"aircx/internal/types"
)

// KafkaConfig captures the consumer settings. Brokers, Topic and GroupID are
// required.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// kafkaReader is the part of *kafka.Reader the source uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes sample sets from a topic. Messages are committed after
// the handler returns, whether it succeeded or not: a sample that cannot be
// stored is not retried. Partitioning by equipment ID (the message key) keeps
// each unit's samples in order.
type KafkaSource struct {
	cfg    KafkaConfig
	reader kafkaReader
	logger *slog.Logger
	poll   time.Duration
}

// Compile-time assertion that KafkaSource implements Source.
var _ Source = (*KafkaSource)(nil)

// NewKafkaSource builds a consumer-group reader.
func NewKafkaSource(cfg KafkaConfig, logger *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, types.NewAppError(types.ErrCodeConfigInvalidSource, "at least one kafka broker is required", nil)
	}
	if strings.TrimSpace(cfg.Topic) == "" || strings.TrimSpace(cfg.GroupID) == "" {
		return nil, types.NewAppError(types.ErrCodeConfigInvalidSource, "kafka topic and consumer group are required", nil)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaSource(cfg, reader, logger), nil
}

func newKafkaSource(cfg KafkaConfig, reader kafkaReader, logger *slog.Logger) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &KafkaSource{cfg: cfg, reader: reader, logger: logger, poll: poll}
}

// Close shuts down the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// Run blocks until ctx is cancelled or the reader is closed.
func (s *KafkaSource) Run(ctx context.Context, handle Handler) error {
	s.logger.Info("kafka source started",
		"topic", s.cfg.Topic,
		"group", s.cfg.GroupID,
		"brokers", strings.Join(s.cfg.Brokers, ","),
	)
	defer s.logger.Info("kafka source stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.poll)
		msg, err := s.reader.FetchMessage(fetchCtx)
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
			s.logger.Error("kafka fetch failed", "error", err)
			continue
		}

		set, err := Decode(msg.Value, string(msg.Key))
		if err != nil {
			s.logger.Warn("malformed sample skipped",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		} else if err := handle(ctx, set); err != nil {
			s.logger.Error("sample handling failed",
				"equipment_id", set.EquipmentID,
				"offset", msg.Offset,
				"error", err,
			)
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, s.poll)
		if err := s.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				s.logger.Error("kafka commit failed", "offset", msg.Offset, "error", err)
			}
		}
		commitCancel()
	}
}
