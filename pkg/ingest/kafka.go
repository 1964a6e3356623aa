package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka consumer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// maxBackoff caps the pause between retries of a failing broker or store.
const maxBackoff = 30 * time.Second

// RunKafka consumes cfg.Topic until ctx ends. The message key, when set,
// is the default source. An offset is committed once its samples are
// stored or the message turned out undecodable; store failures are retried
// and leave the offset uncommitted if ctx ends first.
func RunKafka(ctx context.Context, cfg KafkaConfig, sink *Sink) error {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("kafka brokers and topic are required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "jigsaw-map"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: []string{cfg.Topic},
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("kafka reader close: %v", err)
		}
	}()
	log.Printf("Kafka consumer started on %s", cfg.Topic)

	backoff := time.Second
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Printf("kafka fetch: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		where := fmt.Sprintf("kafka message %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		handled := handleUntilSettled(ctx, where, time.Second, func() error {
			return sink.Handle(ctx, "kafka", msg.Value, string(msg.Key))
		})
		if !handled {
			return nil
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("kafka commit: %v", err)
		}
	}
}

// handleUntilSettled runs handle until it succeeds or fails with ErrDecode,
// doubling the pause between attempts from backoff up to maxBackoff. It
// reports false when ctx ends before that.
func handleUntilSettled(ctx context.Context, where string, backoff time.Duration, handle func() error) bool {
	for {
		err := handle()
		if err == nil {
			return true
		}
		log.Printf("%s: %v", where, err)
		if errors.Is(err, ErrDecode) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
