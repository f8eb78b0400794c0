// Package kafka queues fine-tune tasks through Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/pkg/log"
	"github.com/Sandro385/expert-tune/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor runs one fine-tune task. The consumer does not depend on the concrete pipeline.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.FineTuneTask) error
}

// Producer submits fine-tune tasks to the configured topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Producer.
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Infof("Kafka producer writing to topic '%s'", cfg.Topic)
	return &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// Submit publishes task keyed by its job id.
func (p *Producer) Submit(ctx context.Context, task tasks.FineTuneTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.JobID),
		Value: payload,
	})
}

// CancelRunning is unsupported: a running task belongs to a worker process.
func (p *Producer) CancelRunning(string) error {
	return apperr.Invalid("job", "running jobs cannot be canceled in kafka mode")
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer reads tasks until ctx is done and hands each to processor.
// Offsets are committed whether or not processing succeeded: a failed training
// run is recorded on its job and is never retried.
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("failed to close kafka reader: %v", err)
		}
	}()

	log.Infof("Kafka consumer started, listening on topic '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Error("failed to fetch kafka message", err)
			return err
		}

		var task tasks.FineTuneTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("malformed kafka message at offset %d: %v, value: %s", m.Offset, err, string(m.Value))
		} else {
			log.Infof("processing fine-tune job %s for %s/%s", task.JobID, task.Username, task.Domain)
			if err := processor.Process(ctx, task); err != nil {
				log.Errorf("fine-tune job %s failed: %v", task.JobID, err)
			} else {
				log.Infof("fine-tune job %s finished", task.JobID)
			}
		}

		if err := r.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			log.Errorf("failed to commit kafka offset %d: %v", m.Offset, err)
		}
	}
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
