// Package publisher streams appended explorer entries to downstream
// consumers. Entries stay queryable from the store whether or not a
// broker is configured; publication is strictly additive.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"

	explorermetrics "reservemint/internal/explorer/metrics"
	"reservemint/internal/explorer/models"
	"reservemint/internal/explorer/store"
)

// Sink delivers a batch of entries to the downstream system.
type Sink interface {
	Publish(ctx context.Context, entries []models.Entry) error
	Close()
}

// Kafka is a Sink producing one JSON record per entry, keyed by lock ID
// so all consumptions of a lock land on one partition in order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer to the given brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// Publish implements Sink.
func (k *Kafka) Publish(ctx context.Context, entries []models.Entry) error {
	records := make([]*kgo.Record, 0, len(entries))
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode explorer entry %s: %w", entry.PublicationCode, err)
		}
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(entry.LockID.String()),
			Value: payload,
		})
	}
	if err := k.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce explorer entries: %w", err)
	}
	return nil
}

// Close implements Sink.
func (k *Kafka) Close() {
	k.client.Close()
}

// Worker drains unpublished entries from the store into the sink. Failed
// batches stay unpublished and are retried with exponential backoff;
// duplicate delivery is acceptable, loss is not.
type Worker struct {
	entries   store.EntryStore
	sink      Sink
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *explorermetrics.Metrics
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithMetrics sets the metrics collector.
func WithMetrics(m *explorermetrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// NewWorker builds a publish worker.
func NewWorker(entries store.EntryStore, sink Sink, interval time.Duration, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		entries:   entries,
		sink:      sink,
		interval:  interval,
		batchSize: 100,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "explorer publication failed", "error", err)
			}
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	for {
		batch, err := w.entries.UnpublishedBatch(ctx, w.batchSize)
		if err != nil {
			return fmt.Errorf("load unpublished entries: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		publish := func() error { return w.sink.Publish(ctx, batch) }
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		if err := backoff.Retry(publish, policy); err != nil {
			return err
		}

		codes := make([]string, len(batch))
		for i, entry := range batch {
			codes[i] = entry.PublicationCode
		}
		if err := w.entries.MarkPublished(ctx, codes); err != nil {
			return fmt.Errorf("mark entries published: %w", err)
		}
		if w.metrics != nil {
			w.metrics.EntriesPublished.Add(float64(len(batch)))
		}
		w.logger.DebugContext(ctx, "explorer entries published", "count", len(batch))
	}
}
