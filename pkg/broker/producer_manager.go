package broker

import (
	"context"
	"time"

	"github.com/sb-console/engine/pkg/concurrency"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/logger"
	"github.com/sb-console/engine/pkg/model"
)

// OperationStats summarizes the outcome of a batch send.
type OperationStats struct {
	Total      int
	Successful int
	Failed     int
}

// ProducerManagerConfig tunes chunking and pacing for large sends. The zero
// value is not usable; build one via DefaultProducerManagerConfig or from
// config.RuntimeConfig.
type ProducerManagerConfig struct {
	// BulkChunkSize is the batch size used when chunking a send. Runs over
	// PacingThreshold clamp it to 500 regardless of this setting.
	BulkChunkSize int
	// PacingThreshold is the message-count above which the manager pauses
	// periodically to avoid overwhelming the transport.
	PacingThreshold int
	// PacingDelay is the pause taken after every third batch once
	// PacingThreshold is exceeded.
	PacingDelay time.Duration
}

// DefaultProducerManagerConfig matches the console's default runtime
// tuning: 2048-message chunks, pacing above 500 messages.
func DefaultProducerManagerConfig() ProducerManagerConfig {
	return ProducerManagerConfig{BulkChunkSize: 2048, PacingThreshold: 500, PacingDelay: 25 * time.Millisecond}
}

// ProducerManager keeps one Producer per queue, created on first use and
// retained until disposed.
type ProducerManager struct {
	mu *concurrency.SmartMutex

	client    Client
	cfg       ProducerManagerConfig
	producers map[string]Producer
}

// NewProducerManager builds a manager bound to client with the given
// chunking/pacing configuration.
func NewProducerManager(client Client, cfg ProducerManagerConfig) *ProducerManager {
	if cfg.BulkChunkSize <= 0 {
		cfg = DefaultProducerManagerConfig()
	}
	return &ProducerManager{
		mu:        concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "producer-manager"}),
		client:    client,
		cfg:       cfg,
		producers: make(map[string]Producer),
	}
}

func (m *ProducerManager) getOrCreate(ctx context.Context, queueName string) (Producer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.producers[queueName]; ok {
		return p, nil
	}
	p, err := m.client.CreateProducer(ctx, queueName)
	if err != nil {
		return nil, apperrors.ServiceBus("failed to create producer for queue "+queueName, err)
	}
	m.producers[queueName] = p
	return p, nil
}

// SendOne sends a single message to queue, lazily creating its producer.
func (m *ProducerManager) SendOne(ctx context.Context, queueName string, msg model.Message) error {
	p, err := m.getOrCreate(ctx, queueName)
	if err != nil {
		return err
	}
	if err := p.Send(ctx, msg); err != nil {
		return apperrors.ServiceBus("failed to send message to queue "+queueName, err)
	}
	return nil
}

// SendMany chunks messages into batches of cfg.BulkChunkSize and sends them
// in order, pausing periodically for large runs.
func (m *ProducerManager) SendMany(ctx context.Context, queueName string, messages []model.Message) (OperationStats, error) {
	stats := OperationStats{Total: len(messages)}
	if len(messages) == 0 {
		return stats, nil
	}

	p, err := m.getOrCreate(ctx, queueName)
	if err != nil {
		return stats, err
	}

	batchSize := m.cfg.BulkChunkSize
	if len(messages) > m.cfg.PacingThreshold {
		batchSize = min(batchSize, 500)
	}

	for batchIndex, batch := range chunkMessages(messages, batchSize) {
		if err := p.SendBatch(ctx, batch); err != nil {
			stats.Failed += len(batch)
			logger.L().ErrorContext(ctx, "failed to send message batch", "queue", queueName, "batch_size", len(batch), "error", err)
		} else {
			stats.Successful += len(batch)
		}

		if len(messages) > m.cfg.PacingThreshold && batchIndex%3 == 2 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(m.cfg.PacingDelay):
			}
		}
	}
	return stats, nil
}

// SendManyRepeated sends messages n times in sequence (logical n× replication).
func (m *ProducerManager) SendManyRepeated(ctx context.Context, queueName string, messages []model.Message, n int) (OperationStats, error) {
	if len(messages) == 0 || n <= 0 {
		return OperationStats{Total: len(messages) * n}, nil
	}
	repeated := make([]model.Message, 0, len(messages)*n)
	for i := 0; i < n; i++ {
		repeated = append(repeated, messages...)
	}
	return m.SendMany(ctx, queueName, repeated)
}

// SendRaw sends pre-encoded message bodies, used by bulk-move pipelines.
// It refuses any queue name ending in the DLQ suffix: DLQ ingress must go
// through the settle-path DeadLetter on a received handle, never a direct
// send.
func (m *ProducerManager) SendRaw(ctx context.Context, queueName string, bodies [][]byte, n int) (OperationStats, error) {
	total := len(bodies) * n
	stats := OperationStats{Total: total}

	if model.IsDeadLetterEntityPath(queueName) {
		logger.L().ErrorContext(ctx, "refusing to send directly to a dead-letter queue", "queue", queueName)
		stats.Failed = total
		return stats, apperrors.InvalidInput("cannot send directly to a dead-letter queue; use dead-letter on a received handle instead")
	}
	if total == 0 {
		return stats, nil
	}

	p, err := m.getOrCreate(ctx, queueName)
	if err != nil {
		return stats, err
	}

	messages := make([]model.Message, 0, total)
	for i := 0; i < n; i++ {
		for _, body := range bodies {
			messages = append(messages, model.Message{Body: body})
		}
	}

	batchSize := m.cfg.BulkChunkSize
	if total > m.cfg.PacingThreshold {
		batchSize = min(batchSize, 500)
	}

	for batchIndex, batch := range chunkMessages(messages, batchSize) {
		if err := p.SendBatch(ctx, batch); err != nil {
			stats.Failed += len(batch)
			logger.L().ErrorContext(ctx, "failed to send raw message batch", "queue", queueName, "batch_size", len(batch), "error", err)
		} else {
			stats.Successful += len(batch)
		}

		if total > m.cfg.PacingThreshold && batchIndex%3 == 2 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(m.cfg.PacingDelay):
			}
		}
	}
	return stats, nil
}

// Dispose closes and forgets the producer for queueName, if any.
func (m *ProducerManager) Dispose(ctx context.Context, queueName string) error {
	m.mu.Lock()
	p, ok := m.producers[queueName]
	delete(m.producers, queueName)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := p.Close(ctx); err != nil {
		return apperrors.Internal("failed to dispose producer for queue "+queueName, err)
	}
	return nil
}

// DisposeAll closes every producer, collecting failures rather than
// stopping at the first one.
func (m *ProducerManager) DisposeAll(ctx context.Context) error {
	m.mu.Lock()
	producers := m.producers
	m.producers = make(map[string]Producer)
	m.mu.Unlock()

	var failures []string
	for queueName, p := range producers {
		if err := p.Close(ctx); err != nil {
			failures = append(failures, queueName)
		}
	}
	if len(failures) > 0 {
		return apperrors.Internal("failed to dispose some producers", nil)
	}
	return nil
}

// ResetClient disposes every producer and rebinds the manager to a new
// broker client, used after a connection reset.
func (m *ProducerManager) ResetClient(ctx context.Context, newClient Client) error {
	if err := m.DisposeAll(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.client = newClient
	m.mu.Unlock()
	return nil
}

// HasProducer reports whether a producer exists for queueName.
func (m *ProducerManager) HasProducer(queueName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.producers[queueName]
	return ok
}

// ProducerCount returns the number of live producers.
func (m *ProducerManager) ProducerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.producers)
}

func chunkMessages(messages []model.Message, size int) [][]model.Message {
	if size <= 0 {
		size = len(messages)
	}
	var chunks [][]model.Message
	for i := 0; i < len(messages); i += size {
		end := i + size
		if end > len(messages) {
			end = len(messages)
		}
		chunks = append(chunks, messages[i:end])
	}
	return chunks
}
