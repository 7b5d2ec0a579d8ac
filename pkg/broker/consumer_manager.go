package broker

import (
	"context"

	"github.com/sb-console/engine/pkg/concurrency"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

// ConsumerManager holds at most one active consumer for the lifetime of a
// session, bound to a single (queue name, queue kind) pair. It is the only
// component permitted to hold receive handles; every handle it returns must
// eventually come back through Complete, Abandon or DeadLetter.
type ConsumerManager struct {
	mu *concurrency.SmartMutex

	client   Client
	current  *model.Queue
	consumer Consumer
	handles  map[string]Handle
}

// NewConsumerManager builds a manager with no active queue; the first
// SwitchQueue call establishes one.
func NewConsumerManager(client Client) *ConsumerManager {
	return &ConsumerManager{
		mu:      concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "consumer-manager"}),
		client:  client,
		handles: make(map[string]Handle),
	}
}

// SwitchQueue disposes any existing consumer and records the new target.
// The replacement consumer is created lazily on the first Peek or Receive.
func (m *ConsumerManager) SwitchQueue(ctx context.Context, queue model.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumer != nil {
		_ = m.consumer.Close(ctx)
		m.consumer = nil
		m.handles = make(map[string]Handle)
	}
	q := queue
	m.current = &q
	return nil
}

// CurrentQueue returns the queue this manager is bound to, or nil if none.
func (m *ConsumerManager) CurrentQueue() *model.Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	q := *m.current
	return &q
}

// IsReady reports whether a live consumer connection currently exists.
func (m *ConsumerManager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumer != nil
}

func (m *ConsumerManager) ensureConsumer(ctx context.Context) (Consumer, error) {
	if m.current == nil {
		return nil, apperrors.ServiceBus("no queue selected; switch to a queue first", nil)
	}
	if m.consumer == nil {
		c, err := m.client.CreateConsumer(ctx, *m.current)
		if err != nil {
			return nil, err
		}
		m.consumer = c
	}
	return m.consumer, nil
}

// Peek performs a non-destructive read starting at fromSequence (or the
// earliest available message when nil).
func (m *ConsumerManager) Peek(ctx context.Context, maxCount int, fromSequence *int64) ([]model.Message, error) {
	m.mu.Lock()
	consumer, err := m.ensureConsumer(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return consumer.Peek(ctx, maxCount, fromSequence)
}

// Receive performs a destructive read under a broker-side lock. Every
// returned handle is tracked until it is settled.
func (m *ConsumerManager) Receive(ctx context.Context, maxCount int) ([]Handle, error) {
	m.mu.Lock()
	consumer, err := m.ensureConsumer(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	handles, err := consumer.Receive(ctx, maxCount)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for _, h := range handles {
		m.handles[h.Token()] = h
	}
	m.mu.Unlock()
	return handles, nil
}

// Complete settles h as successfully processed.
func (m *ConsumerManager) Complete(ctx context.Context, h Handle) error {
	return m.settle(ctx, h, func(c Consumer) error { return c.Complete(ctx, h) })
}

// Abandon releases h back to the queue for redelivery.
func (m *ConsumerManager) Abandon(ctx context.Context, h Handle) error {
	return m.settle(ctx, h, func(c Consumer) error { return c.Abandon(ctx, h) })
}

// DeadLetter moves h to the queue's dead-letter sibling.
func (m *ConsumerManager) DeadLetter(ctx context.Context, h Handle, reason, description string) error {
	return m.settle(ctx, h, func(c Consumer) error { return c.DeadLetter(ctx, h, reason, description) })
}

func (m *ConsumerManager) settle(ctx context.Context, h Handle, fn func(Consumer) error) error {
	m.mu.Lock()
	consumer := m.consumer
	_, tracked := m.handles[h.Token()]
	m.mu.Unlock()

	if consumer == nil {
		return apperrors.ServiceBus("no active consumer to settle against", nil)
	}
	if !tracked {
		return apperrors.HandleStale("handle not recognized by the active consumer")
	}

	err := fn(consumer)

	m.mu.Lock()
	delete(m.handles, h.Token())
	m.mu.Unlock()

	return err
}

// DisposeConsumer closes and forgets the active consumer, if any. It does
// not clear the current queue selection.
func (m *ConsumerManager) DisposeConsumer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumer == nil {
		return nil
	}
	err := m.consumer.Close(ctx)
	m.consumer = nil
	m.handles = make(map[string]Handle)
	return err
}

// RawConsumer exposes the active consumer for callers (the bulk engine)
// that need to drive peek/receive directly instead of through Receive
// above. Any handle obtained this way must be registered with TrackHandles
// before it can be settled through Complete, Abandon or DeadLetter.
func (m *ConsumerManager) RawConsumer(ctx context.Context) (Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureConsumer(ctx)
}

// TrackHandles registers handles obtained directly from RawConsumer's
// Receive so that Complete, Abandon and DeadLetter recognize them as
// settleable instead of rejecting them as stale.
func (m *ConsumerManager) TrackHandles(handles []Handle) {
	m.mu.Lock()
	for _, h := range handles {
		m.handles[h.Token()] = h
	}
	m.mu.Unlock()
}
