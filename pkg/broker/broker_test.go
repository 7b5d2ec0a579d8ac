package broker_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-console/engine/pkg/broker"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

// fakeConsumer and fakeProducer are in-memory stand-ins for a live broker
// connection, letting the manager logic be tested without a real namespace.

type fakeProducer struct {
	mu     sync.Mutex
	queue  string
	sent   []model.Message
	closed bool
	failAt int
}

func (p *fakeProducer) Send(_ context.Context, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProducer) SendBatch(_ context.Context, msgs []model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAt > 0 && len(p.sent)+len(msgs) > p.failAt {
		return apperrors.ServiceBus("simulated batch failure", nil)
	}
	p.sent = append(p.sent, msgs...)
	return nil
}

func (p *fakeProducer) Close(context.Context) error {
	p.closed = true
	return nil
}

type fakeConsumer struct {
	mu       sync.Mutex
	queue    model.Queue
	inbox    []model.Message
	closed   bool
	settled  map[string]string // token -> outcome
	nextTok  int
	raw      map[string]model.Message
	noTarget bool
}

func newFakeConsumer(queue model.Queue, inbox []model.Message) *fakeConsumer {
	return &fakeConsumer{queue: queue, inbox: inbox, settled: make(map[string]string), raw: make(map[string]model.Message)}
}

func (c *fakeConsumer) Peek(_ context.Context, maxCount int, fromSequence *int64) ([]model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Message
	for _, m := range c.inbox {
		if fromSequence != nil && m.Sequence < *fromSequence {
			continue
		}
		out = append(out, m)
		if len(out) >= maxCount {
			break
		}
	}
	return out, nil
}

func (c *fakeConsumer) Receive(_ context.Context, maxCount int) ([]broker.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := maxCount
	if n > len(c.inbox) {
		n = len(c.inbox)
	}
	batch := c.inbox[:n]
	c.inbox = c.inbox[n:]

	handles := make([]broker.Handle, 0, len(batch))
	for _, m := range batch {
		c.nextTok++
		tok := itoa(c.nextTok)
		c.raw[tok] = m
		handles = append(handles, broker.NewHandle(m, tok, m))
	}
	return handles, nil
}

func (c *fakeConsumer) Complete(_ context.Context, h broker.Handle) error {
	return c.settle(h, "complete")
}
func (c *fakeConsumer) Abandon(_ context.Context, h broker.Handle) error {
	return c.settle(h, "abandon")
}
func (c *fakeConsumer) DeadLetter(_ context.Context, h broker.Handle, _, _ string) error {
	return c.settle(h, "dead-letter")
}

func (c *fakeConsumer) settle(h broker.Handle, outcome string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.raw[h.Token()]; !ok {
		return apperrors.HandleStale("fake consumer does not recognize handle")
	}
	c.settled[h.Token()] = outcome
	delete(c.raw, h.Token())
	return nil
}

func (c *fakeConsumer) Close(context.Context) error {
	c.closed = true
	return nil
}

type fakeClient struct {
	mu        sync.Mutex
	producers map[string]*fakeProducer
	consumers map[string]*fakeConsumer
	inboxFor  map[string][]model.Message
}

func newFakeClient() *fakeClient {
	return &fakeClient{producers: map[string]*fakeProducer{}, consumers: map[string]*fakeConsumer{}, inboxFor: map[string][]model.Message{}}
}

func (f *fakeClient) CreateProducer(_ context.Context, queueName string) (broker.Producer, error) {
	p := &fakeProducer{queue: queueName}
	f.mu.Lock()
	f.producers[queueName] = p
	f.mu.Unlock()
	return p, nil
}

func (f *fakeClient) CreateConsumer(_ context.Context, queue model.Queue) (broker.Consumer, error) {
	c := newFakeConsumer(queue, f.inboxFor[queue.Name])
	f.mu.Lock()
	f.consumers[queue.Name] = c
	f.mu.Unlock()
	return c, nil
}

func (f *fakeClient) Close(context.Context) error { return nil }

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
}

func TestConsumerManagerLazyCreatesOnPeek(t *testing.T) {
	client := newFakeClient()
	client.inboxFor["orders"] = []model.Message{{ID: "m1", Sequence: 1}, {ID: "m2", Sequence: 2}}

	cm := broker.NewConsumerManager(client)
	require.NoError(t, cm.SwitchQueue(context.Background(), model.MainQueue("orders")))
	assert.False(t, cm.IsReady(), "consumer should not exist until first peek/receive")

	msgs, err := cm.Peek(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.True(t, cm.IsReady())
}

func TestConsumerManagerReceiveThenComplete(t *testing.T) {
	client := newFakeClient()
	client.inboxFor["orders"] = []model.Message{{ID: "m1", Sequence: 1}}

	cm := broker.NewConsumerManager(client)
	require.NoError(t, cm.SwitchQueue(context.Background(), model.MainQueue("orders")))

	handles, err := cm.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, handles, 1)

	require.NoError(t, cm.Complete(context.Background(), handles[0]))

	err = cm.Complete(context.Background(), handles[0])
	require.Error(t, err)
	assert.Equal(t, apperrors.KindHandleStale, apperrors.KindOf(err))
}

func TestConsumerManagerSwitchQueueDisposesPrevious(t *testing.T) {
	client := newFakeClient()
	client.inboxFor["a"] = []model.Message{{ID: "m1", Sequence: 1}}
	client.inboxFor["b"] = []model.Message{{ID: "m2", Sequence: 2}}

	cm := broker.NewConsumerManager(client)
	require.NoError(t, cm.SwitchQueue(context.Background(), model.MainQueue("a")))
	_, err := cm.Peek(context.Background(), 10, nil)
	require.NoError(t, err)

	require.NoError(t, cm.SwitchQueue(context.Background(), model.MainQueue("b")))
	assert.True(t, client.consumers["a"].closed, "switching queues must dispose the prior consumer")
	assert.False(t, cm.IsReady())
}

func TestProducerManagerSendManyChunksAndPaces(t *testing.T) {
	client := newFakeClient()
	cfg := broker.ProducerManagerConfig{BulkChunkSize: 10, PacingThreshold: 20, PacingDelay: 0}
	pm := broker.NewProducerManager(client, cfg)

	messages := make([]model.Message, 25)
	for i := range messages {
		messages[i] = model.Message{ID: itoa(i), Sequence: int64(i)}
	}

	stats, err := pm.SendMany(context.Background(), "orders", messages)
	require.NoError(t, err)
	assert.Equal(t, 25, stats.Total)
	assert.Equal(t, 25, stats.Successful)
	assert.Equal(t, 0, stats.Failed)
}

func TestProducerManagerSendRawRejectsDeadLetterQueue(t *testing.T) {
	client := newFakeClient()
	pm := broker.NewProducerManager(client, broker.DefaultProducerManagerConfig())

	_, err := pm.SendRaw(context.Background(), "orders/$deadletterqueue", [][]byte{[]byte("x")}, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
	assert.False(t, pm.HasProducer("orders/$deadletterqueue"))
}

func TestProducerManagerDisposeAll(t *testing.T) {
	client := newFakeClient()
	pm := broker.NewProducerManager(client, broker.DefaultProducerManagerConfig())

	require.NoError(t, pm.SendOne(context.Background(), "a", model.Message{ID: "1"}))
	require.NoError(t, pm.SendOne(context.Background(), "b", model.Message{ID: "2"}))
	assert.Equal(t, 2, pm.ProducerCount())

	require.NoError(t, pm.DisposeAll(context.Background()))
	assert.Equal(t, 0, pm.ProducerCount())
	assert.True(t, client.producers["a"].closed)
	assert.True(t, client.producers["b"].closed)
}
