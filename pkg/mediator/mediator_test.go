package mediator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-console/engine/pkg/admin"
	"github.com/sb-console/engine/pkg/broker"
	"github.com/sb-console/engine/pkg/bulk"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/mediator"
	"github.com/sb-console/engine/pkg/model"
)

// fakeConsumer/fakeProducer/fakeClient below give the mediator a real
// ConsumerManager/ProducerManager/bulk.Engine stack to drive, backed by an
// in-memory queue instead of a live namespace.

type fakeConsumer struct {
	mu    sync.Mutex
	inbox []model.Message
	raw   map[string]model.Message
	next  int
}

func newFakeConsumer(inbox []model.Message) *fakeConsumer {
	return &fakeConsumer{inbox: inbox, raw: make(map[string]model.Message)}
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
		c.next++
		tok := itoa(c.next)
		c.raw[tok] = m
		handles = append(handles, broker.NewHandle(m, tok, m))
	}
	return handles, nil
}

func (c *fakeConsumer) Complete(_ context.Context, h broker.Handle) error { return c.drop(h) }
func (c *fakeConsumer) Abandon(_ context.Context, h broker.Handle) error  { return c.drop(h) }
func (c *fakeConsumer) DeadLetter(_ context.Context, h broker.Handle, _, _ string) error {
	return c.drop(h)
}
func (c *fakeConsumer) Close(context.Context) error { return nil }

func (c *fakeConsumer) drop(h broker.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.raw[h.Token()]; !ok {
		return apperrors.HandleStale("fake consumer does not recognize handle")
	}
	delete(c.raw, h.Token())
	return nil
}

type fakeProducer struct {
	mu   sync.Mutex
	sent [][]byte
}

func (p *fakeProducer) Send(_ context.Context, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg.Body)
	return nil
}
func (p *fakeProducer) SendBatch(ctx context.Context, msgs []model.Message) error {
	for _, m := range msgs {
		_ = p.Send(ctx, m)
	}
	return nil
}
func (p *fakeProducer) Close(context.Context) error { return nil }

type fakeClient struct {
	mu       sync.Mutex
	inboxFor map[string][]model.Message
}

func newFakeClient() *fakeClient {
	return &fakeClient{inboxFor: map[string][]model.Message{}}
}

func (f *fakeClient) CreateProducer(context.Context, string) (broker.Producer, error) {
	return &fakeProducer{}, nil
}

func (f *fakeClient) CreateConsumer(_ context.Context, queue model.Queue) (broker.Consumer, error) {
	return newFakeConsumer(f.inboxFor[queue.Name]), nil
}

func (f *fakeClient) Close(context.Context) error { return nil }

func itoa(n int) string {
	const digits = "0123456789"
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

func newMediator(client *fakeClient) *mediator.Mediator {
	consumers := broker.NewConsumerManager(client)
	producers := broker.NewProducerManager(client, broker.DefaultProducerManagerConfig())
	bulkEngine := bulk.New(consumers, producers, bulk.DefaultConfig())
	cache := admin.NewResourceCache(admin.DefaultCacheConfig())
	return mediator.New(consumers, producers, bulkEngine, cache, nil, mediator.NamespaceContext{})
}

func TestExecuteSwitchQueueThenGetCurrentQueue(t *testing.T) {
	med := newMediator(newFakeClient())

	resp := med.Execute(context.Background(), mediator.Command{
		Kind:      mediator.CmdSwitchQueue,
		QueueName: "orders",
	})
	require.Equal(t, mediator.RespQueueSwitched, resp.Kind)
	require.NotNil(t, resp.QueueInfo)
	assert.Equal(t, "orders", resp.QueueInfo.Name)

	resp = med.Execute(context.Background(), mediator.Command{Kind: mediator.CmdGetCurrentQueue})
	assert.Equal(t, mediator.RespCurrentQueue, resp.Kind)
	require.NotNil(t, resp.CurrentQueue)
	assert.Equal(t, "orders", resp.CurrentQueue.Name)
}

func TestExecuteBulkDeleteCompletesEveryTarget(t *testing.T) {
	client := newFakeClient()
	client.inboxFor["orders"] = []model.Message{
		{ID: "m1", Sequence: 1},
		{ID: "m2", Sequence: 2},
	}
	med := newMediator(client)

	_ = med.Execute(context.Background(), mediator.Command{Kind: mediator.CmdSwitchQueue, QueueName: "orders"})

	resp := med.Execute(context.Background(), mediator.Command{
		Kind: mediator.CmdBulkDelete,
		MessageIDs: []model.MessageIdentifier{
			{ID: "m1", Sequence: 1},
			{ID: "m2", Sequence: 2},
		},
	})
	require.Equal(t, mediator.RespBulkOperationCompleted, resp.Kind)
	require.NotNil(t, resp.BulkResult)
	assert.Equal(t, 2, resp.BulkResult.Successful)
}

func TestExecuteSendMessageThenConnectionStatus(t *testing.T) {
	med := newMediator(newFakeClient())

	resp := med.Execute(context.Background(), mediator.Command{
		Kind:      mediator.CmdSendMessage,
		QueueName: "orders",
		Message:   model.Message{ID: "m1", Body: []byte("hi")},
	})
	require.Equal(t, mediator.RespMessageSent, resp.Kind)

	resp = med.Execute(context.Background(), mediator.Command{Kind: mediator.CmdGetConnectionStatus})
	assert.Equal(t, mediator.RespConnectionStatus, resp.Kind)
	assert.True(t, resp.Connected)
	assert.Empty(t, resp.LastError)
}

func TestExecutePeekWithoutQueueDoesNotPanicAndRecordsLastError(t *testing.T) {
	med := newMediator(newFakeClient())

	resp := med.Execute(context.Background(), mediator.Command{
		Kind: mediator.CmdPeekMessages,
		MaxCount: 10,
	})
	require.Equal(t, mediator.RespError, resp.Kind)
	require.NotNil(t, resp.Err)
	assert.Equal(t, apperrors.KindServiceBus, resp.Err.Kind)

	status := med.Execute(context.Background(), mediator.Command{Kind: mediator.CmdGetConnectionStatus})
	assert.NotEmpty(t, status.LastError)
}

func TestExecuteDisposeAllResources(t *testing.T) {
	client := newFakeClient()
	med := newMediator(client)

	_ = med.Execute(context.Background(), mediator.Command{Kind: mediator.CmdSwitchQueue, QueueName: "orders"})
	_ = med.Execute(context.Background(), mediator.Command{
		Kind:      mediator.CmdSendMessage,
		QueueName: "orders",
		Message:   model.Message{ID: "m1"},
	})

	resp := med.Execute(context.Background(), mediator.Command{Kind: mediator.CmdDisposeAllResources})
	assert.Equal(t, mediator.RespAllResourcesDisposed, resp.Kind)

	status := med.Execute(context.Background(), mediator.Command{Kind: mediator.CmdGetConnectionStatus})
	assert.False(t, status.Connected)
}
