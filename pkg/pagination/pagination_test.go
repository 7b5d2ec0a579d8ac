package pagination_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-console/engine/pkg/broker"
	"github.com/sb-console/engine/pkg/model"
	"github.com/sb-console/engine/pkg/pagination"
)

type fakeConsumer struct {
	mu      sync.Mutex
	messages []model.Message
}

func (c *fakeConsumer) Peek(_ context.Context, maxCount int, fromSequence *int64) ([]model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Message
	for _, m := range c.messages {
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

func (c *fakeConsumer) Receive(context.Context, int) ([]broker.Handle, error)     { return nil, nil }
func (c *fakeConsumer) Complete(context.Context, broker.Handle) error             { return nil }
func (c *fakeConsumer) Abandon(context.Context, broker.Handle) error              { return nil }
func (c *fakeConsumer) DeadLetter(context.Context, broker.Handle, string, string) error { return nil }
func (c *fakeConsumer) Close(context.Context) error                              { return nil }

type fakeClient struct {
	consumer *fakeConsumer
}

func (f *fakeClient) CreateProducer(context.Context, string) (broker.Producer, error) { return nil, nil }
func (f *fakeClient) CreateConsumer(context.Context, model.Queue) (broker.Consumer, error) {
	return f.consumer, nil
}
func (f *fakeClient) Close(context.Context) error { return nil }

func messagesWithSequence(n int, start int64) []model.Message {
	out := make([]model.Message, n)
	for i := range out {
		seq := start + int64(i)
		out[i] = model.Message{ID: "m", Sequence: seq}
	}
	return out
}

func newEngine(t *testing.T, all []model.Message, pageSize int) *pagination.Engine {
	t.Helper()
	client := &fakeClient{consumer: &fakeConsumer{messages: all}}
	consumers := broker.NewConsumerManager(client)
	require.NoError(t, consumers.SwitchQueue(context.Background(), model.MainQueue("orders")))
	return pagination.NewEngine(consumers, pagination.New(pageSize))
}

func TestNextPageLoadsThenSwitchesToCachedPage(t *testing.T) {
	engine := newEngine(t, messagesWithSequence(250, 1), 100)

	require.NoError(t, engine.NextPage(context.Background())) // loads page 0
	assert.Equal(t, 0, engine.Window().CurrentPage)
	assert.Len(t, engine.Window().CurrentPageMessages(), 100)

	require.NoError(t, engine.NextPage(context.Background())) // loads page 1
	assert.Equal(t, 1, engine.Window().CurrentPage)
	assert.Len(t, engine.Window().CurrentPageMessages(), 100)

	engine.PrevPage()
	assert.Equal(t, 0, engine.Window().CurrentPage)

	require.NoError(t, engine.NextPage(context.Background()))
	assert.Equal(t, 1, engine.Window().CurrentPage, "page 1 should already be loaded, no re-peek")
}

func TestNextPageReachesEndOfQueue(t *testing.T) {
	engine := newEngine(t, messagesWithSequence(50, 1), 100)

	require.NoError(t, engine.NextPage(context.Background())) // short page: not yet the end
	assert.False(t, engine.Window().ReachedEndOfQueue)

	require.NoError(t, engine.NextPage(context.Background())) // empty peek marks the end
	assert.True(t, engine.Window().ReachedEndOfQueue)
	assert.False(t, engine.Window().HasNextPage())
}

func TestRemoveAndBackfillExtendsCurrentPage(t *testing.T) {
	engine := newEngine(t, messagesWithSequence(150, 1), 100)
	require.NoError(t, engine.NextPage(context.Background())) // load page 0, 100 msgs

	toRemove := []model.MessageIdentifier{{ID: "m", Sequence: 1}, {ID: "m", Sequence: 2}}
	require.NoError(t, engine.RemoveAndBackfill(context.Background(), toRemove))

	assert.Len(t, engine.Window().CurrentPageMessages(), 100, "page should be topped back up to full size")
}

func TestSetPageSizeBackfillsInBatchesUnderCap(t *testing.T) {
	engine := newEngine(t, messagesWithSequence(1000, 1), 100)
	require.NoError(t, engine.NextPage(context.Background())) // page 0 has 100

	require.NoError(t, engine.SetPageSize(context.Background(), 1000))
	assert.Len(t, engine.Window().CurrentPageMessages(), 1000)
}

func TestFormatWithStatsWithoutCache(t *testing.T) {
	engine := newEngine(t, nil, 100)
	assert.Equal(t, "Page 1", engine.Window().FormatWithStats(time.Now()))
}
