package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sb-console/engine/pkg/model"
)

func TestQueueEntityPath(t *testing.T) {
	q := model.MainQueue("orders")
	assert.Equal(t, "orders", q.EntityPath())

	dlq := model.DeadLetterQueue("orders")
	assert.Equal(t, "orders/$deadletterqueue", dlq.EntityPath())
	assert.Equal(t, "orders", dlq.MainName())
}

func TestIsDeadLetterEntityPath(t *testing.T) {
	assert.True(t, model.IsDeadLetterEntityPath("orders/$deadletterqueue"))
	assert.False(t, model.IsDeadLetterEntityPath("orders"))
}

func TestAuthTokenExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := model.NewAuthToken("abc", "Bearer", 10*time.Minute, 45*time.Second, now)
	assert.False(t, tok.Expired(now))
	assert.True(t, tok.Expired(now.Add(10*time.Minute)))
	assert.Equal(t, now.Add(9*time.Minute+15*time.Second), tok.ExpiresAt)
}

func TestMessageIdentifierOrdering(t *testing.T) {
	a := model.MessageIdentifier{ID: "x", Sequence: 1}
	b := model.MessageIdentifier{ID: "y", Sequence: 2}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestQueueStatsCacheFreshness(t *testing.T) {
	now := time.Now()
	s := model.QueueStatsCache{FetchedAt: now, TTL: 60 * time.Second}
	assert.True(t, s.Fresh(now.Add(30*time.Second)))
	assert.False(t, s.Fresh(now.Add(90*time.Second)))
}
