// Package broker abstracts the message broker data plane: creating
// producers and consumers for a queue, sending messages, and the
// peek/receive/settle cycle on a locked handle. The Consumer Manager and
// Producer Manager in this package are the only callers permitted to touch
// a live broker connection; everything above them (bulk engine, command
// mediator) goes through their typed operations instead of the raw SDK.
package broker

import (
	"context"

	"github.com/sb-console/engine/pkg/model"
)

// Client creates producers and consumers bound to a namespace connection.
// The azsb package provides the only production implementation, backed by
// the Azure Service Bus SDK; tests substitute a fake.
type Client interface {
	CreateProducer(ctx context.Context, queueName string) (Producer, error)
	CreateConsumer(ctx context.Context, queue model.Queue) (Consumer, error)
	Close(ctx context.Context) error
}

// Producer sends messages to a single queue.
type Producer interface {
	Send(ctx context.Context, msg model.Message) error
	SendBatch(ctx context.Context, msgs []model.Message) error
	Close(ctx context.Context) error
}

// Handle pairs a received Message with whatever the broker needs to settle
// it later. It must never outlive the lock duration the broker granted it,
// and the Consumer Manager is the only component allowed to hold one.
type Handle struct {
	Message model.Message
	token   string
	raw     any
}

// Token returns the opaque lock token identifying this handle, used to
// detect staleness when a caller tries to settle a handle the consumer no
// longer recognizes.
func (h Handle) Token() string { return h.token }

// Raw returns the broker-SDK-specific receive handle backing this Handle.
// Only a Consumer implementation's own constructor and settle methods should
// need it; everything above broker.Consumer deals in Handle and Token alone.
func (h Handle) Raw() any { return h.raw }

// NewHandle constructs a Handle. Called by Consumer implementations when
// translating a broker-native received message into the common type.
func NewHandle(msg model.Message, token string, raw any) Handle {
	return Handle{Message: msg, token: token, raw: raw}
}

// Consumer reads from a single queue (or its DLQ sibling) via a broker-side
// lock on receive.
type Consumer interface {
	Peek(ctx context.Context, maxCount int, fromSequence *int64) ([]model.Message, error)
	Receive(ctx context.Context, maxCount int) ([]Handle, error)
	Complete(ctx context.Context, h Handle) error
	Abandon(ctx context.Context, h Handle) error
	DeadLetter(ctx context.Context, h Handle, reason, description string) error
	Close(ctx context.Context) error
}
