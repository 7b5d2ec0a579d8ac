package azsb

import (
	"context"
	stderrors "errors"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"

	"github.com/sb-console/engine/pkg/broker"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

type consumer struct {
	receiver *azservicebus.Receiver
	queue    model.Queue
}

func (c *consumer) Peek(ctx context.Context, maxCount int, fromSequence *int64) ([]model.Message, error) {
	opts := &azservicebus.PeekMessagesOptions{}
	if fromSequence != nil {
		opts.FromSequenceNumber = fromSequence
	}
	received, err := c.receiver.PeekMessages(ctx, maxCount, opts)
	if err != nil {
		return nil, apperrors.ServiceBus("failed to peek queue "+c.queue.Name, err)
	}
	out := make([]model.Message, 0, len(received))
	for _, r := range received {
		out = append(out, toModelMessage(r))
	}
	return out, nil
}

func (c *consumer) Receive(ctx context.Context, maxCount int) ([]broker.Handle, error) {
	received, err := c.receiver.ReceiveMessages(ctx, maxCount, nil)
	if err != nil {
		return nil, apperrors.ServiceBus("failed to receive from queue "+c.queue.Name, err)
	}
	handles := make([]broker.Handle, 0, len(received))
	for _, r := range received {
		token := uuid.UUID(r.LockToken).String()
		handles = append(handles, broker.NewHandle(toModelMessage(r), token, r))
	}
	return handles, nil
}

func (c *consumer) Complete(ctx context.Context, h broker.Handle) error {
	raw, err := c.rawMessage(h)
	if err != nil {
		return err
	}
	if err := c.receiver.CompleteMessage(ctx, raw, nil); err != nil {
		return c.settleError("complete", err)
	}
	return nil
}

func (c *consumer) Abandon(ctx context.Context, h broker.Handle) error {
	raw, err := c.rawMessage(h)
	if err != nil {
		return err
	}
	if err := c.receiver.AbandonMessage(ctx, raw, nil); err != nil {
		return c.settleError("abandon", err)
	}
	return nil
}

func (c *consumer) DeadLetter(ctx context.Context, h broker.Handle, reason, description string) error {
	raw, err := c.rawMessage(h)
	if err != nil {
		return err
	}
	opts := &azservicebus.DeadLetterOptions{}
	if reason != "" {
		opts.Reason = &reason
	}
	if description != "" {
		opts.ErrorDescription = &description
	}
	if err := c.receiver.DeadLetterMessage(ctx, raw, opts); err != nil {
		return c.settleError("dead-letter", err)
	}
	return nil
}

func (c *consumer) Close(ctx context.Context) error {
	if err := c.receiver.Close(ctx); err != nil {
		return apperrors.ServiceBus("failed to close consumer for queue "+c.queue.Name, err)
	}
	return nil
}

func (c *consumer) rawMessage(h broker.Handle) (*azservicebus.ReceivedMessage, error) {
	raw, ok := h.Raw().(*azservicebus.ReceivedMessage)
	if !ok || raw == nil {
		return nil, apperrors.HandleStale("handle does not belong to this consumer")
	}
	return raw, nil
}

// settleError distinguishes an expired lock (common, recoverable by the
// caller re-receiving) from other settle failures, which the SDK otherwise
// surfaces as opaque errors.
func (c *consumer) settleError(op string, err error) error {
	var sbErr *azservicebus.Error
	if ok := stderrors.As(err, &sbErr); ok && sbErr.Code == azservicebus.CodeLockLost {
		return apperrors.LockLost("lock expired while trying to " + op + " message")
	}
	return apperrors.ServiceBus("failed to "+op+" message on queue "+c.queue.Name, err)
}

func toModelMessage(r *azservicebus.ReceivedMessage) model.Message {
	msg := model.Message{
		ID:            r.MessageID,
		DeliveryCount: r.DeliveryCount,
		Body:          r.Body,
		State:         model.MessageStateActive,
	}
	if r.SequenceNumber != nil {
		msg.Sequence = *r.SequenceNumber
	}
	if r.EnqueuedTime != nil {
		msg.EnqueuedAt = *r.EnqueuedTime
	}
	if r.State != nil {
		msg.State = mapState(*r.State)
	}
	return msg
}

func mapState(s azservicebus.MessageState) model.MessageState {
	switch s {
	case azservicebus.MessageStateDeferred:
		return model.MessageStateDeferred
	case azservicebus.MessageStateScheduled:
		return model.MessageStateScheduled
	default:
		return model.MessageStateActive
	}
}
