package azsb

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

type producer struct {
	sender    *azservicebus.Sender
	queueName string
}

func (p *producer) Send(ctx context.Context, msg model.Message) error {
	if err := p.sender.SendMessage(ctx, toSBMessage(msg), nil); err != nil {
		return apperrors.ServiceBus("failed to send message to queue "+p.queueName, err)
	}
	return nil
}

// SendBatch packs msgs into a single SDK batch, splitting is the caller's
// responsibility (the Producer Manager chunks before calling this).
func (p *producer) SendBatch(ctx context.Context, msgs []model.Message) error {
	batch, err := p.sender.NewMessageBatch(ctx, nil)
	if err != nil {
		return apperrors.ServiceBus("failed to create message batch for queue "+p.queueName, err)
	}
	for _, m := range msgs {
		if err := batch.AddMessage(toSBMessage(m), nil); err != nil {
			return apperrors.ServiceBus("message rejected from batch (likely exceeds max size) for queue "+p.queueName, err)
		}
	}
	if err := p.sender.SendMessageBatch(ctx, batch, nil); err != nil {
		return apperrors.ServiceBus("failed to send message batch to queue "+p.queueName, err)
	}
	return nil
}

func (p *producer) Close(ctx context.Context) error {
	if err := p.sender.Close(ctx); err != nil {
		return apperrors.ServiceBus("failed to close producer for queue "+p.queueName, err)
	}
	return nil
}

func toSBMessage(m model.Message) *azservicebus.Message {
	msg := &azservicebus.Message{Body: m.Body}
	if m.ID != "" {
		id := m.ID
		msg.MessageID = &id
	}
	return msg
}
