// Package azsb is the production broker.Client implementation, backed by
// the Azure Service Bus SDK. It translates the console's Queue/Message
// types to and from the SDK's sender/receiver/message types and maps every
// SDK error through the closed error taxonomy.
package azsb

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/sb-console/engine/pkg/broker"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

// Config selects how the underlying azservicebus.Client authenticates.
// Exactly one of ConnectionString or (Namespace, Credential) should be set;
// a connection string (typically fetched via the admin client's namespace
// access-key call) takes precedence when both are present.
type Config struct {
	ConnectionString string
	Namespace        string
	Credential       TokenSource
}

type client struct {
	sb *azservicebus.Client
}

// New builds a broker.Client for the namespace described by cfg.
func New(cfg Config) (broker.Client, error) {
	var sb *azservicebus.Client
	var err error

	switch {
	case cfg.ConnectionString != "":
		sb, err = azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.Namespace != "" && cfg.Credential != nil:
		sb, err = azservicebus.NewClient(cfg.Namespace, newCredentialAdapter(cfg.Credential), nil)
	default:
		return nil, apperrors.Configuration("broker client requires a connection string or namespace and credential", nil)
	}
	if err != nil {
		return nil, apperrors.ServiceBus("failed to create service bus client", err)
	}
	return &client{sb: sb}, nil
}

func (c *client) CreateProducer(_ context.Context, queueName string) (broker.Producer, error) {
	sender, err := c.sb.NewSender(queueName, nil)
	if err != nil {
		return nil, apperrors.ServiceBus("failed to create producer for queue "+queueName, err)
	}
	return &producer{sender: sender, queueName: queueName}, nil
}

func (c *client) CreateConsumer(_ context.Context, queue model.Queue) (broker.Consumer, error) {
	opts := &azservicebus.ReceiverOptions{ReceiveMode: azservicebus.ReceiveModePeekLock}
	if queue.Kind == model.QueueKindDeadLetter {
		opts.SubQueue = azservicebus.SubQueueDeadLetter
	}
	receiver, err := c.sb.NewReceiverForQueue(queue.MainName(), opts)
	if err != nil {
		return nil, apperrors.ServiceBus("failed to create consumer for queue "+queue.Name, err)
	}
	return &consumer{receiver: receiver, queue: queue}, nil
}

func (c *client) Close(ctx context.Context) error {
	if err := c.sb.Close(ctx); err != nil {
		return apperrors.ServiceBus("failed to close service bus client", err)
	}
	return nil
}
