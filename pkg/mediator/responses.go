package mediator

import (
	"github.com/sb-console/engine/pkg/broker"
	"github.com/sb-console/engine/pkg/bulk"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

// ResponseKind is the closed set of outcomes a command dispatch can
// produce. A RespError always carries a non-nil Err and no other payload.
type ResponseKind string

const (
	RespError                  ResponseKind = "error"
	RespQueueSwitched          ResponseKind = "queue_switched"
	RespCurrentQueue           ResponseKind = "current_queue"
	RespMessagesPeeked         ResponseKind = "messages_peeked"
	RespMessagesReceived       ResponseKind = "messages_received"
	RespBulkOperationCompleted ResponseKind = "bulk_operation_completed"
	RespMessageSent            ResponseKind = "message_sent"
	RespMessagesSent           ResponseKind = "messages_sent"
	RespConnectionStatus       ResponseKind = "connection_status"
	RespQueueStats             ResponseKind = "queue_stats"
	RespConsumerDisposed       ResponseKind = "consumer_disposed"
	RespAllResourcesDisposed   ResponseKind = "all_resources_disposed"
)

// Response is the closed set of results a Command can produce. Only the
// fields relevant to Kind are populated.
type Response struct {
	Kind ResponseKind
	Err  *apperrors.AppError

	QueueInfo    *model.Queue
	CurrentQueue *model.Queue
	Messages     []model.Message
	Handles      []broker.Handle
	BulkResult   *bulk.Result

	QueueName string
	Count     int
	Stats     broker.OperationStats

	Connected bool
	LastError string

	MessageCount   *int64
	ActiveConsumer bool
}

func errorResponse(err *apperrors.AppError) Response {
	return Response{Kind: RespError, Err: err}
}
