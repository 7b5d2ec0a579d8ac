package mediator

import "github.com/sb-console/engine/pkg/model"

// CommandKind is the closed set of operations the UI dispatcher may ask the
// mediator to perform.
type CommandKind string

const (
	CmdSwitchQueue         CommandKind = "switch_queue"
	CmdGetCurrentQueue     CommandKind = "get_current_queue"
	CmdPeekMessages        CommandKind = "peek_messages"
	CmdReceiveMessages     CommandKind = "receive_messages"
	CmdBulkComplete        CommandKind = "bulk_complete"
	CmdBulkDelete          CommandKind = "bulk_delete"
	CmdBulkAbandon         CommandKind = "bulk_abandon"
	CmdBulkDeadLetter      CommandKind = "bulk_dead_letter"
	CmdBulkSend            CommandKind = "bulk_send"
	CmdBulkSendPeeked      CommandKind = "bulk_send_peeked"
	CmdSendMessage         CommandKind = "send_message"
	CmdSendMessages        CommandKind = "send_messages"
	CmdGetConnectionStatus CommandKind = "get_connection_status"
	CmdGetQueueStatistics  CommandKind = "get_queue_statistics"
	CmdDisposeConsumer     CommandKind = "dispose_consumer"
	CmdDisposeAllResources CommandKind = "dispose_all_resources"
)

// PeekedMessage carries a previously-peeked message's identifier and raw
// body, as needed by BulkSendPeeked to act on messages the UI already has
// in hand without a fresh receive.
type PeekedMessage struct {
	ID   model.MessageIdentifier
	Body []byte
}

// Command is a single mediator request. Only the fields relevant to Kind
// are read; the zero value of the rest is ignored.
type Command struct {
	Kind CommandKind

	QueueName string
	QueueKind model.QueueKind

	MaxCount     int
	FromSequence *int64

	MessageIDs  []model.MessageIdentifier
	Reason      string
	Description string

	TargetQueue  string
	DeleteSource bool
	RepeatCount  int

	Message        model.Message
	Messages       []model.Message
	PeekedMessages []PeekedMessage
}
