// Package mediator is the single point of entry for every operation the UI
// dispatcher can ask of a broker session: it owns the consumer manager, the
// producer manager, and the bulk engine, dispatches one Command at a time,
// and translates every outcome (success or failure) into a closed Response.
package mediator

import (
	"context"
	"errors"
	"sync"

	"github.com/sb-console/engine/pkg/admin"
	"github.com/sb-console/engine/pkg/broker"
	"github.com/sb-console/engine/pkg/bulk"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

// NamespaceContext names the Azure resource coordinates used to enrich
// GetQueueStatistics with live message counts through the admin client. It
// is optional: a Mediator with no admin client set skips the enrichment and
// returns a nil MessageCount.
type NamespaceContext struct {
	SubscriptionID string
	ResourceGroup  string
	Namespace      string
}

// Mediator serializes every command against a single broker session. Only
// one command runs at a time: the broker connection, the consumer handle
// table, and the producer pool are not safe for concurrent command
// dispatch, so Execute takes a mutex for its whole duration rather than
// relying on the finer-grained locks already held inside the managers.
type Mediator struct {
	mu sync.Mutex

	consumers  *broker.ConsumerManager
	producers  *broker.ProducerManager
	bulkEngine *bulk.Engine
	cache      *admin.ResourceCache
	admin      *admin.Client
	nsContext  NamespaceContext

	lastError string
}

// New builds a Mediator wired to the given session state. adminClient and
// nsContext may be zero-valued; GetQueueStatistics then reports a nil
// message count instead of calling out to the management API.
func New(consumers *broker.ConsumerManager, producers *broker.ProducerManager, bulkEngine *bulk.Engine, cache *admin.ResourceCache, adminClient *admin.Client, nsContext NamespaceContext) *Mediator {
	return &Mediator{
		consumers:  consumers,
		producers:  producers,
		bulkEngine: bulkEngine,
		cache:      cache,
		admin:      adminClient,
		nsContext:  nsContext,
	}
}

// Execute runs cmd to completion and returns its outcome. It never panics:
// every error path is translated into a RespError response carrying a
// typed *errors.AppError, and the mediator's own last-error memory is
// updated accordingly so GetConnectionStatus can report it later.
func (m *Mediator) Execute(ctx context.Context, cmd Command) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp := m.dispatch(ctx, cmd)
	if resp.Kind == RespError {
		m.lastError = resp.Err.Error()
	} else {
		m.lastError = ""
	}
	return resp
}

func (m *Mediator) dispatch(ctx context.Context, cmd Command) Response {
	switch cmd.Kind {
	case CmdSwitchQueue:
		return m.handleSwitchQueue(ctx, cmd)
	case CmdGetCurrentQueue:
		return m.handleGetCurrentQueue()
	case CmdPeekMessages:
		return m.handlePeekMessages(ctx, cmd)
	case CmdReceiveMessages:
		return m.handleReceiveMessages(ctx, cmd)
	case CmdBulkComplete:
		return m.handleBulkAction(ctx, cmd, bulk.Action{Kind: bulk.ActionDelete})
	case CmdBulkDelete:
		return m.handleBulkAction(ctx, cmd, bulk.Action{Kind: bulk.ActionDelete})
	case CmdBulkAbandon:
		return m.handleBulkAction(ctx, cmd, bulk.Action{Kind: bulk.ActionAbandon})
	case CmdBulkDeadLetter:
		return m.handleBulkAction(ctx, cmd, bulk.Action{
			Kind:        bulk.ActionSendToDLQ,
			Reason:      cmd.Reason,
			Description: cmd.Description,
		})
	case CmdBulkSend:
		return m.handleBulkSend(ctx, cmd)
	case CmdBulkSendPeeked:
		return m.handleBulkSendPeeked(ctx, cmd)
	case CmdSendMessage:
		return m.handleSendMessage(ctx, cmd)
	case CmdSendMessages:
		return m.handleSendMessages(ctx, cmd)
	case CmdGetConnectionStatus:
		return m.handleGetConnectionStatus()
	case CmdGetQueueStatistics:
		return m.handleGetQueueStatistics(ctx, cmd)
	case CmdDisposeConsumer:
		return m.handleDisposeConsumer(ctx)
	case CmdDisposeAllResources:
		return m.handleDisposeAllResources(ctx)
	default:
		return errorResponse(apperrors.InvalidInput("unknown command kind: " + string(cmd.Kind)))
	}
}

func (m *Mediator) handleSwitchQueue(ctx context.Context, cmd Command) Response {
	queue := model.Queue{Name: cmd.QueueName, Kind: cmd.QueueKind}
	if err := m.consumers.SwitchQueue(ctx, queue); err != nil {
		return errorResponse(asAppError(err))
	}
	return Response{Kind: RespQueueSwitched, QueueInfo: &queue}
}

func (m *Mediator) handleGetCurrentQueue() Response {
	return Response{Kind: RespCurrentQueue, CurrentQueue: m.consumers.CurrentQueue()}
}

func (m *Mediator) handlePeekMessages(ctx context.Context, cmd Command) Response {
	messages, err := m.consumers.Peek(ctx, cmd.MaxCount, cmd.FromSequence)
	if err != nil {
		return errorResponse(asAppError(err))
	}
	return Response{Kind: RespMessagesPeeked, Messages: messages, Count: len(messages)}
}

func (m *Mediator) handleReceiveMessages(ctx context.Context, cmd Command) Response {
	handles, err := m.consumers.Receive(ctx, cmd.MaxCount)
	if err != nil {
		return errorResponse(asAppError(err))
	}
	messages := make([]model.Message, len(handles))
	for i, h := range handles {
		messages[i] = h.Message
	}
	return Response{Kind: RespMessagesReceived, Handles: handles, Messages: messages, Count: len(messages)}
}

// handleBulkAction runs a bulk operation keyed by cmd.MessageIDs and
// invalidates the cached statistics for the current queue, since a
// successful bulk action always changes its message count.
func (m *Mediator) handleBulkAction(ctx context.Context, cmd Command, action bulk.Action) Response {
	result, err := m.bulkEngine.Execute(ctx, cmd.MessageIDs, action)
	if err != nil {
		return errorResponse(asAppError(err))
	}
	m.invalidateCurrentQueueStats()
	return Response{Kind: RespBulkOperationCompleted, BulkResult: &result}
}

func (m *Mediator) handleBulkSend(ctx context.Context, cmd Command) Response {
	action := bulk.Action{
		Kind:         bulk.ActionSendToQueue,
		TargetQueue:  cmd.TargetQueue,
		DeleteSource: cmd.DeleteSource,
		RepeatCount:  cmd.RepeatCount,
	}
	if model.IsDeadLetterEntityPath(cmd.TargetQueue) {
		action = bulk.Action{
			Kind:        bulk.ActionSendToDLQ,
			Reason:      cmd.Reason,
			Description: cmd.Description,
		}
	}
	return m.handleBulkAction(ctx, cmd, action)
}

// handleBulkSendPeeked mirrors handleBulkSend but is driven by identifiers
// the caller already peeked rather than a fresh list of message ids: the
// bulk engine still performs its own receive-based collection against the
// live queue, since a peeked message carries no settlement handle.
func (m *Mediator) handleBulkSendPeeked(ctx context.Context, cmd Command) Response {
	ids := make([]model.MessageIdentifier, len(cmd.PeekedMessages))
	for i, p := range cmd.PeekedMessages {
		ids[i] = p.ID
	}
	peekedCmd := cmd
	peekedCmd.MessageIDs = ids
	return m.handleBulkSend(ctx, peekedCmd)
}

func (m *Mediator) handleSendMessage(ctx context.Context, cmd Command) Response {
	if err := m.producers.SendOne(ctx, cmd.QueueName, cmd.Message); err != nil {
		return errorResponse(asAppError(err))
	}
	m.invalidateQueueStats(cmd.QueueName)
	return Response{Kind: RespMessageSent, QueueName: cmd.QueueName}
}

func (m *Mediator) handleSendMessages(ctx context.Context, cmd Command) Response {
	var (
		stats broker.OperationStats
		err   error
	)
	if cmd.RepeatCount > 1 {
		stats, err = m.producers.SendManyRepeated(ctx, cmd.QueueName, cmd.Messages, cmd.RepeatCount)
	} else {
		stats, err = m.producers.SendMany(ctx, cmd.QueueName, cmd.Messages)
	}
	if err != nil {
		return errorResponse(asAppError(err))
	}
	m.invalidateQueueStats(cmd.QueueName)
	return Response{Kind: RespMessagesSent, QueueName: cmd.QueueName, Count: stats.Successful, Stats: stats}
}

func (m *Mediator) handleGetConnectionStatus() Response {
	connected := m.consumers.IsReady() || m.producers.ProducerCount() > 0
	return Response{
		Kind:         RespConnectionStatus,
		Connected:    connected,
		CurrentQueue: m.consumers.CurrentQueue(),
		LastError:    m.lastError,
	}
}

func (m *Mediator) handleGetQueueStatistics(ctx context.Context, cmd Command) Response {
	current := m.consumers.CurrentQueue()
	activeConsumer := current != nil && current.Name == cmd.QueueName

	var messageCount *int64
	if m.admin != nil && m.nsContext.SubscriptionID != "" {
		active, _, err := m.admin.GetQueueCounts(ctx, m.nsContext.SubscriptionID, m.nsContext.ResourceGroup, m.nsContext.Namespace, cmd.QueueName)
		if err == nil {
			messageCount = &active
		}
	}

	return Response{
		Kind:           RespQueueStats,
		QueueName:      cmd.QueueName,
		MessageCount:   messageCount,
		ActiveConsumer: activeConsumer,
	}
}

func (m *Mediator) handleDisposeConsumer(ctx context.Context) Response {
	if err := m.consumers.DisposeConsumer(ctx); err != nil {
		return errorResponse(asAppError(err))
	}
	return Response{Kind: RespConsumerDisposed}
}

// handleDisposeAllResources disposes the consumer before the producers,
// matching the order the broker session is torn down in everywhere else:
// nothing should still be receiving once outgoing sends are shut off.
func (m *Mediator) handleDisposeAllResources(ctx context.Context) Response {
	if err := m.consumers.DisposeConsumer(ctx); err != nil {
		return errorResponse(asAppError(err))
	}
	if err := m.producers.DisposeAll(ctx); err != nil {
		return errorResponse(asAppError(err))
	}
	return Response{Kind: RespAllResourcesDisposed}
}

func (m *Mediator) invalidateCurrentQueueStats() {
	if current := m.consumers.CurrentQueue(); current != nil {
		m.invalidateQueueStats(current.Name)
	}
}

// invalidateQueueStats drops the cached queue-statistics entry for
// queueName, scoped to this mediator's own namespace the same way
// admin.Client.GetQueueCounts keys its cache entries — a bare queue name
// would otherwise collide with a same-named queue in another namespace
// sharing the same ResourceCache.
func (m *Mediator) invalidateQueueStats(queueName string) {
	key := admin.QueueStatsCacheKey(m.nsContext.SubscriptionID, m.nsContext.ResourceGroup, m.nsContext.Namespace, queueName)
	m.cache.Invalidate(admin.CacheKindQueueStats, key)
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Internal(err.Error(), err)
}
