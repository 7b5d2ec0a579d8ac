// Package bulk implements two-phase bulk operations over a broker queue
// that offers no random access by message id: a collection phase drains a
// sliding receive window until every targeted identifier has been seen (or
// the queue runs dry), then an action phase settles each target according
// to the requested action, and a final abandonment phase releases every
// non-target handle picked up along the way.
package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/sb-console/engine/pkg/broker"
	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/logger"
	"github.com/sb-console/engine/pkg/model"
)

// ActionKind selects what happens to each target message once found.
type ActionKind string

const (
	ActionDelete        ActionKind = "delete"
	ActionAbandon       ActionKind = "abandon"
	ActionSendToQueue   ActionKind = "send_to_queue"
	ActionSendToDLQ     ActionKind = "send_to_dlq"
	ActionResendFromDLQ ActionKind = "resend_from_dlq"
)

// Action describes the action phase of a bulk operation. Only the fields
// relevant to Kind are read.
type Action struct {
	Kind ActionKind

	// TargetQueue names the destination queue for ActionSendToQueue.
	TargetQueue string
	// DeleteSource completes (rather than abandons) each target after a
	// successful copy, for ActionSendToQueue and ActionResendFromDLQ.
	DeleteSource bool

	// Reason and Description annotate ActionSendToDLQ dead-letters.
	Reason      string
	Description string

	// RepeatCount, when greater than 1, replicates each copied message this
	// many times for ActionSendToQueue and ActionResendFromDLQ. Zero and one
	// both mean "send once".
	RepeatCount int
}

// Config tunes batch sizing, the overall deadline, and the threshold past
// which a completed operation carries an ordering warning.
type Config struct {
	MaxBatchSize          int
	OperationTimeout      time.Duration
	OrderWarningThreshold int
}

// DefaultConfig matches the console's default runtime tuning.
func DefaultConfig() Config {
	return Config{MaxBatchSize: 2048, OperationTimeout: 300 * time.Second, OrderWarningThreshold: 2048}
}

// Result reports the outcome of a bulk operation.
type Result struct {
	TotalRequested       int
	Successful           int
	Failed               int
	NotFound             int
	ErrorDetails         []string
	SuccessfulMessageIDs []model.MessageIdentifier
	// Warning is non-empty when Successful reached the order warning
	// threshold: broker-side ordering is not preserved by a replay of this
	// size.
	Warning string
}

func (r *Result) addError(msg string) {
	r.Failed++
	r.ErrorDetails = append(r.ErrorDetails, msg)
}

// Engine runs bulk operations against a single session's consumer and
// producer managers.
type Engine struct {
	consumers *broker.ConsumerManager
	producers *broker.ProducerManager
	cfg       Config
}

// New builds an Engine bound to the given managers.
func New(consumers *broker.ConsumerManager, producers *broker.ProducerManager, cfg Config) *Engine {
	if cfg.MaxBatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{consumers: consumers, producers: producers, cfg: cfg}
}

// Execute runs the collection phase for targets, then applies action to
// every target found, then abandons every non-target handle collected
// along the way.
func (e *Engine) Execute(ctx context.Context, targets []model.MessageIdentifier, action Action) (Result, error) {
	result := Result{TotalRequested: len(targets)}
	if len(targets) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OperationTimeout)
	defer cancel()

	batchSize := len(targets) * 2
	if batchSize > e.cfg.MaxBatchSize {
		batchSize = e.cfg.MaxBatchSize
	}

	targetHandles, nonTargetHandles, notFound, timedOut := e.collect(ctx, targets, batchSize)
	result.NotFound = len(notFound)
	for _, id := range notFound {
		logger.L().WarnContext(ctx, "bulk operation target not found", "id", id.ID, "sequence", id.Sequence)
	}

	e.applyAction(ctx, action, targetHandles, &result)

	if timedOut {
		result.addError("bulk operation timed out after " + e.cfg.OperationTimeout.String())
	}

	e.abandonAll(ctx, nonTargetHandles, &result)

	if result.Successful >= e.cfg.OrderWarningThreshold {
		result.Warning = "large bulk operation: broker-side ordering is not preserved by replay"
	}

	return result, nil
}

// collect drains the queue in batches of batchSize, separating handles
// whose identifier is in targets from everything else, until every target
// has been seen or the queue returns no more messages.
func (e *Engine) collect(ctx context.Context, targets []model.MessageIdentifier, batchSize int) (targetHandles, nonTargetHandles []broker.Handle, notFound []model.MessageIdentifier, timedOut bool) {
	remaining := make(map[model.MessageIdentifier]struct{}, len(targets))
	for _, id := range targets {
		remaining[id] = struct{}{}
	}

	consumer, err := e.consumers.RawConsumer(ctx)
	if err != nil {
		for id := range remaining {
			notFound = append(notFound, id)
		}
		return nil, nil, notFound, false
	}

	for len(remaining) > 0 {
		if ctx.Err() != nil {
			timedOut = true
			break
		}

		handles, err := consumer.Receive(ctx, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				timedOut = true
			}
			break
		}
		if len(handles) == 0 {
			break
		}
		e.consumers.TrackHandles(handles)

		for _, h := range handles {
			id := h.Message.Identifier()
			if _, ok := remaining[id]; ok {
				delete(remaining, id)
				targetHandles = append(targetHandles, h)
			} else {
				nonTargetHandles = append(nonTargetHandles, h)
			}
		}
	}

	for id := range remaining {
		notFound = append(notFound, id)
	}
	return targetHandles, nonTargetHandles, notFound, timedOut
}

func (e *Engine) applyAction(ctx context.Context, action Action, targets []broker.Handle, result *Result) {
	switch action.Kind {
	case ActionDelete:
		e.applyDelete(ctx, targets, result)
	case ActionAbandon:
		e.applyAbandon(ctx, targets, result)
	case ActionSendToQueue:
		e.applyCopy(ctx, action.TargetQueue, action.DeleteSource, action.RepeatCount, targets, result)
	case ActionSendToDLQ:
		e.applyDeadLetter(ctx, action.Reason, action.Description, targets, result)
	case ActionResendFromDLQ:
		e.applyResendFromDLQ(ctx, action.DeleteSource, action.RepeatCount, targets, result)
	default:
		for range targets {
			result.addError("unknown bulk action kind")
		}
	}
}

func (e *Engine) applyDelete(ctx context.Context, targets []broker.Handle, result *Result) {
	for _, h := range targets {
		if err := e.consumers.Complete(ctx, h); err != nil {
			result.addError(err.Error())
			continue
		}
		result.Successful++
		result.SuccessfulMessageIDs = append(result.SuccessfulMessageIDs, h.Message.Identifier())
	}
}

func (e *Engine) applyAbandon(ctx context.Context, targets []broker.Handle, result *Result) {
	for _, h := range targets {
		if err := e.consumers.Abandon(ctx, h); err != nil {
			result.addError(err.Error())
			continue
		}
		result.Successful++
		result.SuccessfulMessageIDs = append(result.SuccessfulMessageIDs, h.Message.Identifier())
	}
}

func (e *Engine) applyCopy(ctx context.Context, targetQueue string, deleteSource bool, repeatCount int, targets []broker.Handle, result *Result) {
	if model.IsDeadLetterEntityPath(targetQueue) {
		for _, h := range targets {
			result.addError("refusing to copy into a dead-letter queue: " + targetQueue)
			if err := e.consumers.Abandon(ctx, h); err != nil {
				result.addError(err.Error())
			}
		}
		return
	}

	for _, h := range targets {
		sendErr := e.sendCopy(ctx, targetQueue, h.Message.Body, repeatCount)
		if sendErr != nil {
			result.addError(sendErr.Error())
			if err := e.consumers.Abandon(ctx, h); err != nil {
				result.addError(err.Error())
			}
			continue
		}

		var settleErr error
		if deleteSource {
			settleErr = e.consumers.Complete(ctx, h)
		} else {
			settleErr = e.consumers.Abandon(ctx, h)
		}
		if settleErr != nil {
			result.addError(settleErr.Error())
			continue
		}
		result.Successful++
		result.SuccessfulMessageIDs = append(result.SuccessfulMessageIDs, h.Message.Identifier())
	}
}

func (e *Engine) applyDeadLetter(ctx context.Context, reason, description string, targets []broker.Handle, result *Result) {
	for _, h := range targets {
		if err := e.consumers.DeadLetter(ctx, h, reason, description); err != nil {
			result.addError(err.Error())
			continue
		}
		result.Successful++
		result.SuccessfulMessageIDs = append(result.SuccessfulMessageIDs, h.Message.Identifier())
	}
}

func (e *Engine) applyResendFromDLQ(ctx context.Context, deleteFromDLQ bool, repeatCount int, targets []broker.Handle, result *Result) {
	queue := e.consumers.CurrentQueue()
	if queue == nil {
		for range targets {
			result.addError("no active dead-letter queue to resend from")
		}
		return
	}
	mainQueue := queue.MainName()

	for _, h := range targets {
		sendErr := e.sendCopy(ctx, mainQueue, h.Message.Body, repeatCount)
		if sendErr != nil {
			result.addError(sendErr.Error())
			if err := e.consumers.Abandon(ctx, h); err != nil {
				result.addError(err.Error())
			}
			continue
		}

		var settleErr error
		if deleteFromDLQ {
			settleErr = e.consumers.Complete(ctx, h)
		} else {
			settleErr = e.consumers.Abandon(ctx, h)
		}
		if settleErr != nil {
			result.addError(settleErr.Error())
			continue
		}
		result.Successful++
		result.SuccessfulMessageIDs = append(result.SuccessfulMessageIDs, h.Message.Identifier())
	}
}

// sendCopy sends body to targetQueue once, or repeatCount times when
// repeatCount is greater than one, replaying the original dropped feature
// that let a single replay fan out into several copies.
func (e *Engine) sendCopy(ctx context.Context, targetQueue string, body []byte, repeatCount int) error {
	if repeatCount <= 1 {
		return e.producers.SendOne(ctx, targetQueue, model.Message{Body: body})
	}
	messages := make([]model.Message, repeatCount)
	for i := range messages {
		messages[i] = model.Message{Body: body}
	}
	stats, err := e.producers.SendMany(ctx, targetQueue, messages)
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return apperrors.ServiceBus(fmt.Sprintf("failed to send %d of %d copies to queue %s", stats.Failed, stats.Total, targetQueue), nil)
	}
	return nil
}

// abandonAll releases every non-target handle collected during the
// collection phase. Abandoning is best-effort: a failure here is recorded
// but never fails the overall operation.
func (e *Engine) abandonAll(ctx context.Context, handles []broker.Handle, result *Result) {
	for _, h := range handles {
		if err := e.consumers.Abandon(ctx, h); err != nil {
			result.ErrorDetails = append(result.ErrorDetails, "failed to abandon non-target message: "+err.Error())
		}
	}
}
