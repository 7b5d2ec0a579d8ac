package pagination

import (
	"context"

	"github.com/sb-console/engine/pkg/broker"
	"github.com/sb-console/engine/pkg/model"
)

// backfillBatchCap is the largest single peek issued while growing the page
// size or backfilling after a removal: a jump from 100 to 1000 messages is
// serviced in chunks rather than one oversized request.
const backfillBatchCap = 500

// Engine drives a Window's forward paging and backfill peeks against a
// live consumer. It holds no broker state of its own beyond the Window;
// the consumer manager remains the only owner of receive handles.
type Engine struct {
	consumers *broker.ConsumerManager
	window    *Window
}

// NewEngine builds an Engine over window, peeking through consumers.
func NewEngine(consumers *broker.ConsumerManager, window *Window) *Engine {
	return &Engine{consumers: consumers, window: window}
}

// Window exposes the underlying window for read access (current page
// messages, cursor position, stats annotation).
func (e *Engine) Window() *Window { return e.window }

// NextPage switches to the next page if already loaded; otherwise it peeks
// just enough messages to bring the window up to a full page beyond next
// and appends them as a new page. Ordinarily that count is exactly
// PageSize; after a removal has left the window holding fewer than
// next*PageSize messages, more are requested so the earlier pages are
// topped up as well.
// Called on a fresh window (nothing loaded yet), it loads page 0.
func (e *Engine) NextPage(ctx context.Context) error {
	if e.window.TotalPagesLoaded == 0 {
		return e.loadPage(ctx, 0, e.window.PageSize)
	}

	next := e.window.CurrentPage + 1
	if e.window.IsPageLoaded(next) {
		e.window.CurrentPage = next
		return nil
	}

	needed := (next+1)*e.window.PageSize - len(e.window.Messages)
	if needed <= 0 {
		e.window.CurrentPage = next
		e.window.TotalPagesLoaded = next + 1
		return nil
	}
	return e.loadPage(ctx, next, needed)
}

func (e *Engine) loadPage(ctx context.Context, page, count int) error {
	messages, err := e.consumers.Peek(ctx, count, e.window.NextFromSequence())
	if err != nil {
		return err
	}
	e.window.CurrentPage = page
	if len(messages) == 0 {
		e.window.ReachedEndOfQueue = true
		return nil
	}
	e.window.AddLoadedPage(messages)
	return nil
}

// PrevPage moves back a page with no network access.
func (e *Engine) PrevPage() { e.window.PrevPage() }

// GotoEndInWindow jumps to the last page already loaded in memory.
func (e *Engine) GotoEndInWindow() {
	if e.window.TotalPagesLoaded > 0 {
		e.window.CurrentPage = e.window.TotalPagesLoaded - 1
	}
}

// Reset clears the window back to an empty first page.
func (e *Engine) Reset() { e.window.Reset() }

// RemoveAndBackfill deletes the given identifiers from the window, adjusts
// the cursor so it stays within the retained messages, and — if the
// current page is now under-filled and the queue is not known to be
// exhausted — peeks exactly enough messages to top it back up. Backfilled
// messages extend the current page; they never start a new one.
func (e *Engine) RemoveAndBackfill(ctx context.Context, ids []model.MessageIdentifier) error {
	e.window.RemoveByIdentifier(ids)
	e.window.Finalize()
	return e.backfillCurrentPage(ctx)
}

// backfillCurrentPage tops the current page back up after a removal. A
// short peek does not by itself mean the queue is exhausted (the broker
// can return fewer messages than requested for reasons other than running
// dry), so this keeps asking for whatever is still needed and only treats
// an empty peek as reaching the end of the queue.
func (e *Engine) backfillCurrentPage(ctx context.Context) error {
	for !e.window.ReachedEndOfQueue {
		needed := e.window.MessagesNeededToFillCurrentPage()
		if needed <= 0 {
			break
		}
		batch := needed
		if batch > backfillBatchCap {
			batch = backfillBatchCap
		}

		messages, err := e.consumers.Peek(ctx, batch, e.window.NextFromSequence())
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			e.window.ReachedEndOfQueue = true
			break
		}
		e.window.ExtendCurrentPage(messages)
	}
	e.window.Finalize()
	return nil
}

// SetPageSize changes the page size and, if the current page is now
// under-filled and the queue is not exhausted, backfills it in batches no
// larger than backfillBatchCap until it is full or the queue runs dry.
func (e *Engine) SetPageSize(ctx context.Context, pageSize int) error {
	e.window.PageSize = pageSize
	for !e.window.ReachedEndOfQueue {
		needed := e.window.MessagesNeededToFillCurrentPage()
		if needed <= 0 {
			break
		}
		batch := needed
		if batch > backfillBatchCap {
			batch = backfillBatchCap
		}

		messages, err := e.consumers.Peek(ctx, batch, e.window.NextFromSequence())
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			e.window.ReachedEndOfQueue = true
			break
		}
		e.window.ExtendCurrentPage(messages)
		if len(messages) < batch {
			// The broker returned fewer than asked: nothing more is
			// immediately available, so stop rather than spin.
			break
		}
	}
	e.window.Finalize()
	return nil
}
