// Package pagination implements the sliding cursor window the UI dispatcher
// keeps over sequence-ordered messages: it pages forward by peeking new
// messages from the broker and backward purely over what is already
// retained locally, and it reconciles the window after local removals
// (successful deletes or moves) and after the operator changes the page
// size.
package pagination

import (
	"fmt"
	"time"

	"github.com/sb-console/engine/pkg/model"
)

// Window is the ordered list of messages loaded so far for one queue,
// sliced into pages of PageSize. It never pages backward over the network:
// PrevPage only ever re-slices messages already held in Messages.
type Window struct {
	Messages          []model.Message
	CurrentPage       int
	PageSize          int
	TotalPagesLoaded  int
	LastLoadedSeq     *int64
	ReachedEndOfQueue bool
	PageStartIndices  []int
	StatsCache        *model.QueueStatsCache
}

// New builds an empty Window for the given page size.
func New(pageSize int) *Window {
	w := &Window{PageSize: pageSize}
	w.Reset()
	return w
}

// Reset clears all loaded messages and cursor state, keeping PageSize.
func (w *Window) Reset() {
	pageSize := w.PageSize
	*w = Window{PageSize: pageSize, PageStartIndices: []int{0}}
}

// IsPageLoaded reports whether page is already within [0, TotalPagesLoaded).
func (w *Window) IsPageLoaded(page int) bool {
	return page >= 0 && page < w.TotalPagesLoaded
}

// Bounds returns the [start, end) slice indices of CurrentPage within
// Messages.
func (w *Window) Bounds() (start, end int) {
	start = w.CurrentPage * w.PageSize
	end = start + w.PageSize
	if end > len(w.Messages) {
		end = len(w.Messages)
	}
	if start > len(w.Messages) {
		start = len(w.Messages)
	}
	return start, end
}

// CurrentPageMessages returns the slice of Messages belonging to
// CurrentPage.
func (w *Window) CurrentPageMessages() []model.Message {
	start, end := w.Bounds()
	if start >= len(w.Messages) {
		return nil
	}
	return w.Messages[start:end]
}

// HasPreviousPage reports whether PrevPage would move the cursor.
func (w *Window) HasPreviousPage() bool {
	return w.CurrentPage > 0
}

// HasNextPage reports whether there is a next page already loaded, or
// whether the engine should still be willing to try loading one. It is the
// caller's job to actually attempt the peek; this only reports whether
// that attempt makes sense.
func (w *Window) HasNextPage() bool {
	if w.ReachedEndOfQueue {
		return false
	}
	if w.CurrentPage+1 < w.TotalPagesLoaded {
		return true
	}
	if w.TotalPagesLoaded == 0 {
		return true
	}
	return len(w.Messages) > 0
}

// PrevPage moves the cursor back one page, purely locally.
func (w *Window) PrevPage() {
	if w.CurrentPage > 0 {
		w.CurrentPage--
	}
}

// AddLoadedPage appends newMessages as a brand new page, advancing
// TotalPagesLoaded and recording the page's start index.
func (w *Window) AddLoadedPage(newMessages []model.Message) {
	if w.TotalPagesLoaded > 0 {
		w.PageStartIndices = append(w.PageStartIndices, len(w.Messages))
	}
	w.Messages = append(w.Messages, newMessages...)
	w.updateLastLoadedSeq(newMessages)
	w.TotalPagesLoaded++
}

// ExtendCurrentPage appends additionalMessages to the page already in
// progress rather than starting a new one: TotalPagesLoaded and
// PageStartIndices are unchanged. An empty batch marks end-of-queue.
func (w *Window) ExtendCurrentPage(additionalMessages []model.Message) {
	if len(additionalMessages) == 0 {
		w.ReachedEndOfQueue = true
		return
	}
	w.Messages = append(w.Messages, additionalMessages...)
	w.updateLastLoadedSeq(additionalMessages)
}

func (w *Window) updateLastLoadedSeq(messages []model.Message) {
	if len(messages) == 0 {
		return
	}
	seq := messages[len(messages)-1].Sequence
	w.LastLoadedSeq = &seq
}

// NextFromSequence is the inclusive lower bound the next peek should start
// from, or nil to start at the earliest message.
func (w *Window) NextFromSequence() *int64 {
	if w.LastLoadedSeq == nil {
		return nil
	}
	next := *w.LastLoadedSeq + 1
	return &next
}

// RemoveByIdentifier deletes every message whose (id, sequence) is in ids
// from Messages, preserving order, and returns how many were removed.
func (w *Window) RemoveByIdentifier(ids []model.MessageIdentifier) int {
	if len(ids) == 0 {
		return 0
	}
	remove := make(map[model.MessageIdentifier]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	kept := w.Messages[:0]
	removed := 0
	for _, m := range w.Messages {
		if _, ok := remove[m.Identifier()]; ok {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	w.Messages = kept
	return removed
}

// Finalize recomputes TotalPagesLoaded, clamps CurrentPage into range, and
// refreshes HasNextPage/HasPreviousPage bookkeeping after messages have
// been removed out from under the window. pageStartIndices is intentionally
// not reconstructed here: after a removal the original page boundaries no
// longer correspond to anything meaningful, so callers that need per-page
// start offsets should treat the window as flat from this point on.
func (w *Window) Finalize() {
	total := len(w.Messages)
	if total == 0 {
		w.TotalPagesLoaded = 0
		w.CurrentPage = 0
		return
	}
	w.TotalPagesLoaded = (total + w.PageSize - 1) / w.PageSize
	if w.CurrentPage >= w.TotalPagesLoaded {
		w.CurrentPage = w.TotalPagesLoaded - 1
	}
}

// MessagesNeededToFillCurrentPage reports how many more messages would
// bring CurrentPage up to PageSize, or 0 if it is already full.
func (w *Window) MessagesNeededToFillCurrentPage() int {
	needed := w.PageSize - len(w.CurrentPageMessages())
	if needed < 0 {
		return 0
	}
	return needed
}

// FormatWithStats renders "Page N" optionally annotated with a cached total
// message count and its age, matching the console's status line.
func (w *Window) FormatWithStats(now time.Time) string {
	base := fmt.Sprintf("Page %d", w.CurrentPage+1)
	if w.StatsCache == nil || w.StatsCache.ActiveCount == nil {
		return base
	}
	total := *w.StatsCache.ActiveCount
	age := w.StatsCache.Age(now)
	if age < 60*time.Second {
		return fmt.Sprintf("%s (%d total msgs)", base, total)
	}
	return fmt.Sprintf("%s (%d total msgs, %dm ago)", base, total, int64(age/time.Minute))
}
