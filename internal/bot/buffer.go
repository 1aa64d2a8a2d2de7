package bot

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// pairFlush receives a linked pair once the buffer settles. Either field
// may be nil, never both.
type pairFlush func(forward, explanation *tgbotapi.Message)

type pairEntry struct {
	forward     *tgbotapi.Message
	explanation *tgbotapi.Message
	firstAt     time.Time
	timer       *time.Timer
}

// pairBuffer links a forwarded message with its explanation when the two
// arrive as separate Telegram messages, in either order. A lone message is
// held for the settle delay in case its counterpart is still in flight;
// counterparts older than the link window are never joined.
type pairBuffer struct {
	mu      sync.Mutex
	entries map[int64]*pairEntry
	window  time.Duration
	settle  time.Duration
	flush   pairFlush
	now     func() time.Time
}

func newPairBuffer(window, settle time.Duration, flush pairFlush) *pairBuffer {
	return &pairBuffer{
		entries: make(map[int64]*pairEntry),
		window:  window,
		settle:  settle,
		flush:   flush,
		now:     time.Now,
	}
}

// AddForward buffers a forwarded message for the chat.
func (b *pairBuffer) AddForward(msg *tgbotapi.Message) {
	b.add(msg.Chat.ID, func(e *pairEntry) { e.forward = msg })
}

// AddExplanation buffers an explanation message for the chat.
func (b *pairBuffer) AddExplanation(msg *tgbotapi.Message) {
	b.add(msg.Chat.ID, func(e *pairEntry) { e.explanation = msg })
}

func (b *pairBuffer) add(chatID int64, assign func(*pairEntry)) {
	b.mu.Lock()

	e := b.entries[chatID]
	if e != nil && b.now().Sub(e.firstAt) > b.window {
		b.evictLocked(chatID, e)
		e = nil
	}
	if e == nil {
		e = &pairEntry{firstAt: b.now()}
		b.entries[chatID] = e
	}
	assign(e)

	if e.forward != nil && e.explanation != nil {
		b.evictLocked(chatID, e)
		b.mu.Unlock()
		b.flush(e.forward, e.explanation)
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(b.settle, func() { b.settleChat(chatID, e) })
	b.mu.Unlock()
}

// settleChat fires when no counterpart arrived within the settle delay.
func (b *pairBuffer) settleChat(chatID int64, e *pairEntry) {
	b.mu.Lock()
	if b.entries[chatID] != e {
		b.mu.Unlock()
		return
	}
	delete(b.entries, chatID)
	b.mu.Unlock()

	if e.forward != nil || e.explanation != nil {
		b.flush(e.forward, e.explanation)
	}
}

// evictLocked removes the entry and flushes nothing; a complete pair is
// flushed by the caller, a stale entry has already been flushed by its timer.
func (b *pairBuffer) evictLocked(chatID int64, e *pairEntry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(b.entries, chatID)
}
