package cache

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// DefaultWriteDelay is how long the debounced writer coalesces edits for
// one template before persisting them.
const DefaultWriteDelay = 500 * time.Millisecond

type pendingWrite struct {
	payload  json.RawMessage
	editorID string
}

// Writer coalesces the fire-and-forget write-backs produced while a user
// types. Edits for the same template replace each other until the delay
// elapses; Flush and Close persist everything immediately. Write failures
// are logged, not returned: losing one debounced write only costs edits
// since the last successful flush.
type Writer struct {
	store  *Store
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingWrite
	timer   *time.Timer
	closed  bool
}

// NewWriter creates a debounced writer on top of the cache store.
func NewWriter(store *Store, delay time.Duration, logger *slog.Logger) *Writer {
	if delay <= 0 {
		delay = DefaultWriteDelay
	}
	return &Writer{
		store:   store,
		delay:   delay,
		logger:  logger,
		pending: make(map[string]pendingWrite),
	}
}

// Queue records an edit for later persistence, arming the flush timer if
// it is not already running.
func (w *Writer) Queue(id string, payload json.RawMessage, editorID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.pending[id] = pendingWrite{payload: payload, editorID: editorID}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay, w.Flush)
	}
}

// Flush writes every pending edit through to the store.
func (w *Writer) Flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]pendingWrite)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	for id, edit := range pending {
		if err := w.store.Put(id, edit.payload, edit.editorID); err != nil {
			w.logger.Error("failed to write back template edit", "template_id", id, "error", err)
		}
	}
}

// Close flushes outstanding edits and rejects further queueing.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.Flush()
}
