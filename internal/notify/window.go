package notify

import (
	"sync"
	"time"
)

// ErrorWindow bounds how many error notifications go out per sliding
// window.
type ErrorWindow struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu   sync.Mutex
	sent []time.Time
}

func NewErrorWindow(window time.Duration, limit int) *ErrorWindow {
	if window <= 0 {
		window = time.Hour
	}
	if limit <= 0 {
		limit = 5
	}
	return &ErrorWindow{
		window: window,
		limit:  limit,
		now:    time.Now,
	}
}

// Allow records a send and reports true while fewer than limit sends
// happened within the window. A denied call records nothing.
func (w *ErrorWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.sent) >= w.limit {
		return false
	}
	w.sent = append(w.sent, now)
	return true
}

// Release gives back the most recent slot taken by Allow, for a message
// that was never handed to the sender.
func (w *ErrorWindow) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.sent) > 0 {
		w.sent = w.sent[:len(w.sent)-1]
	}
}

// Count returns the sends currently inside the window.
func (w *ErrorWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	return len(w.sent)
}

func (w *ErrorWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.sent) && !w.sent[i].After(cutoff) {
		i++
	}
	w.sent = w.sent[i:]
}
