package speech

import (
	"context"
	"strings"
)

// Queue holds typed utterances injected over the control socket.
type Queue struct {
	ch chan string
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 8
	}
	return &Queue{ch: make(chan string, size)}
}

// Push enqueues text and reports false when the queue is full.
func (q *Queue) Push(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	select {
	case q.ch <- text:
		return true
	default:
		return false
	}
}

// Pop returns the next queued utterance without blocking.
func (q *Queue) Pop() (string, bool) {
	select {
	case text := <-q.ch:
		return text, true
	default:
		return "", false
	}
}

// Listen blocks until an utterance is queued or ctx is done. It lets the
// dialogue run on injected text alone when no capture device is usable.
func (q *Queue) Listen(ctx context.Context) string {
	select {
	case text := <-q.ch:
		return text
	case <-ctx.Done():
		return ""
	}
}

// WithQueue serves queued utterances before falling back to l.
func WithQueue(l Listener, q *Queue) Listener {
	return queued{l: l, q: q}
}

type queued struct {
	l Listener
	q *Queue
}

func (w queued) Listen(ctx context.Context) string {
	if text, ok := w.q.Pop(); ok {
		return text
	}
	return w.l.Listen(ctx)
}
