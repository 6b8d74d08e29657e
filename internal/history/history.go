// Package history keeps the bounded conversation window sent with each request.
package history

import "cabot/internal/domain"

// DefaultCap keeps roughly the last ten exchanges.
const DefaultCap = 20

// Window is an append-only, front-trimmed log of user/assistant messages.
// It is owned by one session and is not safe for concurrent use.
type Window struct {
	cap      int
	messages []domain.Message
}

// New returns an empty window holding at most limit messages.
func New(limit int) *Window {
	if limit <= 0 {
		limit = DefaultCap
	}
	return &Window{cap: limit}
}

// Append records one exchange, user first, then trims to the cap.
func (w *Window) Append(user, assistant string) {
	w.messages = append(w.messages,
		domain.Message{Role: domain.RoleUser, Content: user},
		domain.Message{Role: domain.RoleAssistant, Content: assistant},
	)
	w.messages = Trim(w.messages, w.cap)
}

// Messages returns a copy of the window in chronological order.
func (w *Window) Messages() []domain.Message {
	out := make([]domain.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

func (w *Window) Len() int { return len(w.messages) }

func (w *Window) Cap() int { return w.cap }

// Reset empties the window.
func (w *Window) Reset() { w.messages = nil }

// Trim keeps the last limit messages, dropping from the front.
// An exchange may be split at the boundary.
func Trim(messages []domain.Message, limit int) []domain.Message {
	if len(messages) <= limit {
		return messages
	}
	kept := make([]domain.Message, limit)
	copy(kept, messages[len(messages)-limit:])
	return kept
}
