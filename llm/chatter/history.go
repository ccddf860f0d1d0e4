package chatter

import "github.com/ozongzi/ds-api/llm"

// History owns the ordered turn list of one conversation session.
//
// Implementations may apply a retention policy (drop oldest turns beyond
// a bound), but must preserve turn order and never edit a retained turn.
// Appended turns are immutable; Snapshot hands out copies, never the
// backing storage.
type History interface {
	Append(msg llm.Message)
	Snapshot() []llm.Message
}

// MemoryHistory is the unbounded in-memory History. The zero value is
// ready to use. Not safe for concurrent use; a conversation is driven by
// one request/response cycle at a time.
type MemoryHistory struct {
	messages []llm.Message
}

func (h *MemoryHistory) Append(msg llm.Message) {
	h.messages = append(h.messages, msg.Clone())
}

func (h *MemoryHistory) Snapshot() []llm.Message {
	out := make([]llm.Message, len(h.messages))
	for i := range h.messages {
		out[i] = h.messages[i].Clone()
	}
	return out
}

func (h *MemoryHistory) Len() int { return len(h.messages) }

// WindowHistory retains at most Max of the most recent turns, evicting
// the oldest first. Eviction preserves the order of what remains.
type WindowHistory struct {
	Max int

	messages []llm.Message
}

func NewWindowHistory(max int) *WindowHistory {
	return &WindowHistory{Max: max}
}

func (h *WindowHistory) Append(msg llm.Message) {
	h.messages = append(h.messages, msg.Clone())
	if h.Max > 0 && len(h.messages) > h.Max {
		drop := len(h.messages) - h.Max
		h.messages = append(h.messages[:0:0], h.messages[drop:]...)
	}
}

func (h *WindowHistory) Snapshot() []llm.Message {
	out := make([]llm.Message, len(h.messages))
	for i := range h.messages {
		out[i] = h.messages[i].Clone()
	}
	return out
}

func (h *WindowHistory) Len() int { return len(h.messages) }
