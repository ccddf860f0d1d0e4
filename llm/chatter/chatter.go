// Package chatter layers conversation state on top of llm.Client.
//
// A Chatter owns a History and drives one request/response cycle at a
// time: it sends the retained turns plus the new user turn, and commits
// both the user turn and the finalized assistant turn only after the
// call succeeds. A failed or abandoned call leaves the history exactly
// as it was.
package chatter

import (
	"context"
	"encoding/json"

	"github.com/ozongzi/ds-api/llm"
)

// Chatter is a stateful conversation over an llm.Client.
//
// Not safe for concurrent use.
type Chatter struct {
	client  *llm.Client
	history History

	systemPrompt string

	defaultOpts []llm.RequestOption

	// pending holds the tool-call IDs of the last committed assistant turn
	// that have not received a tool result yet.
	pending map[string]bool
}

type Option func(*Chatter)

// WithHistory replaces the default unbounded MemoryHistory.
func WithHistory(h History) Option {
	return func(c *Chatter) {
		if h != nil {
			c.history = h
		}
	}
}

// WithSystemPrompt sets the system turn sent at the head of every request.
func WithSystemPrompt(prompt string) Option {
	return func(c *Chatter) { c.systemPrompt = prompt }
}

// WithRequestOptions applies opts to every request the chatter sends,
// before per-call options.
func WithRequestOptions(opts ...llm.RequestOption) Option {
	return func(c *Chatter) {
		c.defaultOpts = append(c.defaultOpts, opts...)
	}
}

func New(client *llm.Client, opts ...Option) *Chatter {
	c := &Chatter{
		client:  client,
		history: &MemoryHistory{},
		pending: make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Chatter) SystemPrompt() string { return c.systemPrompt }

// SetSystemPrompt replaces the system prompt for subsequent requests.
// Already-committed turns are not rewritten.
func (c *Chatter) SetSystemPrompt(prompt string) { c.systemPrompt = prompt }

// Snapshot returns the conversation as it would be sent: the system turn
// (when set) followed by the committed history turns.
func (c *Chatter) Snapshot() []llm.Message {
	turns := c.history.Snapshot()
	if c.systemPrompt == "" {
		return turns
	}
	out := make([]llm.Message, 0, len(turns)+1)
	out = append(out, llm.System(c.systemPrompt))
	return append(out, turns...)
}

// Chat sends text as a new user turn and blocks for the assistant turn.
//
// The user and assistant turns are committed to history together, after
// the call succeeds. On error the history is unchanged.
func (c *Chatter) Chat(ctx context.Context, text string, opts ...llm.RequestOption) (llm.Message, error) {
	user := llm.User(text)
	resp, err := c.client.Chat(ctx, c.requestMessages(&user), c.mergeOpts(opts)...)
	if err != nil {
		return llm.Message{}, err
	}
	return c.commit(&user, resp)
}

// ChatStream is the streaming Chat. observe, when non-nil, sees every
// merged piece as it arrives; the returned message is the finalized
// assistant turn. The commit contract is the same as Chat's: abandoning
// or failing the stream leaves the history unchanged.
func (c *Chatter) ChatStream(ctx context.Context, text string, observe func(llm.Outcome) error, opts ...llm.RequestOption) (llm.Message, error) {
	user := llm.User(text)
	stream, err := c.client.ChatStream(ctx, c.requestMessages(&user), c.mergeOpts(opts)...)
	if err != nil {
		return llm.Message{}, err
	}
	resp, err := llm.ConsumeStream(stream, observe)
	if err != nil {
		return llm.Message{}, err
	}
	return c.commit(&user, resp)
}

// ChatJSON sends text with response_format json_object and returns the
// assistant turn's content as raw JSON. The prompt (system or user) must
// still instruct the model to produce JSON.
func (c *Chatter) ChatJSON(ctx context.Context, text string, opts ...llm.RequestOption) (json.RawMessage, error) {
	opts = append(opts, llm.WithResponseFormatJSONObject())
	msg, err := c.Chat(ctx, text, opts...)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(msg.Content)
	if !json.Valid(raw) {
		return nil, &llm.LLMError{
			Kind:    llm.ErrKindParse,
			Message: "assistant content is not valid JSON",
			Raw:     raw,
		}
	}
	return raw, nil
}

// AppendToolResult records the result of a tool call requested by the
// last assistant turn. The toolCallID must match one of that turn's
// still-unanswered calls; anything else is a history-misuse error and
// the history is not modified.
func (c *Chatter) AppendToolResult(toolCallID, content string) error {
	if len(c.pending) == 0 {
		return &llm.LLMError{
			Kind:    llm.ErrKindHistory,
			Message: "no tool calls awaiting results",
		}
	}
	if !c.pending[toolCallID] {
		return &llm.LLMError{
			Kind:    llm.ErrKindHistory,
			Message: "tool result does not match a pending tool call: " + toolCallID,
		}
	}
	c.history.Append(llm.ToolResult(toolCallID, content))
	delete(c.pending, toolCallID)
	return nil
}

// PendingToolCalls reports how many tool calls from the last assistant
// turn still await a result.
func (c *Chatter) PendingToolCalls() int { return len(c.pending) }

// Continue resends the conversation without adding a user turn, for the
// follow-up request after tool results have been appended.
func (c *Chatter) Continue(ctx context.Context, opts ...llm.RequestOption) (llm.Message, error) {
	resp, err := c.client.Chat(ctx, c.requestMessages(nil), c.mergeOpts(opts)...)
	if err != nil {
		return llm.Message{}, err
	}
	return c.commit(nil, resp)
}

// ContinueStream is the streaming Continue.
func (c *Chatter) ContinueStream(ctx context.Context, observe func(llm.Outcome) error, opts ...llm.RequestOption) (llm.Message, error) {
	stream, err := c.client.ChatStream(ctx, c.requestMessages(nil), c.mergeOpts(opts)...)
	if err != nil {
		return llm.Message{}, err
	}
	resp, err := llm.ConsumeStream(stream, observe)
	if err != nil {
		return llm.Message{}, err
	}
	return c.commit(nil, resp)
}

func (c *Chatter) requestMessages(user *llm.Message) []llm.Message {
	msgs := c.Snapshot()
	if user != nil {
		msgs = append(msgs, *user)
	}
	return msgs
}

func (c *Chatter) mergeOpts(opts []llm.RequestOption) []llm.RequestOption {
	if len(c.defaultOpts) == 0 {
		return opts
	}
	merged := make([]llm.RequestOption, 0, len(c.defaultOpts)+len(opts))
	merged = append(merged, c.defaultOpts...)
	return append(merged, opts...)
}

// commit appends the user turn (when present) and the assistant turn of
// the response's first choice, then resets the pending tool-call set
// from the new assistant turn.
func (c *Chatter) commit(user *llm.Message, resp llm.ChatResponse) (llm.Message, error) {
	if len(resp.Choices) == 0 {
		return llm.Message{}, &llm.LLMError{
			Kind:    llm.ErrKindProtocol,
			Message: "response contained no choices",
		}
	}
	assistant := resp.Choices[0].Message

	if user != nil {
		c.history.Append(*user)
	}
	c.history.Append(assistant)

	c.pending = make(map[string]bool, len(assistant.ToolCalls))
	for _, tc := range assistant.ToolCalls {
		if tc.ID != "" {
			c.pending[tc.ID] = true
		}
	}
	return assistant, nil
}
