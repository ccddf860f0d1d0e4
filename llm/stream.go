package llm

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
)

// Stream yields StreamEvent values until io.EOF.
//
// Implementations return io.EOF once the stream finishes normally and a
// *LLMError for decode or protocol failures. A stream is finite and not
// restartable once consumed.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

var ErrStreamClosed = errors.New("llm: stream closed")

type StreamEventKind string

const (
	StreamEventTextDelta      StreamEventKind = "text_delta"
	StreamEventReasoningDelta StreamEventKind = "reasoning_delta"
	StreamEventToolCallDelta  StreamEventKind = "tool_call_delta"
	StreamEventChoiceDone     StreamEventKind = "choice_done"
	StreamEventUsage          StreamEventKind = "usage"
	StreamEventDone           StreamEventKind = "done"
)

// ToolCallDelta is one partial tool-call fragment.
//
// Index identifies one logical tool call across the whole stream; ID and
// Name typically arrive only on the first fragment for an index, while
// ArgumentsDelta arrives on every fragment and may be empty.
type ToolCallDelta struct {
	Index int
	ID    string
	Name  string

	ArgumentsDelta string
}

// StreamEvent is one decoded fragment of a streaming response.
//
// ChoiceIndex is -1 for events that do not belong to a choice
// (usage, the terminal done event).
type StreamEvent struct {
	Kind        StreamEventKind
	ChoiceIndex int

	// Role is set when the server tags the fragment with a role, which
	// happens on the first fragment of each choice.
	Role Role

	TextDelta      string
	ReasoningDelta string
	ToolCallDelta  *ToolCallDelta
	Usage          *Usage

	FinishReason FinishReason

	Raw json.RawMessage
}

func (e StreamEvent) Done() bool { return e.Kind == StreamEventDone }

// Outcome describes what a single Apply changed, for live-display callers.
// The delta fields surface the applied piece unchanged.
type Outcome struct {
	ChoiceIndex    int
	TextDelta      string
	ReasoningDelta string
	ToolCallDelta  *ToolCallDelta

	// ChoiceDone is true when this event recorded a finish reason,
	// signaling the choice is ready for finalization.
	ChoiceDone bool

	// Done is true for the stream's terminal event.
	Done bool
}

// Accumulator folds stream events into finalized messages, one in-progress
// accumulator per choice index.
//
// It is owned by a single consuming goroutine for the lifetime of one
// stream; the zero value is ready to use. Events for a choice must be
// applied in arrival order — the accumulator never reorders them.
type Accumulator struct {
	choices map[int]*choiceState
	usage   *Usage
}

type choiceState struct {
	role      Role
	content   strings.Builder
	reasoning strings.Builder

	toolCalls map[int]*toolCallState

	finishReason FinishReason
	hasFinish    bool
}

type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

func (a *Accumulator) choice(idx int) *choiceState {
	if a.choices == nil {
		a.choices = make(map[int]*choiceState)
	}
	c, ok := a.choices[idx]
	if !ok {
		c = &choiceState{role: RoleAssistant}
		a.choices[idx] = c
	}
	return c
}

// Apply folds one event into the accumulator and reports what changed.
//
// Fragments for choice indices never seen before create a new in-progress
// accumulator rather than being dropped, so no generated token is lost.
// Absent fields are no-ops, never "clear".
func (a *Accumulator) Apply(ev StreamEvent) Outcome {
	out := Outcome{ChoiceIndex: ev.ChoiceIndex}

	switch ev.Kind {
	case StreamEventTextDelta:
		c := a.choice(ev.ChoiceIndex)
		a.seedRole(c, ev.Role)
		c.content.WriteString(ev.TextDelta)
		out.TextDelta = ev.TextDelta

	case StreamEventReasoningDelta:
		c := a.choice(ev.ChoiceIndex)
		a.seedRole(c, ev.Role)
		c.reasoning.WriteString(ev.ReasoningDelta)
		out.ReasoningDelta = ev.ReasoningDelta

	case StreamEventToolCallDelta:
		if ev.ToolCallDelta == nil {
			return out
		}
		c := a.choice(ev.ChoiceIndex)
		a.seedRole(c, ev.Role)
		if c.toolCalls == nil {
			c.toolCalls = make(map[int]*toolCallState)
		}
		tc, ok := c.toolCalls[ev.ToolCallDelta.Index]
		if !ok {
			tc = &toolCallState{}
			c.toolCalls[ev.ToolCallDelta.Index] = tc
		}
		// ID and name are set once and never overwritten by later fragments.
		if tc.id == "" {
			tc.id = ev.ToolCallDelta.ID
		}
		if tc.name == "" {
			tc.name = ev.ToolCallDelta.Name
		}
		tc.args.WriteString(ev.ToolCallDelta.ArgumentsDelta)
		out.ToolCallDelta = ev.ToolCallDelta

	case StreamEventChoiceDone:
		c := a.choice(ev.ChoiceIndex)
		if ev.FinishReason != "" {
			c.finishReason = ev.FinishReason
			c.hasFinish = true
		}
		out.ChoiceDone = true

	case StreamEventUsage:
		if ev.Usage != nil {
			u := *ev.Usage
			a.usage = &u
		}

	case StreamEventDone:
		out.Done = true
	}

	return out
}

func (a *Accumulator) seedRole(c *choiceState, r Role) {
	if r != "" {
		c.role = r
	}
}

// Response finalizes every accumulated choice into a ChatResponse.
//
// Choices are ordered by ascending choice index and tool calls by
// ascending tool-call index, regardless of arrival order. A choice that
// never saw a finish reason gets FinishReasonUnknown.
func (a *Accumulator) Response() ChatResponse {
	resp := ChatResponse{Usage: a.usage}

	idxs := make([]int, 0, len(a.choices))
	for idx := range a.choices {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	for _, idx := range idxs {
		c := a.choices[idx]
		msg := Message{
			Role:             c.role,
			Content:          c.content.String(),
			ReasoningContent: c.reasoning.String(),
		}

		if len(c.toolCalls) > 0 {
			tcIdxs := make([]int, 0, len(c.toolCalls))
			for i := range c.toolCalls {
				tcIdxs = append(tcIdxs, i)
			}
			sort.Ints(tcIdxs)
			msg.ToolCalls = make([]ToolCall, 0, len(tcIdxs))
			for _, i := range tcIdxs {
				tc := c.toolCalls[i]
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:        tc.id,
					Name:      tc.name,
					Arguments: tc.args.String(),
				})
			}
		}

		fr := c.finishReason
		if !c.hasFinish {
			fr = FinishReasonUnknown
		}
		resp.Choices = append(resp.Choices, ChatChoice{
			Index:        idx,
			Message:      msg,
			FinishReason: fr,
		})
	}

	return resp
}

// ConsumeStream drives stream to completion over a single Accumulator
// pass, invoking observe for every applied event when observe is non-nil.
//
// The live-display projection and the finalized response come from the
// same merge state: observe sees each piece as it is applied, and the
// returned response is the finalization of the same accumulators. An
// error from observe abandons the stream.
func ConsumeStream(stream Stream, observe func(Outcome) error) (ChatResponse, error) {
	defer stream.Close()

	var acc Accumulator
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return ChatResponse{}, err
		}
		out := acc.Apply(ev)
		if observe != nil {
			if err := observe(out); err != nil {
				return ChatResponse{}, err
			}
		}
		if out.Done {
			break
		}
	}

	return acc.Response(), nil
}

// DrainStream consumes stream to completion, discarding intermediate
// pieces, and returns the finalized response.
func DrainStream(stream Stream) (ChatResponse, error) {
	return ConsumeStream(stream, nil)
}
