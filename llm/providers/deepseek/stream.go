package deepseek

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ozongzi/ds-api/llm"
)

// stream adapts the SSE event sequence to llm.Stream.
//
// One wire chunk can fan out into several events (reasoning delta, text
// delta, tool-call deltas, choice done), so decoded events queue in
// pending and Recv drains the queue before reading the next chunk.
type stream struct {
	p    *Provider
	resp *http.Response
	dec  *sseDecoder

	closed bool
	done   bool

	// finished tracks which of the seen choices reported a finish reason,
	// for the strict-finish policy on early transport close.
	seen     map[int]bool
	finished map[int]bool

	pending []llm.StreamEvent
}

var _ llm.Stream = (*stream)(nil)

func newStream(p *Provider, resp *http.Response) *stream {
	return &stream{
		p:        p,
		resp:     resp,
		dec:      newSSEDecoder(resp.Body),
		seen:     make(map[int]bool),
		finished: make(map[int]bool),
	}
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}

func (s *stream) Recv() (llm.StreamEvent, error) {
	for {
		if s.closed {
			return llm.StreamEvent{}, llm.ErrStreamClosed
		}
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		// Once [DONE] was observed nothing further is read, even if the
		// transport still has buffered data.
		if s.done {
			return llm.StreamEvent{}, io.EOF
		}

		data, err := s.dec.Next()
		if err != nil {
			if err == io.EOF {
				return s.finishWithoutSentinel()
			}
			return llm.StreamEvent{}, err
		}

		data = bytes.TrimSpace(data)
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1}, nil
		}

		if err := s.decodeChunk(data); err != nil {
			return llm.StreamEvent{}, err
		}
		// A chunk can be empty of meaningful deltas; read the next one.
	}
}

// finishWithoutSentinel handles a transport close with no [DONE]. Lenient
// mode synthesizes the terminal event so open choices finalize with their
// last recorded finish reason (or unknown); strict mode reports it as a
// protocol violation, distinct from malformed JSON.
func (s *stream) finishWithoutSentinel() (llm.StreamEvent, error) {
	s.done = true
	if s.p.strictFinish && s.openChoices() {
		return llm.StreamEvent{}, &llm.LLMError{
			Provider: s.p.name,
			Kind:     llm.ErrKindProtocol,
			Message:  "stream closed before [DONE] with unfinished choice",
		}
	}
	return llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1}, nil
}

func (s *stream) openChoices() bool {
	for idx := range s.seen {
		if !s.finished[idx] {
			return true
		}
	}
	return false
}

func (s *stream) decodeChunk(data []byte) error {
	var chunk chatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return &llm.LLMError{
			Provider: s.p.name,
			Kind:     llm.ErrKindParse,
			Message:  "failed to decode stream chunk",
			Raw:      append([]byte(nil), data...),
			Cause:    err,
		}
	}
	if chunk.Error != nil {
		return &llm.LLMError{
			Provider: s.p.name,
			Kind:     llm.ErrKindServer,
			Message:  chunk.Error.Message,
			Raw:      append([]byte(nil), data...),
		}
	}

	if chunk.Usage != nil {
		s.push(data, llm.StreamEvent{
			Kind:        llm.StreamEventUsage,
			ChoiceIndex: -1,
			Usage:       mapUsage(chunk.Usage),
		})
	}

	for _, choice := range chunk.Choices {
		s.seen[choice.Index] = true
		role := llm.Role(choice.Delta.Role)

		if choice.Delta.ReasoningContent != "" {
			s.push(data, llm.StreamEvent{
				Kind:           llm.StreamEventReasoningDelta,
				ChoiceIndex:    choice.Index,
				Role:           role,
				ReasoningDelta: choice.Delta.ReasoningContent,
			})
			role = ""
		}
		if choice.Delta.Content != "" {
			s.push(data, llm.StreamEvent{
				Kind:        llm.StreamEventTextDelta,
				ChoiceIndex: choice.Index,
				Role:        role,
				TextDelta:   choice.Delta.Content,
			})
			role = ""
		}
		for _, tc := range choice.Delta.ToolCalls {
			s.push(data, llm.StreamEvent{
				Kind:        llm.StreamEventToolCallDelta,
				ChoiceIndex: choice.Index,
				Role:        role,
				ToolCallDelta: &llm.ToolCallDelta{
					Index:          tc.Index,
					ID:             tc.ID,
					Name:           tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				},
			})
			role = ""
		}
		if choice.FinishReason != "" {
			s.finished[choice.Index] = true
			s.push(data, llm.StreamEvent{
				Kind:         llm.StreamEventChoiceDone,
				ChoiceIndex:  choice.Index,
				FinishReason: mapFinishReason(choice.FinishReason),
			})
		}
	}
	return nil
}

func (s *stream) push(raw []byte, ev llm.StreamEvent) {
	if s.p.keepRaw {
		ev.Raw = append([]byte(nil), raw...)
	}
	s.pending = append(s.pending, ev)
}
