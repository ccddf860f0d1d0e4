package deepseek

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ozongzi/ds-api/llm"
)

// sseBody frames each payload as one SSE event.
func sseBody(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

func streamingProvider(t *testing.T, body string, opts ...Option) *Provider {
	t.Helper()
	return newTestProvider(t, func(*http.Request) (*http.Response, error) {
		return httpResponse(200, "text/event-stream", body), nil
	}, opts...)
}

func openStream(t *testing.T, p *Provider) llm.Stream {
	t.Helper()
	s, err := p.ChatStream(context.Background(), llm.BuildChatRequest(ModelChat, []llm.Message{llm.User("q")}))
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	return s
}

func TestChatStream_TextDeltas(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"id":"s1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"s1","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"s1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	))

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	if resp.FirstText() != "Hello" {
		t.Errorf("text = %q, want %q", resp.FirstText(), "Hello")
	}
	c := resp.Choices[0]
	if c.Message.Role != llm.RoleAssistant {
		t.Errorf("role = %q", c.Message.Role)
	}
	if c.FinishReason != llm.FinishReasonStop {
		t.Errorf("finish reason = %q", c.FinishReason)
	}
}

func TestChatStream_SetsStreamFlag(t *testing.T) {
	var sawStream bool
	p := newTestProvider(t, func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		sawStream = strings.Contains(string(b), `"stream":true`)
		return httpResponse(200, "text/event-stream", sseBody(`[DONE]`)), nil
	})

	s := openStream(t, p)
	defer s.Close()
	if !sawStream {
		t.Error("stream flag not set on wire request")
	}
}

func TestChatStream_ReasoningDeltas(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"let me "}}]}`,
		`{"choices":[{"index":0,"delta":{"reasoning_content":"think"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"42"}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	))

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	msg := resp.Choices[0].Message
	if msg.ReasoningContent != "let me think" {
		t.Errorf("reasoning = %q", msg.ReasoningContent)
	}
	if msg.Content != "42" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestChatStream_ToolCallDeltas(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	))

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	c := resp.Choices[0]
	if c.FinishReason != llm.FinishReasonToolCalls {
		t.Errorf("finish reason = %q", c.FinishReason)
	}
	if len(c.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", c.Message.ToolCalls)
	}
	tc := c.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "get_weather" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments != `{"city":"Paris"}` {
		t.Errorf("arguments = %q", tc.Arguments)
	}
}

func TestChatStream_UsageChunk(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"x"},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6,"prompt_cache_hit_tokens":3}}`,
		`[DONE]`,
	))

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	u := resp.Usage
	if u == nil || u.TotalTokens != 6 {
		t.Fatalf("usage = %+v", u)
	}
	if u.Details == nil || u.Details.PromptCacheHitTokens != 3 {
		t.Errorf("usage details = %+v", u.Details)
	}
}

func TestChatStream_DoneStopsReads(t *testing.T) {
	// Data buffered after [DONE] must never be surfaced.
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`,
		`[DONE]`,
		`{"choices":[{"index":0,"delta":{"content":" stale"}}]}`,
	))

	s := openStream(t, p)
	defer s.Close()

	var sawDone bool
	var text strings.Builder
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		text.WriteString(ev.TextDelta)
		if ev.Done() {
			sawDone = true
		}
	}

	if !sawDone {
		t.Error("terminal event not delivered")
	}
	if text.String() != "ok" {
		t.Errorf("text = %q, want %q", text.String(), "ok")
	}
}

func TestChatStream_MalformedChunk(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"ok"}}]}`,
		`{not json`,
		`[DONE]`,
	))

	s := openStream(t, p)
	defer s.Close()

	if _, err := s.Recv(); err != nil {
		t.Fatalf("first Recv() error = %v", err)
	}
	_, err := s.Recv()
	if !llm.IsDecode(err) {
		t.Fatalf("error = %v, want decode error", err)
	}
	e, _ := llm.AsLLMError(err)
	if string(e.Raw) != `{not json` {
		t.Errorf("raw = %q", e.Raw)
	}
}

func TestChatStream_ErrorChunk(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"error":{"message":"overloaded","type":"server_error"}}`,
	))

	_, err := openStream(t, p).Recv()
	e, ok := llm.AsLLMError(err)
	if !ok || e.Kind != llm.ErrKindServer {
		t.Fatalf("error = %v, want server error", err)
	}
	if e.Message != "overloaded" {
		t.Errorf("message = %q", e.Message)
	}
}

func TestChatStream_CloseWithoutDone_Lenient(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"partial"}}]}`,
	))

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	c := resp.Choices[0]
	if c.Message.Content != "partial" {
		t.Errorf("content = %q", c.Message.Content)
	}
	if c.FinishReason != llm.FinishReasonUnknown {
		t.Errorf("finish reason = %q, want unknown", c.FinishReason)
	}
}

func TestChatStream_CloseWithoutDone_Strict(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"partial"}}]}`,
	), WithStrictFinish())

	_, err := llm.DrainStream(openStream(t, p))
	if !llm.IsProtocolViolation(err) {
		t.Fatalf("error = %v, want protocol violation", err)
	}
}

func TestChatStream_CloseWithoutDone_StrictAllFinished(t *testing.T) {
	// Strict mode only objects when a choice is still open.
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`,
	), WithStrictFinish())

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	if resp.Choices[0].FinishReason != llm.FinishReasonStop {
		t.Errorf("finish reason = %q", resp.Choices[0].FinishReason)
	}
}

func TestChatStream_InsufficientResourceFinish(t *testing.T) {
	p := streamingProvider(t, sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"cut"},"finish_reason":"insufficient_system_resource"}]}`,
		`[DONE]`,
	))

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	if resp.Choices[0].FinishReason != llm.FinishReasonInsufficientResource {
		t.Errorf("finish reason = %q", resp.Choices[0].FinishReason)
	}
}

func TestChatStream_HTTPError(t *testing.T) {
	p := newTestProvider(t, func(*http.Request) (*http.Response, error) {
		return httpResponse(401, "application/json",
			`{"error":{"message":"invalid api key"}}`), nil
	})

	_, err := p.ChatStream(context.Background(), llm.BuildChatRequest(ModelChat, []llm.Message{llm.User("q")}))
	if !llm.IsAuth(err) {
		t.Fatalf("error = %v, want auth error", err)
	}
}

func TestChatStream_RecvAfterClose(t *testing.T) {
	p := streamingProvider(t, sseBody(`[DONE]`))

	s := openStream(t, p)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.Recv(); !errors.Is(err, llm.ErrStreamClosed) {
		t.Fatalf("error = %v, want ErrStreamClosed", err)
	}
}

func TestChatStream_CommentLinesSkipped(t *testing.T) {
	body := ": keep-alive\n\n" + sseBody(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`,
		`[DONE]`,
	)
	p := streamingProvider(t, body)

	resp, err := llm.DrainStream(openStream(t, p))
	if err != nil {
		t.Fatalf("DrainStream() error = %v", err)
	}
	if resp.FirstText() != "hi" {
		t.Errorf("text = %q", resp.FirstText())
	}
}
