package llm

import (
	"encoding/json"
	"net/http"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is the server's reason for ending a choice.
//
// It is an open string set: values the SDK does not know about are passed
// through verbatim so a forward-compatible server value never fails decode.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonToolCalls     FinishReason = "tool_calls"

	// FinishReasonInsufficientResource is returned by DeepSeek when the
	// request was cut short because of system resource / balance limits.
	FinishReasonInsufficientResource FinishReason = "insufficient_system_resource"

	// FinishReasonUnknown marks a choice that was finalized without the
	// server ever reporting a finish reason (e.g. [DONE] with an open choice).
	FinishReasonUnknown FinishReason = "unknown"
)

// Message is a canonical chat message.
//
// For tool results, use RoleTool with ToolCallID set.
// For assistant tool calls, use ToolCalls.
type Message struct {
	Role Role

	Content string

	// ReasoningContent is the model's chain-of-thought output, returned by
	// reasoner models. It is response-side only and never sent back.
	ReasoningContent string

	// Name is an optional sender name supported by some endpoints.
	Name string

	ToolCallID string
	ToolCalls  []ToolCall

	// Prefix forces the model to begin its answer with this assistant
	// message's content (DeepSeek beta). Only meaningful on the last
	// message of a request when its role is assistant.
	Prefix bool
}

func System(text string) Message    { return Message{Role: RoleSystem, Content: text} }
func User(text string) Message      { return Message{Role: RoleUser, Content: text} }
func Assistant(text string) Message { return Message{Role: RoleAssistant, Content: text} }
func ToolResult(toolCallID, text string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Content: text}
}

func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return out
}

// ToolCall is a finalized tool/function call requested by the model.
//
// Arguments is the complete argument text. The server streams it in chunks
// and does not guarantee valid JSON; parsing is the caller's responsibility.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolDefinition struct {
	Name        string
	Description string

	// InputSchema is typically a JSON Schema object.
	InputSchema json.RawMessage

	// Strict enables strict schema adherence for the call (beta).
	Strict bool
}

type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice models the caller's preference for tool usage.
//
// For ToolChoiceFunction, set FunctionName.
type ToolChoice struct {
	Mode         ToolChoiceMode
	FunctionName string
}

func AutoToolChoice() ToolChoice     { return ToolChoice{Mode: ToolChoiceAuto} }
func NoneToolChoice() ToolChoice     { return ToolChoice{Mode: ToolChoiceNone} }
func RequiredToolChoice() ToolChoice { return ToolChoice{Mode: ToolChoiceRequired} }
func FunctionToolChoice(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceFunction, FunctionName: name}
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// Details contains the optional DeepSeek usage breakdown fields.
	Details *UsageDetails
}

type UsageDetails struct {
	PromptCacheHitTokens  int
	PromptCacheMissTokens int

	// ReasoningTokens is nested under completion_tokens_details on the wire.
	ReasoningTokens int
}

type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
)

// ResponseFormat models the response_format request object.
//
// json_object guarantees the generated message is valid JSON; the prompt
// must still instruct the model to produce JSON.
type ResponseFormat struct {
	Type ResponseFormatType `json:"type"`
}

type StreamOptions struct {
	// IncludeUsage asks the server to send a usage chunk before [DONE].
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type ThinkingMode string

const (
	ThinkingEnabled  ThinkingMode = "enabled"
	ThinkingDisabled ThinkingMode = "disabled"
)

type TransportOptions struct {
	// Headers contains per-request header overrides/additions.
	Headers http.Header
}

type ChatRequest struct {
	Model    string
	Messages []Message

	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	PresencePenalty  *float64
	FrequencyPenalty *float64
	Stop             []string

	ResponseFormat *ResponseFormat

	LogProbs    *bool
	TopLogProbs *int

	StreamOptions *StreamOptions

	// Thinking toggles the reasoner thinking mode for hybrid models.
	Thinking *ThinkingMode

	Tools      []ToolDefinition
	ToolChoice *ToolChoice

	Transport *TransportOptions

	// Extra carries endpoint-specific JSON fields merged into the request
	// body at the top level. Values must be JSON-marshalable.
	Extra map[string]any
}

func (r ChatRequest) Clone() ChatRequest {
	out := r
	out.Messages = append([]Message(nil), r.Messages...)
	for i := range out.Messages {
		out.Messages[i] = out.Messages[i].Clone()
	}
	if r.Tools != nil {
		out.Tools = append([]ToolDefinition(nil), r.Tools...)
	}
	if r.ToolChoice != nil {
		v := *r.ToolChoice
		out.ToolChoice = &v
	}
	if r.Stop != nil {
		out.Stop = append([]string(nil), r.Stop...)
	}
	if r.ResponseFormat != nil {
		v := *r.ResponseFormat
		out.ResponseFormat = &v
	}
	if r.StreamOptions != nil {
		v := *r.StreamOptions
		out.StreamOptions = &v
	}
	if r.Thinking != nil {
		v := *r.Thinking
		out.Thinking = &v
	}
	if r.Transport != nil {
		v := *r.Transport
		v.Headers = r.Transport.Headers.Clone()
		out.Transport = &v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

type ChatChoice struct {
	Index        int
	Message      Message
	FinishReason FinishReason
}

type ChatResponse struct {
	ID      string
	Model   string
	Created time.Time

	SystemFingerprint string

	Choices []ChatChoice
	Usage   *Usage

	// Raw preserves the native payload for debugging/forward compatibility.
	Raw json.RawMessage
}

func (r ChatResponse) FirstText() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
