// Package llm provides a DeepSeek chat-completions client SDK.
//
// Design goals:
//   - Stable domain model: callers build requests using canonical types (ChatRequest, Message, ToolDefinition).
//   - Explicit streaming: the provider emits StreamEvent values (text/reasoning/tool deltas, usage, done) and
//     callers can reconstruct final responses using Accumulator, ConsumeStream or DrainStream.
//   - Controlled escape hatches: provider-specific fields can be passed via ChatRequest.Extra, and
//     request-scoped headers via ChatRequest.Transport.
//
// The DeepSeek provider lives under llm/providers/deepseek and is responsible for mapping between the
// canonical model and the wire format. Multi-turn conversation state lives in llm/chatter.
package llm
