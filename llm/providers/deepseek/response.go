package deepseek

import "github.com/ozongzi/ds-api/llm"

func (p *Provider) mapResponse(r chatCompletionResponse) llm.ChatResponse {
	out := llm.ChatResponse{
		ID:                r.ID,
		Model:             r.Model,
		Created:           r.CreatedTime(),
		SystemFingerprint: r.SystemFingerprint,
		Choices:           make([]llm.ChatChoice, 0, len(r.Choices)),
	}
	out.Usage = mapUsage(r.Usage)

	for _, c := range r.Choices {
		msg := llm.Message{
			Role:             llm.RoleAssistant,
			Content:          c.Message.Content,
			ReasoningContent: c.Message.ReasoningContent,
			Name:             c.Message.Name,
		}
		if c.Message.Role != "" {
			msg.Role = llm.Role(c.Message.Role)
		}
		if len(c.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]llm.ToolCall, 0, len(c.Message.ToolCalls))
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			Message:      msg,
			FinishReason: mapFinishReason(c.FinishReason),
		})
	}
	return out
}

func mapUsage(u *chatCompletionUsage) *llm.Usage {
	if u == nil {
		return nil
	}
	out := &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	d := llm.UsageDetails{
		PromptCacheHitTokens:  u.intField("prompt_cache_hit_tokens"),
		PromptCacheMissTokens: u.intField("prompt_cache_miss_tokens"),
		ReasoningTokens:       u.intFieldInObject("completion_tokens_details", "reasoning_tokens"),
	}
	if d.PromptCacheHitTokens != 0 || d.PromptCacheMissTokens != 0 || d.ReasoningTokens != 0 {
		out.Details = &d
	}
	return out
}

// mapFinishReason passes unrecognized wire values through verbatim so a
// new server value is preserved rather than collapsed to "unknown".
func mapFinishReason(fr string) llm.FinishReason {
	switch fr {
	case "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	case "content_filter":
		return llm.FinishReasonContentFilter
	case "tool_calls", "function_call":
		return llm.FinishReasonToolCalls
	case "insufficient_system_resource":
		return llm.FinishReasonInsufficientResource
	case "":
		return ""
	default:
		return llm.FinishReason(fr)
	}
}
