package deepseek

import "github.com/ozongzi/ds-api/llm"

func (p *Provider) mapRequest(req llm.ChatRequest) map[string]any {
	if p.hooks.BeforeMap != nil {
		req = req.Clone()
		p.hooks.BeforeMap(&req)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	wmessages := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wm := apiMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
			Prefix:  m.Prefix,
		}
		if m.Role == llm.RoleTool {
			wm.ToolCallID = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			wm.ToolCalls = make([]apiToolCall, 0, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, apiToolCall{
					Index: i,
					ID:    tc.ID,
					Type:  "function",
					Function: apiFunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		wmessages = append(wmessages, wm)
	}

	m := map[string]any{
		"model":    model,
		"messages": wmessages,
	}

	if req.Temperature != nil {
		m["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		m["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		m["max_tokens"] = *req.MaxTokens
	}
	if req.PresencePenalty != nil {
		m["presence_penalty"] = *req.PresencePenalty
	}
	if req.FrequencyPenalty != nil {
		m["frequency_penalty"] = *req.FrequencyPenalty
	}
	if len(req.Stop) > 0 {
		m["stop"] = req.Stop
	}
	if req.LogProbs != nil {
		m["logprobs"] = *req.LogProbs
	}
	if req.TopLogProbs != nil {
		m["top_logprobs"] = *req.TopLogProbs
	}
	if req.ResponseFormat != nil {
		m["response_format"] = req.ResponseFormat
	}
	if req.StreamOptions != nil {
		m["stream_options"] = req.StreamOptions
	}
	if req.Thinking != nil {
		m["thinking"] = map[string]any{"type": string(*req.Thinking)}
	}

	if len(req.Tools) > 0 {
		wtools := make([]apiTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			wtools = append(wtools, apiTool{
				Type: "function",
				Function: apiFunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
					Strict:      t.Strict,
				},
			})
		}
		m["tools"] = wtools
	}
	if req.ToolChoice != nil {
		m["tool_choice"] = mapToolChoice(*req.ToolChoice)
	}

	for k, v := range req.Extra {
		m[k] = v
	}
	if p.hooks.PatchRequest != nil {
		p.hooks.PatchRequest(m)
	}
	return m
}

func mapToolChoice(tc llm.ToolChoice) any {
	switch tc.Mode {
	case llm.ToolChoiceNone:
		return "none"
	case llm.ToolChoiceRequired:
		return "required"
	case llm.ToolChoiceFunction:
		return map[string]any{
			"type": "function",
			"function": map[string]any{
				"name": tc.FunctionName,
			},
		}
	case llm.ToolChoiceAuto:
		fallthrough
	default:
		return "auto"
	}
}
