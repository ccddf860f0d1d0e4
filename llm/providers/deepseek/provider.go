// Package deepseek implements llm.Provider against the DeepSeek
// chat-completions API (https://api.deepseek.com/chat/completions).
package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ozongzi/ds-api/llm"
	"github.com/ozongzi/ds-api/llm/internal/transport"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"

	// ModelChat and ModelReasoner are the two DeepSeek model IDs.
	ModelChat     = "deepseek-chat"
	ModelReasoner = "deepseek-reasoner"
)

type Provider struct {
	name string

	apiKey string
	model  string
	path   string

	// strictFinish controls what happens when the transport closes the
	// stream before [DONE] while a choice is still open: lenient mode
	// finalizes with whatever was accumulated, strict mode surfaces a
	// protocol violation.
	strictFinish bool
	keepRaw      bool

	tr    *transport.Client
	hooks Hooks
}

var _ llm.Provider = (*Provider)(nil)

func New(apiKey string, opts ...Option) (*Provider, error) {
	tr, err := transport.New(DefaultBaseURL, nil)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:   "deepseek",
		apiKey: apiKey,
		model:  ModelChat,
		path:   "/chat/completions",
		tr:     tr,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.tr == nil {
		return nil, errors.New("deepseek: nil transport")
	}
	if p.tr.Logger == nil {
		p.tr.Logger = slog.Default()
	}

	return p, nil
}

type Option func(*Provider) error

func WithBaseURL(baseURL string) Option {
	return func(p *Provider) error {
		tr, err := transport.New(baseURL, p.tr.HTTPClient)
		if err != nil {
			return err
		}
		tr.DefaultHeaders = p.tr.DefaultHeaders.Clone()
		tr.UserAgent = p.tr.UserAgent
		tr.Logger = p.tr.Logger
		tr.Retry = p.tr.Retry
		p.tr = tr
		return nil
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) error {
		p.tr.HTTPClient = c
		return nil
	}
}

func WithUserAgent(ua string) Option {
	return func(p *Provider) error {
		p.tr.UserAgent = ua
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		if logger != nil {
			p.tr.Logger = logger
		}
		return nil
	}
}

// RetryConfig aliases the transport retry settings so callers outside
// the internal tree can configure them.
type RetryConfig = transport.RetryConfig

func WithRetry(cfg RetryConfig) Option {
	return func(p *Provider) error {
		p.tr.Retry = cfg
		return nil
	}
}

func WithDefaultHeader(key, value string) Option {
	return func(p *Provider) error {
		p.tr.DefaultHeaders.Add(key, value)
		return nil
	}
}

func WithChatCompletionsPath(path string) Option {
	return func(p *Provider) error {
		p.path = path
		return nil
	}
}

// WithDefaultModel sets the model used when the request leaves Model empty.
func WithDefaultModel(model string) Option {
	return func(p *Provider) error {
		p.model = model
		return nil
	}
}

// WithStrictFinish makes a stream that closes without [DONE] while a
// choice has no finish reason surface an ErrKindProtocol error instead
// of finalizing the choice with llm.FinishReasonUnknown.
func WithStrictFinish() Option {
	return func(p *Provider) error {
		p.strictFinish = true
		return nil
	}
}

// WithKeepRaw attaches the native JSON payload to responses and stream
// events. Off by default to reduce allocations.
func WithKeepRaw() Option {
	return func(p *Provider) error {
		p.keepRaw = true
		return nil
	}
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := p.validateRequest(req); err != nil {
		return llm.ChatResponse{}, err
	}

	wreq := p.mapRequest(req)
	hdr := p.defaultHeaders(req, "application/json")

	raw, err := p.tr.DoJSON(ctx, http.MethodPost, p.path, hdr, wreq)
	if err != nil {
		return llm.ChatResponse{}, p.mapError(err, raw)
	}

	var wresp chatCompletionResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return llm.ChatResponse{}, &llm.LLMError{
			Provider: p.name,
			Kind:     llm.ErrKindParse,
			Message:  "failed to decode response",
			Raw:      append([]byte(nil), raw...),
			Cause:    err,
		}
	}

	out := p.mapResponse(wresp)
	if p.keepRaw {
		out.Raw = append([]byte(nil), raw...)
	}
	return out, nil
}

func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}

	wreq := p.mapRequest(req)
	wreq["stream"] = true

	hdr := p.defaultHeaders(req, "text/event-stream")
	resp, err := p.tr.DoStream(ctx, http.MethodPost, p.path, hdr, wreq)
	if err != nil {
		var se *transport.HTTPStatusError
		if errors.As(err, &se) {
			return nil, p.mapError(err, se.Body)
		}
		return nil, p.mapError(err, nil)
	}

	return newStream(p, resp), nil
}

func (p *Provider) defaultHeaders(req llm.ChatRequest, accept string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if accept != "" {
		h.Set("Accept", accept)
	}
	if p.apiKey != "" {
		h.Set("Authorization", "Bearer "+p.apiKey)
	}
	if req.Transport != nil {
		for k, vs := range req.Transport.Headers {
			for _, v := range vs {
				h.Set(k, v)
			}
		}
	}
	if p.hooks.PatchHeaders != nil {
		p.hooks.PatchHeaders(h)
	}
	return h
}

func (p *Provider) validateRequest(req llm.ChatRequest) error {
	if req.Model == "" && p.model == "" {
		return &llm.LLMError{Provider: p.name, Kind: llm.ErrKindBadRequest, Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return &llm.LLMError{Provider: p.name, Kind: llm.ErrKindBadRequest, Message: "messages is required"}
	}
	return nil
}
