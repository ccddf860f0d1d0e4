package llm

import "context"

// Provider is the minimal interface a chat backend must implement.
//
// Implementations are expected to:
// - treat the request as read-only
// - return an *LLMError (or wrap one) for endpoint/HTTP errors
// - honor ctx cancellation
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)
}

// Client is the SDK entrypoint over a Provider.
type Client struct {
	provider    Provider
	defaultOpts []RequestOption
}

type ClientOption func(*Client)

// WithDefaultRequestOptions applies opts to every request sent through
// the client, before per-call options.
func WithDefaultRequestOptions(opts ...RequestOption) ClientOption {
	return func(c *Client) {
		c.defaultOpts = append(c.defaultOpts, opts...)
	}
}

func New(provider Provider, opts ...ClientOption) *Client {
	c := &Client{provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Chat sends messages and blocks for the complete response.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ...RequestOption) (ChatResponse, error) {
	return c.provider.Chat(ctx, c.buildRequest(messages, opts))
}

// ChatStream sends messages and returns the event stream. The caller owns
// the stream and must Close it; abandoning it before the end marker is
// safe and simply discards the partial response.
func (c *Client) ChatStream(ctx context.Context, messages []Message, opts ...RequestOption) (Stream, error) {
	return c.provider.ChatStream(ctx, c.buildRequest(messages, opts))
}

// ChatRequest sends a prebuilt request without applying client defaults.
func (c *Client) ChatRequest(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return c.provider.Chat(ctx, req)
}

// ChatStreamRequest is the streaming counterpart of ChatRequest.
func (c *Client) ChatStreamRequest(ctx context.Context, req ChatRequest) (Stream, error) {
	return c.provider.ChatStream(ctx, req)
}

func (c *Client) buildRequest(messages []Message, opts []RequestOption) ChatRequest {
	req := newChatRequest("", messages...)
	applyOptions(&req, c.defaultOpts...)
	applyOptions(&req, opts...)
	return req
}
