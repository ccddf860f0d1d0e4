package llm

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrKindAuth       ErrorKind = "auth"
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindBadRequest ErrorKind = "bad_request"
	ErrKindNotFound   ErrorKind = "not_found"
	ErrKindServer     ErrorKind = "server"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindCanceled   ErrorKind = "canceled"

	// ErrKindParse marks a response body or stream chunk that is not valid
	// JSON. A parse failure terminates the stream: a malformed chunk could
	// hide a truncated tool-call argument, so it is never skipped.
	ErrKindParse ErrorKind = "parse"

	// ErrKindProtocol marks a stream that violated the SSE contract, e.g.
	// the connection closed before [DONE] while a choice was still open.
	ErrKindProtocol ErrorKind = "protocol"

	// ErrKindHistory marks a conversation-state misuse, e.g. appending a
	// tool result whose tool_call_id matches no pending tool call.
	ErrKindHistory ErrorKind = "history"

	ErrKindUnknown ErrorKind = "unknown"
)

// LLMError is the SDK's error container: stable classification, raw
// payload access and retry hints.
type LLMError struct {
	Provider string
	Kind     ErrorKind

	HTTPStatus   int
	ProviderCode string
	Message      string

	Retryable bool

	// Raw is the offending payload, when one exists (HTTP response body
	// or stream chunk).
	Raw []byte

	Cause error
}

func (e *LLMError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("llm %s: %s", e.Provider, msg)
	}
	return fmt.Sprintf("llm: %s", msg)
}

func (e *LLMError) Unwrap() error { return e.Cause }

func AsLLMError(err error) (*LLMError, bool) {
	var e *LLMError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func errKindIs(err error, kind ErrorKind) bool {
	e, ok := AsLLMError(err)
	return ok && e.Kind == kind
}

// IsRateLimit reports whether err is a rate-limit rejection.
func IsRateLimit(err error) bool { return errKindIs(err, ErrKindRateLimit) }

// IsAuth reports whether err is an authentication/authorization failure.
func IsAuth(err error) bool { return errKindIs(err, ErrKindAuth) }

// IsDecode reports whether err is a JSON decode failure of a response
// body or stream chunk.
func IsDecode(err error) bool { return errKindIs(err, ErrKindParse) }

// IsProtocolViolation reports whether err is a stream protocol violation,
// as opposed to malformed JSON.
func IsProtocolViolation(err error) bool { return errKindIs(err, ErrKindProtocol) }

// IsHistoryMisuse reports whether err is a conversation-state misuse.
func IsHistoryMisuse(err error) bool { return errKindIs(err, ErrKindHistory) }

// IsTemporary reports whether the failed call may be retried by the caller.
// The SDK itself never retries a chat call.
func IsTemporary(err error) bool {
	e, ok := AsLLMError(err)
	return ok && e.Retryable
}
