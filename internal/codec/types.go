package codec

import (
	"context"
	"errors"
	"fmt"
)

// #region role
// Role names one of the four generation services a turn may call.
type Role string

const (
	RolePrimaryAuthor    Role = "primary_author"
	RoleFallbackAuthor   Role = "fallback_author"
	RoleRenderer         Role = "renderer"
	RoleFallbackRenderer Role = "fallback_renderer"
)

// Roles lists every role in call-priority order.
func Roles() []Role {
	return []Role{RolePrimaryAuthor, RoleFallbackAuthor, RoleRenderer, RoleFallbackRenderer}
}

// #endregion role

// #region messages
// MessageRole tags a chat message.
type MessageRole string

const (
	MessageSystem    MessageRole = "system"
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
)

// Message is one role-tagged entry of a generation request.
type Message struct {
	Role    MessageRole `json:"role" yaml:"role"`
	Content string      `json:"content" yaml:"content"`
}

// System, User and Assistant build messages.
func System(content string) Message    { return Message{Role: MessageSystem, Content: content} }
func User(content string) Message      { return Message{Role: MessageUser, Content: content} }
func Assistant(content string) Message { return Message{Role: MessageAssistant, Content: content} }

// #endregion messages

// #region request
// CallOptions is what a caller supplies for one generation call.
type CallOptions struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSON        bool // request structured (JSON object) output
}

// Request is what a Transport receives: the call options plus the model
// identifier bound to the service role.
type Request struct {
	Messages    []Message `json:"messages" yaml:"messages"`
	Model       string    `json:"model" yaml:"model"`
	Temperature float64   `json:"temperature" yaml:"temperature"`
	MaxTokens   int       `json:"max_tokens" yaml:"max_tokens"`
	JSON        bool      `json:"json" yaml:"json"`
}

// #endregion request

// #region transport
// Transport performs one completion against a generation backend. It must
// honor ctx cancellation; the Layer enforces the deadline either way.
type Transport interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f TransportFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Service binds a role to a model and the transport that reaches it.
type Service struct {
	Role      Role
	Model     string
	Transport Transport
}

// #endregion transport

// #region errors
// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindHTTP      ErrorKind = "http"
	KindMalformed ErrorKind = "malformed"
	KindCanceled  ErrorKind = "canceled"
)

var (
	ErrTimeout   = errors.New("generation call timed out")
	ErrHTTP      = errors.New("generation service returned an error status")
	ErrMalformed = errors.New("generation service returned a malformed response")
	ErrCanceled  = errors.New("generation call canceled")
	ErrNoService = errors.New("no service configured for role")
)

// CallError is the typed failure of a generation call.
type CallError struct {
	Kind   ErrorKind
	Role   Role
	Status int    // HTTP status, 0 when the request never got one
	Body   string // truncated error body, if any
	Err    error
}

func (e *CallError) Error() string {
	msg := string(e.Kind)
	if e.Role != "" {
		msg = string(e.Role) + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s status %d", msg, e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

// Is matches the kind sentinels so callers can write errors.Is(err, ErrTimeout).
func (e *CallError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

// KindOf reports the kind of a call failure, or "" for nil and foreign errors.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// #endregion errors
