package codec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every call when the Layer is built without one.
const DefaultTimeout = 45 * time.Second

// #region layer
// Layer is the uniform invocation contract over the four generation services.
// It enforces one fixed deadline per call and never retries; fallback policy
// belongs to the caller.
type Layer struct {
	services map[Role]Service
	timeout  time.Duration
	logger   *zap.Logger
}

// NewLayer builds a Layer. A non-positive timeout selects DefaultTimeout.
func NewLayer(timeout time.Duration, logger *zap.Logger, services ...Service) *Layer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[Role]Service, len(services))
	for _, s := range services {
		m[s.Role] = s
	}
	return &Layer{services: m, timeout: timeout, logger: logger.Named("codec")}
}

// Timeout returns the per-call deadline.
func (l *Layer) Timeout() time.Duration {
	return l.timeout
}

// #endregion layer

// #region role-calls
// PrimaryAuthor calls the primary author service.
func (l *Layer) PrimaryAuthor(ctx context.Context, opts CallOptions) (string, error) {
	return l.Call(ctx, RolePrimaryAuthor, opts)
}

// FallbackAuthor calls the fallback author service.
func (l *Layer) FallbackAuthor(ctx context.Context, opts CallOptions) (string, error) {
	return l.Call(ctx, RoleFallbackAuthor, opts)
}

// Renderer calls the specialist renderer.
func (l *Layer) Renderer(ctx context.Context, opts CallOptions) (string, error) {
	return l.Call(ctx, RoleRenderer, opts)
}

// FallbackRenderer calls the fallback specialist renderer.
func (l *Layer) FallbackRenderer(ctx context.Context, opts CallOptions) (string, error) {
	return l.Call(ctx, RoleFallbackRenderer, opts)
}

// #endregion role-calls

// #region call
type outcome struct {
	text string
	err  error
}

// Call invokes the service bound to role under the layer deadline.
func (l *Layer) Call(ctx context.Context, role Role, opts CallOptions) (string, error) {
	svc, ok := l.services[role]
	if !ok || svc.Transport == nil {
		return "", fmt.Errorf("%w: %s", ErrNoService, role)
	}
	if err := ctx.Err(); err != nil {
		return "", &CallError{Kind: KindCanceled, Role: role, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req := Request{
		Messages:    opts.Messages,
		Model:       svc.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		JSON:        opts.JSON,
	}

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		text, err := svc.Transport.Complete(callCtx, req)
		done <- outcome{text: text, err: err}
	}()

	var text string
	var err error
	select {
	case out := <-done:
		text, err = l.classify(ctx, role, out.text, out.err)
	case <-callCtx.Done():
		// Transport did not return in time; its result is discarded.
		err = expired(ctx, role)
	}

	elapsed := time.Since(start)
	if err != nil {
		l.logger.Warn("call failed",
			zap.String("role", string(role)),
			zap.String("model", svc.Model),
			zap.String("kind", string(KindOf(err))),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", err
	}
	l.logger.Debug("call ok",
		zap.String("role", string(role)),
		zap.String("model", svc.Model),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", elapsed))
	return text, nil
}

// classify turns a transport result into text or a *CallError.
func (l *Layer) classify(parent context.Context, role Role, text string, err error) (string, error) {
	if err != nil {
		var ce *CallError
		if errors.As(err, &ce) {
			ce.Role = role
			return "", ce
		}
		if parent.Err() != nil {
			return "", &CallError{Kind: KindCanceled, Role: role, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &CallError{Kind: KindTimeout, Role: role, Err: err}
		}
		return "", &CallError{Kind: KindHTTP, Role: role, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &CallError{Kind: KindMalformed, Role: role, Body: "empty completion"}
	}
	return text, nil
}

func expired(parent context.Context, role Role) error {
	if err := parent.Err(); err != nil {
		return &CallError{Kind: KindCanceled, Role: role, Err: err}
	}
	return &CallError{Kind: KindTimeout, Role: role, Err: context.DeadlineExceeded}
}

// #endregion call
