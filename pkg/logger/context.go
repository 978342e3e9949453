package logger

import (
	"context"
	"log/slog"
	"sync"
)

type ctxKey struct{}

type entry struct {
	logger *slog.Logger
	scope  *scope
}

// scope collects fields for one request. It is shared by every context
// derived below WithScope, so the access log sees fields added by inner
// handlers.
type scope struct {
	mu     sync.Mutex
	fields []any
}

func (s *scope) add(fields []any) {
	s.mu.Lock()
	s.fields = append(s.fields, fields...)
	s.mu.Unlock()
}

func current(ctx context.Context) entry {
	if e, ok := ctx.Value(ctxKey{}).(entry); ok {
		return e
	}
	return entry{logger: LoggerWrapper()}
}

// WithScope starts a request scope on top of the current context logger.
func WithScope(ctx context.Context) context.Context {
	e := current(ctx)
	e.scope = &scope{}
	return context.WithValue(ctx, ctxKey{}, e)
}

// With returns a context whose logger carries fields. The fields are also
// recorded in the enclosing request scope, if any.
func With(ctx context.Context, fields ...any) context.Context {
	e := current(ctx)
	e.logger = e.logger.With(fields...)
	if e.scope != nil {
		e.scope.add(fields)
	}
	return context.WithValue(ctx, ctxKey{}, e)
}

// Annotate records fields in the request scope without deriving a context.
func Annotate(ctx context.Context, fields ...any) {
	if e := current(ctx); e.scope != nil {
		e.scope.add(fields)
	}
}

// ScopeFields returns a copy of the fields recorded in the request scope.
func ScopeFields(ctx context.Context) []any {
	e := current(ctx)
	if e.scope == nil {
		return nil
	}
	e.scope.mu.Lock()
	defer e.scope.mu.Unlock()
	return append([]any(nil), e.scope.fields...)
}

// From returns the logger stored in context, or the default logger.
func From(ctx context.Context) *slog.Logger {
	return current(ctx).logger
}
