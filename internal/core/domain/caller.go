package domain

import "context"

// Caller is the authenticated identity behind a request. Claims are
// verified upstream; the core only reads them.
type Caller struct {
	Subject string
	Email   string
}

// Actor returns the best display identity: email when known, else subject.
func (c Caller) Actor() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

type callerCtxKey struct{}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, c)
}

// CallerFrom returns the caller stored in ctx.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerCtxKey{}).(Caller)
	return c, ok
}
