// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	locale := requestcontext.Locale(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithLocale(ctx, "fr")
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	localeKey      struct{}
	actorIDKey     struct{}
)

var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyLocale      = localeKey{}
	ContextKeyActorID     = actorIDKey{}
)

// RequestID retrieves the request correlation id, or "" when unset.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request-scoped time, falling back to time.Now.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// Locale returns the negotiated locale tag, or "" when unset.
func Locale(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyLocale).(string); ok {
		return v
	}
	return ""
}

// WithLocale injects the negotiated locale tag.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ContextKeyLocale, locale)
}

// ActorID returns the authenticated administrator subject, or "".
func ActorID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyActorID).(string); ok {
		return v
	}
	return ""
}

// WithActorID injects the authenticated administrator subject.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}
