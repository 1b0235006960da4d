// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by the audit engine. By keeping this package
// free of net/http dependencies, deeper layers can read actor attribution without
// pulling in HTTP-related code.
//
// Attribution travels on the context of the unit of work, never through a shared
// global, so concurrent units cannot corrupt each other's actor identity. The values
// die with the request context, which also covers the "clear on every exit path"
// requirement without explicit cleanup code.
//
// Usage in the engine (read values):
//
//	actorID := requestcontext.ActorID(ctx)
//	ip := requestcontext.SourceIP(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActor(ctx, userID)
//	ctx = requestcontext.WithClientMetadata(ctx, ip, userAgent)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithSessionKey(ctx, "sess-123")
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey     struct{}
	sessionKeyKey  struct{}
	sourceIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	unitIDKey      struct{}
	requestTimeKey struct{}
)

// -----------------------------------------------------------------------------
// Actor attribution (user, session)
// -----------------------------------------------------------------------------

// ActorID retrieves the authenticated actor's user ID from the context.
// Returns the empty string for anonymous or system units of work.
func ActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(actorIDKey{}).(string); ok {
		return actorID
	}
	return ""
}

// WithActor injects the acting user's ID into the context.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// SessionKey retrieves the session token identifier from the context.
func SessionKey(ctx context.Context) string {
	if key, ok := ctx.Value(sessionKeyKey{}).(string); ok {
		return key
	}
	return ""
}

// WithSessionKey injects a session token identifier into the context.
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, sessionKeyKey{}, sessionKey)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// SourceIP retrieves the client IP address from the context.
func SourceIP(ctx context.Context) string {
	if ip, ok := ctx.Value(sourceIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, sourceIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, sourceIPKey{}, sourceIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// UnitID retrieves the unit-of-work ID from the context. Pending before-snapshots
// are keyed by this ID so staged entries can be released when the unit ends.
func UnitID(ctx context.Context) string {
	if unitID, ok := ctx.Value(unitIDKey{}).(string); ok {
		return unitID
	}
	return ""
}

// WithUnitID injects a unit-of-work ID into the context.
func WithUnitID(ctx context.Context, unitID string) context.Context {
	return context.WithValue(ctx, unitIDKey{}, unitID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
