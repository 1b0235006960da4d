package testutil

import (
	"context"

	"chronicle/pkg/requestcontext"
)

// ContextWithActor builds a context carrying full actor attribution, the way
// the middleware chain would for an authenticated request.
func ContextWithActor(actorID, sourceIP, sessionKey string) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actorID)
	ctx = requestcontext.WithClientMetadata(ctx, sourceIP, "test-agent/1.0")
	return requestcontext.WithSessionKey(ctx, sessionKey)
}

// ContextWithUnit adds a unit-of-work ID on top of actor attribution.
func ContextWithUnit(actorID, unitID string) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actorID)
	return requestcontext.WithUnitID(ctx, unitID)
}
