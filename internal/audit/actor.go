package audit

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// ActorResolver turns a raw credential into an actor id. A nil id with a nil
// error means anonymous.
type ActorResolver interface {
	ResolveActor(ctx context.Context, credential string) (*uuid.UUID, error)
}

// WithActor binds the authenticated actor to ctx. Stamps read it from there.
func WithActor(ctx context.Context, actor uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFrom returns the actor bound to ctx, or nil.
func ActorFrom(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(ctxKey{}).(uuid.UUID); ok {
		return &id
	}
	return nil
}
