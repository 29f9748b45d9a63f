package auth

import (
	"context"
)

type contextKey string

var (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// AnonymousActor is recorded when a request carries no identity
const AnonymousActor = "anonymous"

func SetActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the actor stored by the actor middleware, or AnonymousActor
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return AnonymousActor
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
