package eventstore

import "context"

type contextKey string

const (
	idempotencyIDKey contextKey = "idempotency_id"
	userIDKey        contextKey = "user_id"
)

// WithIdempotencyID attaches the id identifying a logical write. Retries of
// the same write must carry the same id.
func WithIdempotencyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idempotencyIDKey, id)
}

func IdempotencyIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idempotencyIDKey).(string)
	return id, ok && id != ""
}

// WithUserID attaches the principal performing the write.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
