package requestctx

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	s2sKeyIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		return context.WithValue(context.Background(), requestIDKey, requestID)
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithS2SKeyID marks the context as authenticated by a server-to-server
// signature and records which API key matched.
func WithS2SKeyID(ctx context.Context, keyID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, s2sKeyIDKey, keyID)
}

// S2SKeyID returns the matched API key identifier, or "" when the request was
// not S2S-authenticated.
func S2SKeyID(ctx context.Context) string {
	return stringValue(ctx, s2sKeyIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
