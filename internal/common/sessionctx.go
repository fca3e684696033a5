package common

import "context"

const (
	// SessionHeader carries the storefront session id on requests and responses.
	SessionHeader = "X-Session-ID"
	// SessionCookie is the cookie fallback for browsers.
	SessionCookie = "toko_session"
)

type ctxKey string

const sessionIDKey ctxKey = "session/id"

// WithSessionID stores the storefront session identifier on the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the session identifier from the context if present.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}
