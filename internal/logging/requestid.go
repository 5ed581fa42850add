// Package logging carries per-request identifiers through contexts so
// access-log lines and component logs for one call can be correlated.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type requestIDKey struct{}

// GenerateRequestID mints an 8-character hex request ID.
func GenerateRequestID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID from the context, or "" when the
// context carries none.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
