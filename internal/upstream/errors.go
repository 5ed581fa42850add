package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no usable token exists for the account.
	ErrUnauthenticated = errors.New("account is not authenticated")

	// ErrRateLimited means the local limiter denied the call or the
	// provider kept answering 429 past the retry budget.
	ErrRateLimited = errors.New("provider rate limit reached")

	// ErrAuthenticationFailed means the provider rejected the token
	// even after a refresh.
	ErrAuthenticationFailed = errors.New("authentication failed after token refresh")

	// ErrNetwork means the call never produced an HTTP response within
	// the retry budget.
	ErrNetwork = errors.New("upstream network failure")
)

// ClientError is a non-retryable 4xx from the provider. The body is
// kept for diagnostics but must not be echoed to callers verbatim.
type ClientError struct {
	Status int
	Body   string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("provider rejected request: status=%d", e.Status)
}

// ServerError is a 5xx that survived the full retry budget.
type ServerError struct {
	Status   int
	Attempts int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("provider unavailable: status=%d after %d attempts", e.Status, e.Attempts)
}
