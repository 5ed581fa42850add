package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState means the callback carried a state token that is
	// unknown, already used, or expired.
	ErrInvalidState = errors.New("invalid or expired oauth state")

	// ErrNeedsReauthorization means the stored credential can no longer
	// be refreshed; the account must run the link flow again.
	ErrNeedsReauthorization = errors.New("account needs reauthorization")

	// ErrNoCredential means the account was never linked or has been
	// deactivated.
	ErrNoCredential = errors.New("no active credential for account")
)

// TokenExchangeError wraps a failed code-for-token exchange.
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }
