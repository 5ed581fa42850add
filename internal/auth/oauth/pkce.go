package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// 64 random bytes encode to an 86-character verifier, inside the
// 43-128 character range RFC 7636 allows.
const verifierEntropyBytes = 64

// GeneratePKCE returns a fresh code verifier and its S256 challenge.
func GeneratePKCE() (verifier, challenge string, err error) {
	buf := make([]byte, verifierEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate code verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	return verifier, S256Challenge(verifier), nil
}

// S256Challenge derives the code challenge from a verifier:
// base64url(SHA-256(verifier)) with padding stripped.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateStateToken mints the CSRF state for one authorization.
func generateStateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
