package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

const urlSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestGeneratePKCEDerivationLaw(t *testing.T) {
	for i := 0; i < 50; i++ {
		verifier, challenge, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("generate pkce: %v", err)
		}

		sum := sha256.Sum256([]byte(verifier))
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		if challenge != want {
			t.Fatalf("challenge mismatch: got %s want %s", challenge, want)
		}
		if strings.HasSuffix(challenge, "=") {
			t.Fatalf("challenge carries padding: %s", challenge)
		}
	}
}

func TestGeneratePKCEVerifierShape(t *testing.T) {
	verifier, _, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("generate pkce: %v", err)
	}
	if len(verifier) < 43 || len(verifier) > 128 {
		t.Fatalf("verifier length %d outside RFC 7636 range", len(verifier))
	}
	for _, r := range verifier {
		if !strings.ContainsRune(urlSafeAlphabet, r) {
			t.Fatalf("verifier contains non-url-safe rune %q", r)
		}
	}
}

func TestS256ChallengeDeterministic(t *testing.T) {
	if S256Challenge("fixed-verifier") != S256Challenge("fixed-verifier") {
		t.Fatal("same verifier must yield same challenge")
	}
	if S256Challenge("verifier-a") == S256Challenge("verifier-b") {
		t.Fatal("different verifiers must not collide")
	}
	// Known vector from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := S256Challenge(verifier); got != want {
		t.Fatalf("rfc vector mismatch: got %s want %s", got, want)
	}
}

func TestGenerateStateTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := generateStateToken()
		if err != nil {
			t.Fatalf("generate state: %v", err)
		}
		if seen[s] {
			t.Fatalf("state token repeated: %s", s)
		}
		seen[s] = true
	}
}
