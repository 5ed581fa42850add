// Package identity normalizes account identifiers at the API boundary.
// Older linked accounts carry integer identifiers from the legacy
// system; accounts created here use UUIDs. Both forms are parsed once
// into a tagged AccountID so the rest of the code only ever sees the
// canonical string key.
package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind discriminates the two identifier generations.
type Kind int

const (
	Legacy Kind = iota // positive integer from the legacy system
	Modern             // UUID
)

// AccountID is a normalized account identifier.
type AccountID struct {
	kind   Kind
	legacy int64
	modern uuid.UUID
}

// Parse accepts either a positive integer or a UUID string.
func Parse(raw string) (AccountID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AccountID{}, fmt.Errorf("parse account id: empty")
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return AccountID{}, fmt.Errorf("parse account id: non-positive legacy id %d", n)
		}
		return AccountID{kind: Legacy, legacy: n}, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return AccountID{}, fmt.Errorf("parse account id %q: %w", raw, err)
	}
	return AccountID{kind: Modern, modern: id}, nil
}

// NewModern mints a fresh UUID-backed account ID.
func NewModern() AccountID {
	return AccountID{kind: Modern, modern: uuid.New()}
}

// Kind reports which generation the identifier belongs to.
func (a AccountID) Kind() Kind { return a.kind }

// String returns the canonical storage key form.
func (a AccountID) String() string {
	if a.kind == Legacy {
		return strconv.FormatInt(a.legacy, 10)
	}
	return a.modern.String()
}
