// Package ids provides the 128-bit, millisecond-precision, lexicographically
// sortable identifiers used throughout the domain model (Room, Connection,
// Recording, ...). Built on UUIDv7, which embeds a 48-bit millisecond Unix
// timestamp in its most significant bits, giving time-ordered sort order
// for free.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit time-ordered identifier.
type ID uuid.UUID

// Nil is the zero-value ID.
var Nil ID

// New generates a fresh time-ordered ID.
func New() ID {
	u, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global CSPRNG read fails, which on
		// any real OS indicates a fatal environment problem. Fall back to
		// a random v4 rather than ever returning a predictable ID.
		u = uuid.New()
	}
	return ID(u)
}

// Parse parses a canonical string form (e.g. from a KV key segment).
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("ids: parse %q: %w", s, err)
	}
	return ID(u), nil
}

// String returns the canonical dashed hex representation.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether this is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}

// MarshalText implements encoding.TextMarshaler so IDs serialize cleanly in
// JSON manifests and koanf-style config structures.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
