// Package guid converts textual GUIDs into the byte layout Windows uses in memory.
package guid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPattern is returned when a GUID string cannot be parsed.
var ErrInvalidPattern = errors.New("GUID格式无效")

// Size is the length of a GUID in bytes.
const Size = 16

// Parse parses s and returns its 16 bytes in the in-memory GUID layout:
// Data1, Data2 and Data3 little-endian, Data4 as is. This is the order in
// which a provider GUID is embedded in a PE image.
//
// Accepted forms are those of uuid.Parse, for example
// "{f4e1897c-bb5d-5668-f1d8-040f4d8dd344}" or
// "f4e1897cbb5d5668f1d8040f4d8dd344".
func Parse(s string) ([]byte, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, s, err)
	}
	return ToBytes(id), nil
}

// ToBytes returns id in the in-memory GUID layout.
func ToBytes(id uuid.UUID) []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	b[0], b[1], b[2], b[3] = id[3], id[2], id[1], id[0]
	b[4], b[5] = id[5], id[4]
	b[6], b[7] = id[7], id[6]
	return b
}

// String formats a 16-byte in-memory GUID in canonical braced form.
func String(b []byte) string {
	if len(b) != Size {
		return fmt.Sprintf("% x", b)
	}
	var id uuid.UUID
	copy(id[:], b)
	id[0], id[1], id[2], id[3] = b[3], b[2], b[1], b[0]
	id[4], id[5] = b[5], b[4]
	id[6], id[7] = b[7], b[6]
	return "{" + strings.ToUpper(id.String()) + "}"
}
