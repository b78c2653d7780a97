// Package content implements the content-addressable byte store.
//
// Every stored object is keyed by the XxHash64 of its bytes, rendered as 16
// lowercase hex characters. Objects live under
//
//	<root>/<variant>/<h[0:2]>/<h[2:4]>/<h>
//
// so the location of any (hash, variant) pair is a pure function of the pair.
package content

import (
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// HashLen is the length of a rendered content hash.
const HashLen = 16

// Hash identifies stored content.
type Hash string

// Sum hashes data with XxHash64 (seed 0).
func Sum(data []byte) Hash {
	return FromUint64(xxhash.Sum64(data))
}

// FromUint64 renders a raw 64-bit digest.
func FromUint64(v uint64) Hash {
	return Hash(fmt.Sprintf("%016x", v))
}

// ParseHash validates s as a rendered content hash.
// Uppercase hex is accepted and normalized.
func ParseHash(s string) (Hash, error) {
	if len(s) != HashLen {
		return "", domainerrors.InvalidArgumentf("hash must be %d hex characters, got %q", HashLen, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", domainerrors.InvalidArgumentf("hash %q is not hex", s)
	}
	return Hash(hex.EncodeToString(b)), nil
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return string(h)
}
