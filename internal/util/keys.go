package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var canonical cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	canonical = em
}

// Canonical encodes a key tuple with deterministic CBOR. Structurally equal
// tuples give equal bytes, so the result can index a map.
func Canonical(parts []any) ([]byte, error) {
	b, err := canonical.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("canonical key: %w", err)
	}
	return b, nil
}

// StorageKey returns prefix + ":" + the first 16 hex chars of the canonical
// bytes' SHA-256.
func StorageKey(prefix string, canon []byte) string {
	sum := sha256.Sum256(canon)
	return prefix + ":" + hex.EncodeToString(sum[:8])
}
