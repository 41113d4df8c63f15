package chain

import (
	"crypto/rand"

	"github.com/btcsuite/btcutil/base58"
)

const idEntropyBytes = 8

// NewID returns a short random base58 identifier.
func NewID() string {
	return NewPrefixedID("")
}

// NewPrefixedID returns prefix followed by a random base58 identifier.
func NewPrefixedID(prefix string) string {
	b := make([]byte, idEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is unusable.
		panic("chain: failed to read random bytes: " + err.Error())
	}
	return prefix + base58.Encode(b)
}
