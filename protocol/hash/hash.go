// Package hash provides content addressing for Git objects.
//
// For more details about Git's object format, see:
// https://git-scm.com/book/en/v2/Git-Internals-Git-Objects
package hash

import (
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
)

// Hash is a raw object id. For SHA-1 it is 20 bytes long; the hex form is 40
// characters.
type Hash []byte

// Zero is the empty hash.
var Zero Hash

// ZeroHex is the all-zeros SHA-1 id in hex form. Git uses it as a placeholder
// for an object that does not exist, e.g. in ref creation and deletion
// commands and in the advertisement for an empty repository.
const ZeroHex = "0000000000000000000000000000000000000000"

// FromHex parses a hex-encoded object id. An empty string parses to Zero.
func FromHex(hs string) (Hash, error) {
	if len(hs) == 0 {
		return Zero, nil
	}

	b, err := hex.DecodeString(hs)
	if err != nil {
		return Zero, fmt.Errorf("invalid object id %q: %w", hs, err)
	}
	return Hash(b), nil
}

// MustFromHex is FromHex for ids known to be valid, e.g. literals in tests.
// It panics on invalid input.
func MustFromHex(hs string) Hash {
	h, err := FromHex(hs)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hash) String() string {
	return hex.EncodeToString(h)
}

// Is reports whether the two hashes name the same object.
func (h Hash) Is(other Hash) bool {
	return slices.Equal(h, other)
}

// IsZero reports whether the hash is empty or the all-zeros placeholder.
func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

// Hasher is a hash.Hash that has already consumed a Git object header.
type Hasher struct {
	hash.Hash
}
