package hash

import (
	"crypto"
	"errors"
	"strconv"

	// Link the algorithms Git supports into the binary. Their init
	// functions register the hash in the `crypto` package.

	// Git still uses SHA-1 for the most part: https://git-scm.com/docs/hash-function-transition
	//nolint:gosec
	_ "crypto/sha1"
	_ "crypto/sha256"

	"github.com/zhleyai/git/protocol/object"
)

// ErrUnlinkedAlgorithm is returned when trying to use a hash algorithm that is
// not linked into the binary (e.g. MD5).
var ErrUnlinkedAlgorithm = errors.New("the algorithm is not linked into the binary")

// Object computes the id of a Git object. Git hashes objects with a header
// prepended to the content: "<type> <size>\0", where <type> is the ASCII
// object type and <size> the decimal content length. The header is what makes
// a blob containing "tree ..." hash differently from a tree with the same
// bytes, and it is mandated for interoperability: any two implementations
// must derive the same id for the same object.
//
// For example, a blob containing "test" is hashed as "blob 4\0test".
//
// Hashing itself cannot fail; an error is only returned when the algorithm is
// not linked into the binary.
func Object(algo crypto.Hash, t object.Type, data []byte) (Hash, error) {
	h, err := NewHasher(algo, t, int64(len(data)))
	if err != nil {
		return nil, err
	}

	if _, err = h.Write(data); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// NewHasher creates a hasher for a Git object of the given type and size. The
// object header is written before returning, so the caller only writes the
// object content.
func NewHasher(algo crypto.Hash, t object.Type, size int64) (Hasher, error) {
	if !algo.Available() { // Avoid a panic
		return Hasher{}, ErrUnlinkedAlgorithm
	}
	h := Hasher{Hash: algo.New()}

	chunks := [][]byte{
		t.Bytes(),
		[]byte(" "),
		[]byte(strconv.FormatInt(size, 10)),
		{0},
	}

	for _, chunk := range chunks {
		if _, err := h.Write(chunk); err != nil {
			return Hasher{}, err
		}
	}

	return h, nil
}
