package cas

import (
	"fmt"

	"github.com/dgryski/go-farm"
)

type Hash uint64

func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

func HashBytes(b []byte) Hash {
	return Hash(farm.Hash64(b))
}

// CAS stores immutable blobs under the hash of their contents.
type CAS interface {
	Put(data []byte) (Hash, error)
	Get(hash Hash) ([]byte, bool)
	Has(hash Hash) bool
}

// Retrieve fetches a blob and fails if it is missing.
func Retrieve(c CAS, hash Hash) ([]byte, error) {
	data, ok := c.Get(hash)
	if !ok {
		return nil, fmt.Errorf("hash not found in CAS: %s", hash)
	}
	return data, nil
}
