package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type Hash struct {
	data []byte
}

func NewHash(data []byte) Hash {
	return Hash{data: data}
}

func (h Hash) ComputeHash() string {
	sum := sha256.Sum256(h.data)
	return hex.EncodeToString(sum[:])
}

// Of hashes the parts joined with ':'.
func Of(parts ...string) string {
	return NewHash([]byte(strings.Join(parts, ":"))).ComputeHash()
}
