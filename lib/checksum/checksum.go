package checksum

import (
	"crypto/sha256"
	"hash"
)

// CalculateCheckSum folds the first four bytes of the sha256 digest of data
// into an int.
func CalculateCheckSum(data []byte) int {
	bytes := sha256.Sum256(data)
	return fold(bytes[:])
}

// Hash computes the same checksum as CalculateCheckSum over data written
// in pieces.
type Hash struct {
	h hash.Hash
}

func NewHash() *Hash {
	return &Hash{h: sha256.New()}
}

func (h *Hash) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hash) Sum() int {
	return fold(h.h.Sum(nil))
}

func fold(digest []byte) int {
	result := 0
	for i := 0; i < 4; i++ {
		result = result << 8
		result += int(digest[i])
	}

	return result
}
