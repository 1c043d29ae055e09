package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Hex returns the lowercase hex encoding of the SHA256 hash of the data.
func SHA256Hex(data []byte) string {
	return hex.EncodeToString(SHA256(data))
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of left
// and right data.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	var hasher = sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// SortedPairHash hashes two nodes after ordering them bytewise, so that the
// result does not depend on which side each node came from.
func SortedPairHash(a []byte, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return SimpleHashFromTwoHashes(a, b)
}
