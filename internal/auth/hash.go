package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// maskLength is the number of hex characters kept from the key digest.
const maskLength = 8

// HashKey returns the hex SHA-256 digest of key
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MaskKey returns a short, non-reversible hint identifying key
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	return HashKey(key)[:maskLength]
}
