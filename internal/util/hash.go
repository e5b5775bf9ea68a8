package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortHash is a 12 character content fingerprint, used for cache busting.
func ShortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}
