package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashKey joins the parts with a separator that cannot appear in normal text
// and returns the hex sha256 of the result.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
