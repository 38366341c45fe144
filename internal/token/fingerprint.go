package token

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the ledger key for a signed token. Raw purpose tokens are
// never stored.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
