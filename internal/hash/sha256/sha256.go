// Package sha256 fingerprints finished output units.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex SHA-256 of an output unit's content. The
// digest is logged when a unit is mirrored so a bucket object can be
// checked against its local copy.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
