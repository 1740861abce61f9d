package task

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	idLength    = 8  // Default id size: 8 hex chars
	maxIDLength = 16 // Grow up to this on collision before falling back to the full hash
	nonceSize   = 16 // 128 bits of entropy
)

// GenerateID creates a unique task id using hash-based generation with
// adaptive length. It starts at idLength hex characters and grows up to
// maxIDLength to avoid collisions.
func GenerateID(title string, createdAt time.Time, existsFn func(string) bool) string {
	// Generate random nonce
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	// Create hash from title + timestamp + nonce
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte(createdAt.Format(time.RFC3339Nano)))
	h.Write(nonce)
	hexStr := hex.EncodeToString(h.Sum(nil))

	// Try progressively longer prefixes until we find a unique one
	for length := idLength; length <= maxIDLength; length++ {
		candidate := hexStr[:length]
		if !existsFn(candidate) {
			return candidate
		}
	}

	// Fallback: use the full hash (extremely unlikely to reach here)
	return hexStr
}
