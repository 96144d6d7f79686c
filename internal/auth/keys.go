package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// KeyPrefix marks every issued key.
	KeyPrefix = "epf_"
	// DisplayPrefixLen is how much of the raw key is kept for display.
	DisplayPrefixLen = 12

	keyEntropyBytes = 32
)

// HashKey returns the hex SHA-256 digest used to store and look up keys.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GeneratedKey is a freshly minted credential. Raw must be shown to the
// caller once and then discarded.
type GeneratedKey struct {
	Raw     string
	Hash    string
	Display string
}

// GenerateKey mints a new random API key.
func GenerateKey() (GeneratedKey, error) {
	buf := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, fmt.Errorf("generate random key: %w", err)
	}
	raw := KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return GeneratedKey{
		Raw:     raw,
		Hash:    HashKey(raw),
		Display: raw[:DisplayPrefixLen],
	}, nil
}
