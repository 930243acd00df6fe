package util

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// HashSHA256 returns the sha256 digest of s encoded as padded base64 with the
// URL safe alphabet ('/' -> '_', '+' -> '-').
func HashSHA256(s []byte) string {
	sum := sha256.Sum256(s)
	return base64.URLEncoding.EncodeToString(sum[:])
}

// HashJSON hashes the canonical JSON encoding of v. encoding/json sorts map
// keys, so equal values always produce equal hashes.
func HashJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return HashSHA256(b), nil
}
