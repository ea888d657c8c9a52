package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// HashBytes returns the hex SHA-256 of data. Used for whole-file change detection.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex SHA-256 of s. Used for chunk content hashes.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashFile reads path and hashes its bytes.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}
