package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey returns the hex SHA-256 of its parts joined by NUL bytes. Callers
// pass the scope a summary depends on (runtime, checkpoint) followed by the
// normalized dialogue, so equal inputs under equal scopes map to one key.
func CacheKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// ShortKey returns the first 16 characters of a cache key, for log lines.
func ShortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
