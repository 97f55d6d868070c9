package normalize

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// EntityFileKey maps an entity identifier to a file-name-safe key that is
// unique per identifier: a readable sanitized prefix plus a short digest of
// the raw id, so "a/b" and "a_b" never collide.
func EntityFileKey(entityID string) string {
	prefix := unsafeFileChars.ReplaceAllString(strings.TrimSpace(entityID), "_")
	if len(prefix) > 48 {
		prefix = prefix[:48]
	}
	sum := sha256.Sum256([]byte(entityID))
	return fmt.Sprintf("%s-%x", prefix, sum[:6])
}

// FileHash computes the hex-encoded SHA-256 of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
