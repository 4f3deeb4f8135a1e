package deck

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Fingerprint returns a stable content hash for a parsed card so re-importing
// a deck does not duplicate cards. Fields are lowercased, trimmed, and
// newline-normalized before hashing; the field separator prevents adjacent
// fields from running together.
func Fingerprint(question, answer, context string) string {
	clean := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.ReplaceAll(s, "\r\n", "\n")
	}
	normalized := clean(question) + "\n" + clean(answer) + "\n" + clean(context)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(normalized)))
}
