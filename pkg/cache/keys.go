package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength is the longest key a layer accepts.
const MaxKeyLength = 250

// ValidateKey checks if a cache key is valid.
//
// Rules:
// - Non-empty string
// - At most MaxKeyLength bytes
// - No control characters
// - No leading or trailing whitespace
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}

	return nil
}

// KeyPattern builds keys from a prefix and parts joined by a separator.
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a new key pattern with the given prefix and separator.
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{
		prefix:    prefix,
		separator: separator,
	}
}

// Build creates a cache key from the pattern and provided parts.
// Example: pattern.Build("user", "123") -> "user:123"
func (kp *KeyPattern) Build(parts ...string) string {
	var b strings.Builder
	b.WriteString(kp.prefix)
	for _, part := range parts {
		b.WriteString(kp.separator)
		b.WriteString(part)
	}
	return b.String()
}

// reports namespaces report payloads.
var reports = NewKeyPattern("report", ":")

// ReportKey returns the key of an analysis result computed over the dataset
// with the given fingerprint. An empty analysis names the full report.
func ReportKey(fingerprint, analysis string) string {
	if analysis == "" {
		analysis = "all"
	}
	return reports.Build(fingerprint, analysis)
}
