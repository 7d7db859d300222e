// Package content implements canonical text normalization and content
// hashing: turn text is never interpreted, only normalized and hashed
// so that whitespace/line-ending differences don't perturb downstream
// fingerprints.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Canonicalize normalizes text per spec: CRLF and bare CR become LF,
// then leading/trailing whitespace is trimmed. The result is already
// UTF-8 since Go strings are UTF-8 by construction.
func Canonicalize(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.TrimSpace(normalized)
}

// Hash returns the lowercase 64-hex-char SHA-256 of Canonicalize(text),
// or ("", false) when the canonical form is empty — callers must
// distinguish "unknown" (no hash) from "known-empty" (hash of "").
func Hash(text string) (string, bool) {
	canonical := Canonicalize(text)
	if canonical == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), true
}
