// Package formula protects math-like spans during translation by replacing
// them with opaque placeholder tokens, and restores them afterwards with
// structural validation.
//
// The token format is [[FORMULA_<index>_<shortHash>]]: uppercase,
// underscore-separated, and bracket-delimited so translation models are
// unlikely to mangle it.
package formula

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Detection order matters: display math first (longest spans), then
	// bracket/paren forms, then single-dollar inline math.
	reDisplayDollar = regexp.MustCompile(`(?s)\$\$.+?\$\$`)
	reBracketMath   = regexp.MustCompile(`(?s)\\\[.+?\\\]`)
	reParenMath     = regexp.MustCompile(`(?s)\\\(.+?\\\)`)
	reInlineDollar  = regexp.MustCompile(`\$[^$\n]+\$`)

	reToken = regexp.MustCompile(`\[\[FORMULA_(\d+)_([0-9a-f]{8})\]\]`)
)

// TokenMap records the placeholder tokens produced by a single Protect call
// and the original spans they stand for. It is valid for exactly one
// protect/restore round trip.
type TokenMap struct {
	tokens    []string          // insertion order
	originals map[string]string // token -> original span
}

// Len returns the number of protected spans
func (m *TokenMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.tokens)
}

// Tokens returns the placeholder tokens in insertion order
func (m *TokenMap) Tokens() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.tokens))
	copy(out, m.tokens)
	return out
}

func (m *TokenMap) add(span string) string {
	token := fmt.Sprintf("[[FORMULA_%d_%s]]", len(m.tokens), shortHash(span))
	m.tokens = append(m.tokens, token)
	m.originals[token] = span
	return token
}

func newTokenMap() *TokenMap {
	return &TokenMap{originals: make(map[string]string)}
}

// shortHash returns the first 8 hex characters of the SHA-256 of s
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}

// Protect scans text for math-like spans ($$...$$, \[...\], \(...\), $...$)
// and replaces each with a unique placeholder token. It returns the
// protected text and the token map needed for restoration. A text without
// math spans is returned unchanged with an empty map.
func Protect(text string) (string, *TokenMap) {
	m := newTokenMap()
	replace := func(span string) string { return m.add(span) }

	protected := reDisplayDollar.ReplaceAllStringFunc(text, replace)
	protected = reBracketMath.ReplaceAllStringFunc(protected, replace)
	protected = reParenMath.ReplaceAllStringFunc(protected, replace)
	protected = reInlineDollar.ReplaceAllStringFunc(protected, replace)

	return protected, m
}

// ProtectWhole replaces the entire text with a single placeholder token.
// Used for blocks that are formula-like in their entirety (BlockFormula
// blocks), which must never reach a translation model piecemeal.
func ProtectWhole(text string) (string, *TokenMap) {
	m := newTokenMap()
	if strings.TrimSpace(text) == "" {
		return text, m
	}
	return m.add(text), m
}

// IsTokenOnly reports whether text consists solely of placeholder tokens
// and whitespace. Such a block carries no translatable content.
func IsTokenOnly(text string) bool {
	stripped := reToken.ReplaceAllString(text, "")
	return strings.TrimSpace(stripped) == ""
}

// RestoreError describes a failed placeholder restoration. Callers fall
// back to the original untranslated text when they see one.
type RestoreError struct {
	Reason string
	Token  string
}

// Error implements the error interface for RestoreError
func (e *RestoreError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("formula restore failed: %s (%s)", e.Reason, e.Token)
	}
	return "formula restore failed: " + e.Reason
}

// Restore re-inserts the original spans for every token in translated.
// It validates that each token appears exactly once and that no token
// fragments remain afterwards; any mismatch means the translation model
// corrupted or dropped a token, and the caller must fall back to the
// original text rather than emit partial output.
func Restore(translated string, m *TokenMap) (string, error) {
	if m.Len() == 0 {
		return translated, nil
	}

	for _, token := range m.tokens {
		switch n := strings.Count(translated, token); {
		case n == 0:
			return "", &RestoreError{Reason: "token missing from translation", Token: token}
		case n > 1:
			return "", &RestoreError{Reason: "token duplicated in translation", Token: token}
		}
	}

	restored := translated
	for _, token := range m.tokens {
		restored = strings.Replace(restored, token, m.originals[token], 1)
	}

	// Anything still looking like a token is a mangled or unknown
	// placeholder the model invented.
	if strings.Contains(restored, "[[FORMULA_") {
		return "", &RestoreError{Reason: "unrecognized token fragment in translation"}
	}

	return restored, nil
}
