// Package nameenc derives store-safe identifiers from arbitrary
// domain/table pairs (§4.1). The target store requires identifiers to match
// ^[A-Za-z][A-Za-z0-9_]{0,47}$; nameenc turns any UTF-8 string into something
// that satisfies that rule deterministically, falling back to a truncated
// hash when the input isn't already clean.
package nameenc

import (
	"crypto/sha1"
	"encoding/base64"
	"regexp"
	"strings"
)

const maxIdentLen = 48

var (
	validKeyRe   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	leadingRunRe = regexp.MustCompile(`^[A-Za-z0-9_]*`)
)

// underscoreEscaper implements makeValidKey's first step: double every
// underscore and turn every dot into a single underscore, so the escaping is
// reversible enough to avoid collisions between e.g. "a.b" and "a_b".
var underscoreEscaper = strings.NewReplacer("_", "__", ".", "_")

// MakeValidKey implements §4.1's makeValidKey(s, L): it returns a string of
// at most l characters drawn only from [A-Za-z0-9_], derived deterministically
// from s. Clean inputs pass through (after underscore/dot escaping)
// unchanged; anything else is truncated and suffixed with a hash of the
// original input so distinct inputs practically never collide.
func MakeValidKey(s string, l int) string {
	escaped := underscoreEscaper.Replace(s)
	if validKeyRe.MatchString(escaped) && len(escaped) <= l {
		return escaped
	}

	prefixLen := (2 * l) / 3
	prefix := leadingRunRe.FindString(escaped)
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}

	need := l - len(prefix)
	if need < 0 {
		need = 0
	}
	return prefix + hashSuffix(s, need)
}

// hashSuffix returns a base64-derived, filesystem/identifier-safe digest of
// s truncated to exactly n characters. '+' and '/' are both folded to '_'
// (not the usual base64url mapping to '-'/'_') and '=' padding is stripped,
// matching the encoding this component's callers expect on the wire.
func hashSuffix(s string, n int) string {
	sum := sha1.Sum([]byte(s))
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	encoded = strings.NewReplacer("+", "_", "/", "_").Replace(encoded)
	encoded = strings.TrimRight(encoded, "=")
	if len(encoded) > n {
		encoded = encoded[:n]
	}
	for len(encoded) < n {
		// SHA-1's base64 form is 27 characters once '=' is stripped, while
		// callers in this package may ask for up to 45 (maxIdentLen is 48),
		// so pad with '0' rather than return a short identifier.
		encoded += "0"
	}
	return encoded
}

// KeyspaceName implements §4.1's keyspaceName(reverseDomain, table). The
// result always satisfies ^[A-Za-z][A-Za-z0-9_]{0,47}$.
func KeyspaceName(reverseDomain, table string) string {
	prefixLen := 26
	if c := maxIdentLen - len(table) - 3; c > prefixLen {
		prefixLen = c
	}
	prefix := MakeValidKey(reverseDomain, prefixLen)

	suffixLen := maxIdentLen - len(prefix) - 3
	if suffixLen < 0 {
		suffixLen = 0
	}
	suffix := MakeValidKey(table, suffixLen)

	name := prefix + "_T_" + suffix
	return ensureLeadingAlpha(name)
}

// ensureLeadingAlpha fixes the bug in the original makeValidKey algorithm
// where a hash-derived prefix can legally start with '_' or a digit,
// violating the store's "first character alphabetic" identifier rule. A
// fixed 'k' is prepended and the tail trimmed back to stay within
// maxIdentLen.
func ensureLeadingAlpha(name string) string {
	if name == "" {
		return "k"
	}
	c := name[0]
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
		return name
	}
	name = "k" + name
	if len(name) > maxIdentLen {
		name = name[:maxIdentLen]
	}
	return name
}

// QuoteIdentifier wraps name for use as a quoted CQL identifier (keyspace,
// table, or column reference), doubling any interior double quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
