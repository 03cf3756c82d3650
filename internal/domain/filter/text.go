package filter

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Words splits s on whitespace and lower-cases every word.
func Words(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// NormalizeWords lower-cases s, sorts its words and re-joins them with a
// single space. "CEO Global" and "global ceo" normalize identically.
func NormalizeWords(s string) string {
	w := Words(s)
	slices.Sort(w)
	return strings.Join(w, " ")
}

var schemeRe = regexp.MustCompile(`^[a-z][a-z0-9+.\-]*://`)

// Host extracts the registrable host of a URL-ish string: scheme, userinfo,
// "www.", port and path are stripped and the result is lower-cased.
// Malformed input reports false.
func Host(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = schemeRe.ReplaceAllString(s, "")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	if !validHost(s) {
		return "", false
	}
	return s, true
}

func validHost(s string) bool {
	if s == "" || !strings.Contains(s, ".") || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsSpace)
}

// EscapeLike escapes LIKE wildcards using backslash as the escape character.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
