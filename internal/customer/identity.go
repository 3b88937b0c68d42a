// Package customer reconciles live CRM customers with the seed set.
package customer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/customer-map/internal/model"
)

// Identity key prefixes.
const (
	domainKeyPrefix = "domain:"
	nameKeyPrefix   = "name:"
	idKeyPrefix     = "id:"
)

// IdentityKey derives the matching key for c: the website's domain when one
// is usable, otherwise the folded name plus the state code. A record whose
// name was defaulted falls back to its id so unnamed records do not collide.
// The result is never empty.
func IdentityKey(c model.Customer) string {
	if d := NormalizeDomain(c.Website); d != "" {
		return domainKeyPrefix + d
	}
	if c.Defaulted.Name && c.ID != "" {
		return idKeyPrefix + c.ID
	}
	return nameKeyPrefix + FoldName(c.Name) + ":" + strings.ToUpper(strings.TrimSpace(c.State))
}

// NormalizeDomain strips the scheme and a leading "www.", lowercases, and cuts
// at the first path, query, or fragment separator.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "//")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}

// FoldName lowercases s, drops diacritics, and removes every character that
// is not a letter or digit.
func FoldName(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
