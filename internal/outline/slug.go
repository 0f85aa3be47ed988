package outline

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts a title to a URL-safe slug: accents folded, lowercase,
// runs of non-alphanumerics collapsed to single hyphens.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

// slugSet hands out unique slugs within one catalogue.
type slugSet map[string]int

func (s slugSet) unique(base string) string {
	if base == "" {
		base = "topic"
	}
	n := s[base]
	s[base] = n + 1
	if n == 0 {
		return base
	}
	candidate := base + "-" + strconv.Itoa(n+1)
	for s[candidate] > 0 {
		n++
		candidate = base + "-" + strconv.Itoa(n+1)
	}
	s[candidate] = 1
	return candidate
}
