// Package slug derives URL path segments from display names.
package slug

import (
	"regexp"
	"strconv"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Latin letters with diacritics that show up in product names, folded to
// their ASCII base letter. Everything else outside [a-z0-9] becomes a hyphen.
var fold = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i", "ı", "i",
	"ó", "o", "ò", "o", "ô", "o", "ö", "o", "õ", "o", "ø", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n", "ş", "s", "ğ", "g", "ß", "ss",
)

// Generate returns a lowercase, hyphen-separated slug for name:
//
//	"Bamboo Toothbrush (4 pack)" -> "bamboo-toothbrush-4-pack"
//	"Café Crème Soap"            -> "cafe-creme-soap"
func Generate(name string) string {
	s := fold.Replace(strings.ToLower(strings.TrimSpace(name)))
	return strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
}

// Unique returns base, or base with the smallest numeric suffix ("-2", "-3",
// ...) for which taken reports false.
func Unique(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}
