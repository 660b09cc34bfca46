// Package slug turns free-form names into ASCII identifiers for URLs and
// human-typed codes such as promotion codes.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Letters that do not decompose into a base letter plus a combining mark.
var foldReplacer = strings.NewReplacer(
	"ı", "i", "ß", "ss", "æ", "ae", "ø", "o", "œ", "oe", "đ", "d", "ł", "l",
)

// fold lowercases s and strips diacritics, so "Çocuk Ürünleri" becomes
// "cocuk urunleri".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return foldReplacer.Replace(out)
}

// Generate creates a lowercase, hyphen-separated slug from name.
// "Kadın Giyim" becomes "kadin-giyim".
func Generate(name string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(fold(strings.TrimSpace(name)), "-"), "-")
}

// Code is Generate in upper case, limited to maxLen characters without a
// trailing hyphen. maxLen <= 0 means no limit.
func Code(name string, maxLen int) string {
	c := strings.ToUpper(Generate(name))
	if maxLen > 0 && len(c) > maxLen {
		c = strings.TrimRight(c[:maxLen], "-")
	}
	return c
}
