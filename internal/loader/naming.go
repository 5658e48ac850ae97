package loader

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/dgallion1/gccquiz/internal/company"
)

// UnknownYear is used when no report year can be inferred.
const UnknownYear = "unknown"

var (
	codePattern = regexp.MustCompile(`^([A-Za-z]{2,4})[-_]`)
	yearPattern = regexp.MustCompile(`(?:^|\D)(20\d{2})(?:\D|$)`)
	textYear    = regexp.MustCompile(`\b(20\d{2})\b`)
)

// yearScanLimit bounds how much extracted text is searched for a year.
const yearScanLimit = 4000

// CompanyName derives a best-effort company name from a report filename.
// A leading 2-4 letter code such as "FAB_" is resolved through the company
// directory; otherwise the first underscore-separated part is title-cased.
func CompanyName(filename, country string, companies *company.Directory) string {
	if m := codePattern.FindStringSubmatch(filename); m != nil {
		code := strings.ToUpper(m[1])
		if name, ok := companies.Name(code); ok {
			return name
		}
		return code + " " + country
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	first := strings.Split(base, "_")[0]
	name := titleCase(strings.ReplaceAll(first, "-", " "))
	if name == "" {
		return "Unknown " + country
	}
	return name
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// InferYear returns the first standalone 20xx year in a filename, or "".
func InferYear(filename string) string {
	if m := yearPattern.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	return ""
}

// YearFromText returns the most frequent 20xx year near the start of a
// report's text, preferring the later year on ties, or "".
func YearFromText(text string) string {
	if r := []rune(text); len(r) > yearScanLimit {
		text = string(r[:yearScanLimit])
	}

	counts := make(map[string]int)
	for _, m := range textYear.FindAllStringSubmatch(text, -1) {
		counts[m[1]]++
	}
	if len(counts) == 0 {
		return ""
	}

	years := make([]string, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool {
		if counts[years[i]] != counts[years[j]] {
			return counts[years[i]] > counts[years[j]]
		}
		return years[i] > years[j]
	})
	return years[0]
}
