package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// industryHints maps name fragments to a coarse industry.
var industryHints = []struct {
	fragment string
	industry string
}{
	{"coffee", "food & beverage"},
	{"cafe", "food & beverage"},
	{"tea", "food & beverage"},
	{"bake", "food & beverage"},
	{"pizza", "food & beverage"},
	{"shop", "retail"},
	{"store", "retail"},
	{"market", "retail"},
	{"tech", "technology"},
	{"soft", "technology"},
	{"app", "technology"},
	{"dev", "technology"},
	{"cloud", "technology"},
	{"data", "technology"},
	{"health", "health"},
	{"care", "health"},
	{"clinic", "health"},
	{"fit", "fitness"},
	{"gym", "fitness"},
	{"law", "legal"},
	{"legal", "legal"},
	{"travel", "travel"},
	{"tour", "travel"},
	{"home", "real estate"},
	{"realty", "real estate"},
	{"build", "construction"},
	{"studio", "creative"},
	{"design", "creative"},
	{"photo", "creative"},
	{"finance", "finance"},
	{"pay", "finance"},
	{"bank", "finance"},
	{"learn", "education"},
	{"school", "education"},
	{"academy", "education"},
}

// KeyAnalysis derives an Analysis from the domain name alone.
func KeyAnalysis(key string) Analysis {
	key = strings.ToLower(strings.TrimSpace(key))
	label, tld := key, ""
	if i := strings.Index(key, "."); i >= 0 {
		label, tld = key[:i], key[i+1:]
	}
	if u, err := idna.ToUnicode(label); err == nil {
		label = u
	}

	words := strings.FieldsFunc(label, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsDigit(r)
	})
	if len(words) == 0 && label != "" {
		words = []string{label}
	}

	titled := make([]string, 0, len(words))
	for _, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		titled = append(titled, string(unicode.ToUpper(r))+w[size:])
	}

	return Analysis{
		Domain:   key,
		Name:     strings.Join(titled, " "),
		TLD:      tld,
		Keywords: words,
		Industry: guessIndustry(label),
	}
}

func guessIndustry(label string) string {
	for _, h := range industryHints {
		if strings.Contains(label, h.fragment) {
			return h.industry
		}
	}
	return "general business"
}
