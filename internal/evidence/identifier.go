package evidence

import (
	"fmt"
	"regexp"
	"strings"
)

var builtinTicketPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Z]{2,7}-\d+`),
	regexp.MustCompile(`[A-Z]+-\d+`),
	regexp.MustCompile(`[A-Z]{2,4}\d+`),
	regexp.MustCompile(`BC-\d+`),
	regexp.MustCompile(`TEST-\d+`),
	regexp.MustCompile(`BUG-\d+`),
	regexp.MustCompile(`FEATURE-\d+`),
}

// Keeps letters, digits, underscore, whitespace and hyphen.
var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// Extractor derives a ticket key from an entry's visible text.
type Extractor struct {
	patterns []*regexp.Regexp
}

// NewExtractor returns an extractor that tries one pattern per extra prefix
// ("QA" or "QA-" both yield `QA-\d+`) before the built-in patterns.
func NewExtractor(extraPrefixes ...string) *Extractor {
	var patterns []*regexp.Regexp
	for _, p := range extraPrefixes {
		p = strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(p)), "-")
		if p == "" {
			continue
		}
		patterns = append(patterns, regexp.MustCompile(regexp.QuoteMeta(p)+`-\d+`))
	}
	patterns = append(patterns, builtinTicketPatterns...)
	return &Extractor{patterns: patterns}
}

var defaultExtractor = NewExtractor()

// ExtractTicketKey applies the built-in patterns, then the two-word fallback.
func ExtractTicketKey(text string) (string, bool) {
	return defaultExtractor.Extract(text)
}

func (x *Extractor) Extract(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	upper := strings.ToUpper(text)
	for _, re := range x.patterns {
		if m := re.FindString(upper); m != "" {
			return m, true
		}
	}

	words := strings.Fields(nonWordRe.ReplaceAllString(text, ""))
	if len(words) >= 2 {
		return strings.ToUpper(prefixRunes(words[0], 3)) + "-" + strings.ToUpper(prefixRunes(words[1], 3)), true
	}
	return "", false
}

// PlaceholderKey is the synthetic key for the entry at the 1-based index.
func PlaceholderKey(index int) string {
	return fmt.Sprintf("TESTE_%03d", index)
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
