package evidence

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultSuccessKeywords = []string{"pass", "success", "sucesso", "passed", "ok", "successful", "✅", "✓"}
var defaultFailKeywords = []string{"fail", "error", "falha", "failed", "erro", "exception", "timeout", "❌", "✗"}

// Keywords are the text signals for pass/fail plus extra ticket prefixes.
type Keywords struct {
	Success        []string `yaml:"success_keywords"`
	Fail           []string `yaml:"fail_keywords"`
	TicketPrefixes []string `yaml:"ticket_prefixes"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Success: append([]string(nil), defaultSuccessKeywords...),
		Fail:    append([]string(nil), defaultFailKeywords...),
	}
}

// LoadKeywords returns the defaults extended with the entries of the YAML file
// at path. An empty path yields the defaults.
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}
	extra, err := readKeywordsFile(path)
	if err != nil {
		return kw, err
	}
	kw.Success = mergeTokens(kw.Success, extra.Success)
	kw.Fail = mergeTokens(kw.Fail, extra.Fail)
	kw.TicketPrefixes = mergeTokens(kw.TicketPrefixes, extra.TicketPrefixes)
	return kw, nil
}

func readKeywordsFile(path string) (Keywords, error) {
	var kw Keywords
	data, err := os.ReadFile(path)
	if err != nil {
		return kw, fmt.Errorf("read keywords: %w", err)
	}
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return kw, fmt.Errorf("parse keywords yaml: %w", err)
	}
	return kw, nil
}

// AppendKeyword adds word to the success or fail list of the file at path,
// creating the file when missing. Duplicates are ignored.
func AppendKeyword(path, kind, word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil
	}

	var kw Keywords
	if _, err := os.Stat(path); err == nil {
		kw, err = readKeywordsFile(path)
		if err != nil {
			return err
		}
	}

	switch kind {
	case "success":
		kw.Success = mergeTokens(kw.Success, []string{word})
	case "fail":
		kw.Fail = mergeTokens(kw.Fail, []string{word})
	case "prefix":
		kw.TicketPrefixes = mergeTokens(kw.TicketPrefixes, []string{word})
	default:
		return fmt.Errorf("unknown keyword kind %q", kind)
	}

	data, err := yaml.Marshal(&kw)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func mergeTokens(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, t := range list {
			n := normalizeToken(t)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, strings.TrimSpace(t))
		}
	}
	return out
}
