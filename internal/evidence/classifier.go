package evidence

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"evidencebot/internal/domain"
)

// AmbiguousPolicy decides entries that no signal could classify.
type AmbiguousPolicy string

const (
	PolicyPass AmbiguousPolicy = "pass"
	PolicyFail AmbiguousPolicy = "fail"
	PolicyLLM  AmbiguousPolicy = "llm"
)

// DefaultAmbiguousPolicy treats unclassifiable entries as passed.
const DefaultAmbiguousPolicy = PolicyPass

func ParseAmbiguousPolicy(s string) (AmbiguousPolicy, error) {
	switch p := AmbiguousPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultAmbiguousPolicy, nil
	case PolicyPass, PolicyFail, PolicyLLM:
		return p, nil
	}
	return "", fmt.Errorf("ambiguous policy must be pass, fail or llm, got %q", s)
}

// Signal inspects one entry and reports an outcome when it is decisive.
type Signal struct {
	Name  string
	Check func(domain.ReportEntry) (domain.Outcome, bool)
}

// Resolver is consulted for ambiguous entries under PolicyLLM.
type Resolver interface {
	Resolve(ctx context.Context, entry domain.ReportEntry) (domain.Outcome, error)
}

// Decision is a classification plus the name of the signal that made it.
type Decision struct {
	Outcome domain.Outcome
	Signal  string
}

type Classifier struct {
	signals  []Signal
	policy   AmbiguousPolicy
	resolver Resolver
	logger   *zap.Logger
}

type ClassifierOption func(*Classifier)

func WithPolicy(p AmbiguousPolicy) ClassifierOption {
	return func(c *Classifier) { c.policy = p }
}

func WithResolver(r Resolver) ClassifierOption {
	return func(c *Classifier) { c.resolver = r }
}

func WithClassifierLogger(l *zap.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = l }
}

func NewClassifier(kw Keywords, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		signals: []Signal{
			{Name: "class", Check: classSignal},
			{Name: "glyph", Check: glyphSignal},
			{Name: "keyword", Check: keywordSignal(kw)},
			{Name: "pattern", Check: patternSignal},
		},
		policy: DefaultAmbiguousPolicy,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the first decisive signal's outcome, or applies the
// ambiguous policy when none is decisive.
func (c *Classifier) Classify(ctx context.Context, entry domain.ReportEntry) Decision {
	for _, s := range c.signals {
		if o, ok := s.Check(entry); ok {
			return Decision{Outcome: o, Signal: s.Name}
		}
	}

	switch c.policy {
	case PolicyFail:
		return Decision{Outcome: domain.OutcomeFail, Signal: "default"}
	case PolicyLLM:
		if c.resolver != nil {
			o, err := c.resolver.Resolve(ctx, entry)
			if err == nil {
				return Decision{Outcome: o, Signal: "llm"}
			}
			c.logger.Warn("llm verdict unavailable, defaulting to pass",
				zap.Int("entry", entry.Index), zap.Error(err))
		}
	}
	return Decision{Outcome: domain.OutcomePass, Signal: "default"}
}

func classSignal(e domain.ReportEntry) (domain.Outcome, bool) {
	if o, ok := classTokens(e.LabelClasses); ok {
		return o, true
	}
	return classTokens(e.Classes)
}

// classTokens checks fail tokens across the whole list before pass tokens.
func classTokens(classes []string) (domain.Outcome, bool) {
	for _, cls := range classes {
		c := strings.ToLower(cls)
		if strings.Contains(c, "fail") || strings.Contains(c, "error") {
			return domain.OutcomeFail, true
		}
	}
	for _, cls := range classes {
		c := strings.ToLower(cls)
		if strings.Contains(c, "pass") || strings.Contains(c, "success") {
			return domain.OutcomePass, true
		}
	}
	return domain.OutcomePass, false
}

func glyphSignal(e domain.ReportEntry) (domain.Outcome, bool) {
	switch {
	case strings.Contains(e.Markup, "✅") || strings.Contains(e.Markup, "✓"):
		return domain.OutcomePass, true
	case strings.Contains(e.Markup, "❌") || strings.Contains(e.Markup, "✗"):
		return domain.OutcomeFail, true
	}
	return domain.OutcomePass, false
}

func keywordSignal(kw Keywords) func(domain.ReportEntry) (domain.Outcome, bool) {
	success := lowerAll(kw.Success)
	fail := lowerAll(kw.Fail)
	return func(e domain.ReportEntry) (domain.Outcome, bool) {
		text := strings.ToLower(e.Text)
		if containsAny(text, success) {
			return domain.OutcomePass, true
		}
		if containsAny(text, fail) {
			return domain.OutcomeFail, true
		}
		return domain.OutcomePass, false
	}
}

var (
	passPatterns = []*regexp.Regexp{
		regexp.MustCompile(`status.*pass`),
		regexp.MustCompile(`result.*pass`),
		regexp.MustCompile(`execution.*pass`),
	}
	failPatterns = []*regexp.Regexp{
		regexp.MustCompile(`status.*fail`),
		regexp.MustCompile(`result.*fail`),
		regexp.MustCompile(`execution.*fail`),
		regexp.MustCompile(`error.*occurred`),
	}
)

func patternSignal(e domain.ReportEntry) (domain.Outcome, bool) {
	text := strings.ToLower(e.Text)
	for _, re := range passPatterns {
		if re.MatchString(text) {
			return domain.OutcomePass, true
		}
	}
	for _, re := range failPatterns {
		if re.MatchString(text) {
			return domain.OutcomeFail, true
		}
	}
	return domain.OutcomePass, false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = normalizeToken(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(text string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
