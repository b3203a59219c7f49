// Package llm asks a language model for a pass/fail verdict on report
// entries that carry no recognisable status signal.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"evidencebot/internal/domain"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"
const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"
const maxEntryChars = 4000

const systemPrompt = `You read one entry of an automated test report and decide whether the test passed or failed.
Answer with exactly one word: PASS or FAIL.`

// ErrNoVerdict means the model answered with neither PASS nor FAIL.
var ErrNoVerdict = errors.New("llm returned no verdict")

type Config struct {
	Provider        string // "anthropic" or "openai"
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	// Base URLs override the public endpoints.
	AnthropicBaseURL string
	OpenAIURL        string
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Judge implements the ambiguous-entry resolver.
type Judge struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewJudge(cfg Config, httpClient *http.Client, logger *zap.Logger) *Judge {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.Model == "" {
		if cfg.Provider == "openai" {
			cfg.Model = defaultOpenAIModel
		} else {
			cfg.Model = defaultAnthropicModel
		}
	}
	if cfg.OpenAIURL == "" {
		cfg.OpenAIURL = defaultOpenAIURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{cfg: cfg, httpClient: httpClient, logger: logger}
}

func (j *Judge) Resolve(ctx context.Context, entry domain.ReportEntry) (domain.Outcome, error) {
	prompt := buildPrompt(entry)

	var (
		text  string
		usage Usage
		err   error
	)
	switch j.cfg.Provider {
	case "anthropic":
		text, usage, err = j.callAnthropic(ctx, prompt)
	case "openai":
		text, usage, err = j.callOpenAI(ctx, prompt)
	default:
		return domain.OutcomePass, fmt.Errorf("unsupported llm provider %q", j.cfg.Provider)
	}
	if err != nil {
		return domain.OutcomePass, err
	}
	j.logger.Debug("llm verdict",
		zap.Int("entry", entry.Index),
		zap.String("provider", j.cfg.Provider),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens),
		zap.String("answer", text))
	return parseVerdict(text)
}

func buildPrompt(entry domain.ReportEntry) string {
	text := truncateRunes(entry.Text, maxEntryChars)
	var sb strings.Builder
	if entry.Label != "" {
		fmt.Fprintf(&sb, "Test name: %s\n", entry.Label)
	}
	if len(entry.Classes) > 0 {
		fmt.Fprintf(&sb, "CSS classes: %s\n", strings.Join(entry.Classes, " "))
	}
	fmt.Fprintf(&sb, "Entry text:\n%s\n", text)
	return sb.String()
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

var verdictRe = regexp.MustCompile(`\b(PASS|FAIL)(ED)?\b`)

func parseVerdict(text string) (domain.Outcome, error) {
	m := verdictRe.FindStringSubmatch(strings.ToUpper(text))
	if m == nil {
		return domain.OutcomePass, fmt.Errorf("%w: %q", ErrNoVerdict, strings.TrimSpace(text))
	}
	if m[1] == "FAIL" {
		return domain.OutcomeFail, nil
	}
	return domain.OutcomePass, nil
}

// --- Anthropic ---

func (j *Judge) callAnthropic(ctx context.Context, userPrompt string) (string, Usage, error) {
	opts := []option.RequestOption{option.WithAPIKey(j.cfg.AnthropicAPIKey), option.WithHTTPClient(j.httpClient)}
	if j.cfg.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(j.cfg.AnthropicBaseURL))
	}
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(j.cfg.Model),
		MaxTokens: 16,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{InputTokens: message.Usage.InputTokens, OutputTokens: message.Usage.OutputTokens}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (j *Judge) callOpenAI(ctx context.Context, userPrompt string) (string, Usage, error) {
	bodyBytes, err := json.Marshal(openAIRequest{
		Model: j.cfg.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.cfg.OpenAIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.cfg.OpenAIAPIKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", Usage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}
	if openAIResp.Error != nil {
		return "", Usage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}
	var usage Usage
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}
	return openAIResp.Choices[0].Message.Content, usage, nil
}
