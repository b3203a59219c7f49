package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	JiraURL      string `yaml:"jira_url"`
	JiraEmail    string `yaml:"jira_email"`
	JiraAPIToken string `yaml:"jira_api_token"`

	EvidenceDir           string `yaml:"evidence_dir"`
	Naming                string `yaml:"naming"`
	CaptureMode           string `yaml:"capture_mode"`
	BrowserBin            string `yaml:"browser_bin"`
	BrowserTimeoutSeconds int    `yaml:"browser_timeout_seconds"`
	AmbiguousPolicy       string `yaml:"ambiguous_policy"`
	KeywordsPath          string `yaml:"keywords_path"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	DBPath                     string `yaml:"db_path"`
	ListenAddr                 string `yaml:"listen_addr"`
	MaxUploadMB                int    `yaml:"max_upload_mb"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	AutoUploadSchedule string `yaml:"auto_upload_schedule"`
	WatchDir           string `yaml:"watch_dir"`
	Timezone           string `yaml:"timezone"`
	LogLevel           string `yaml:"log_level"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig loads the configuration and exits the process when it is invalid.
func LoadConfig() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Load reads .env, then config.yaml (or $CONFIG_PATH), then environment
// overrides, applies defaults and validates the result.
func Load() (Config, error) {
	var cfg Config

	dotenvPath := ".env"
	if p := os.Getenv("DOTENV_PATH"); p != "" {
		dotenvPath = p
	}
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", dotenvPath, err)
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	envOverride(&cfg.JiraURL, "JIRA_URL")
	envOverride(&cfg.JiraEmail, "JIRA_EMAIL")
	envOverride(&cfg.JiraAPIToken, "JIRA_API_TOKEN")
	envOverride(&cfg.EvidenceDir, "EVIDENCE_DIR")
	envOverride(&cfg.Naming, "EVIDENCE_NAMING")
	envOverride(&cfg.CaptureMode, "CAPTURE_MODE")
	var realScreenshots bool
	envOverrideBool(&realScreenshots, "CAPTURE_REAL_SCREENSHOTS")
	if realScreenshots {
		cfg.CaptureMode = "browser"
	}
	envOverride(&cfg.BrowserBin, "BROWSER_BIN")
	envOverride(&cfg.AmbiguousPolicy, "AMBIGUOUS_POLICY")
	envOverride(&cfg.KeywordsPath, "KEYWORDS_PATH")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.AutoUploadSchedule, "AUTO_UPLOAD_SCHEDULE")
	envOverride(&cfg.WatchDir, "WATCH_DIR")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")

	for key, field := range map[string]*int{
		"BROWSER_TIMEOUT_SECONDS":       &cfg.BrowserTimeoutSeconds,
		"MAX_UPLOAD_MB":                 &cfg.MaxUploadMB,
		"EXTERNAL_HTTP_TIMEOUT_SECONDS": &cfg.ExternalHTTPTimeoutSeconds,
	} {
		if err := envOverrideInt(field, key); err != nil {
			return cfg, err
		}
	}

	cfg.JiraURL = strings.TrimRight(cfg.JiraURL, "/")
	if cfg.EvidenceDir == "" {
		cfg.EvidenceDir = "prints_tests"
	}
	if cfg.Naming == "" {
		cfg.Naming = "plain"
	}
	if cfg.CaptureMode == "" {
		cfg.CaptureMode = "placeholder"
	}
	if cfg.BrowserTimeoutSeconds == 0 {
		cfg.BrowserTimeoutSeconds = 30
	}
	if cfg.AmbiguousPolicy == "" {
		cfg.AmbiguousPolicy = "pass"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./evidencebot.db"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5000"
	}
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 10
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	jiraFields := []struct{ name, val string }{
		{"jira_url", c.JiraURL},
		{"jira_email", c.JiraEmail},
		{"jira_api_token", c.JiraAPIToken},
	}
	jiraSet := 0
	for _, f := range jiraFields {
		if f.val != "" {
			jiraSet++
		}
	}
	if jiraSet > 0 && jiraSet < len(jiraFields) {
		for _, f := range jiraFields {
			if f.val == "" {
				return fmt.Errorf("partial Jira config: '%s' is not set (jira_url, jira_email and jira_api_token are required together)", f.name)
			}
		}
	}

	c.Naming = strings.ToLower(c.Naming)
	if c.Naming != "plain" && c.Naming != "suffixed" {
		return fmt.Errorf("naming must be 'plain' or 'suffixed', got '%s'", c.Naming)
	}
	c.CaptureMode = strings.ToLower(c.CaptureMode)
	if c.CaptureMode != "placeholder" && c.CaptureMode != "browser" {
		return fmt.Errorf("capture_mode must be 'placeholder' or 'browser', got '%s'", c.CaptureMode)
	}
	c.AmbiguousPolicy = strings.ToLower(c.AmbiguousPolicy)
	switch c.AmbiguousPolicy {
	case "pass", "fail":
	case "llm":
		switch c.LLMProvider {
		case "anthropic":
			if c.AnthropicAPIKey == "" {
				return errors.New("anthropic_api_key is required when ambiguous_policy=llm and llm_provider=anthropic")
			}
		case "openai":
			if c.OpenAIAPIKey == "" {
				return errors.New("openai_api_key is required when ambiguous_policy=llm and llm_provider=openai")
			}
		default:
			return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
		}
	default:
		return fmt.Errorf("ambiguous_policy must be 'pass', 'fail' or 'llm', got '%s'", c.AmbiguousPolicy)
	}

	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.BrowserTimeoutSeconds < 1 {
		return fmt.Errorf("invalid browser_timeout_seconds '%d': must be >= 1", c.BrowserTimeoutSeconds)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("invalid max_upload_mb '%d': must be >= 1", c.MaxUploadMB)
	}
	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return errors.New("slack_bot_token and slack_channel_id must be set together")
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func (c Config) JiraConfigured() bool {
	return c.JiraURL != "" && c.JiraEmail != "" && c.JiraAPIToken != ""
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) BrowserTimeout() time.Duration {
	return time.Duration(c.BrowserTimeoutSeconds) * time.Second
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
