package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing-config.yaml"))
	t.Setenv("DOTENV_PATH", filepath.Join(dir, "missing.env"))
	for _, k := range []string{
		"JIRA_URL", "JIRA_EMAIL", "JIRA_API_TOKEN", "EVIDENCE_DIR", "EVIDENCE_NAMING",
		"CAPTURE_MODE", "CAPTURE_REAL_SCREENSHOTS", "AMBIGUOUS_POLICY", "LLM_PROVIDER",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "DB_PATH", "SLACK_BOT_TOKEN", "SLACK_CHANNEL_ID",
		"EXTERNAL_HTTP_TIMEOUT_SECONDS", "MAX_UPLOAD_MB", "BROWSER_TIMEOUT_SECONDS", "TIMEZONE",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolateConfig(t)
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.EvidenceDir != "prints_tests" {
		t.Fatalf("unexpected evidence dir default: %q", cfg.EvidenceDir)
	}
	if cfg.Naming != "plain" || cfg.CaptureMode != "placeholder" || cfg.AmbiguousPolicy != "pass" {
		t.Fatalf("unexpected enum defaults: %q %q %q", cfg.Naming, cfg.CaptureMode, cfg.AmbiguousPolicy)
	}
	if cfg.DBPath != "./evidencebot.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.ListenAddr != ":5000" {
		t.Fatalf("unexpected listen addr default: %q", cfg.ListenAddr)
	}
	if cfg.MaxUploadBytes() != 10<<20 {
		t.Fatalf("unexpected max upload bytes: %d", cfg.MaxUploadBytes())
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.BrowserTimeout() != 30*time.Second {
		t.Fatalf("unexpected browser timeout: %s", cfg.BrowserTimeout())
	}
	if cfg.JiraConfigured() || cfg.SlackConfigured() {
		t.Fatal("nothing should be configured by default")
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := isolateConfig(t)
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `
jira_url: "https://acme.atlassian.net/"
jira_email: "qa@acme.test"
jira_api_token: "yaml-token"
evidence_dir: "/tmp/yaml-evidence"
naming: "suffixed"
db_path: "/tmp/yaml.db"
external_http_timeout_seconds: 75
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("JIRA_API_TOKEN", "env-token")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "120")
	t.Setenv("CAPTURE_REAL_SCREENSHOTS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.JiraURL != "https://acme.atlassian.net" {
		t.Fatalf("jira url should be trimmed, got %q", cfg.JiraURL)
	}
	if cfg.JiraAPIToken != "env-token" {
		t.Fatalf("expected env override for token, got %q", cfg.JiraAPIToken)
	}
	if !cfg.JiraConfigured() {
		t.Fatal("expected Jira to be configured")
	}
	if cfg.EvidenceDir != "/tmp/yaml-evidence" || cfg.Naming != "suffixed" {
		t.Fatalf("unexpected yaml values: %q %q", cfg.EvidenceDir, cfg.Naming)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env override for db path, got %q", cfg.DBPath)
	}
	if cfg.ExternalHTTPTimeoutSeconds != 120 {
		t.Fatalf("expected env override for timeout, got %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.CaptureMode != "browser" {
		t.Fatalf("CAPTURE_REAL_SCREENSHOTS=true should select browser, got %q", cfg.CaptureMode)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolateConfig(t)
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("LISTEN_ADDR=:6001\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("DOTENV_PATH", envPath)
	os.Unsetenv("LISTEN_ADDR")
	t.Cleanup(func() { os.Unsetenv("LISTEN_ADDR") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":6001" {
		t.Fatalf("expected .env value, got %q", cfg.ListenAddr)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "partial jira",
			env:     map[string]string{"JIRA_URL": "https://acme.atlassian.net"},
			wantErr: "partial Jira config",
		},
		{
			name:    "bad naming",
			env:     map[string]string{"EVIDENCE_NAMING": "fancy"},
			wantErr: "naming must be",
		},
		{
			name:    "bad capture mode",
			env:     map[string]string{"CAPTURE_MODE": "camera"},
			wantErr: "capture_mode must be",
		},
		{
			name:    "llm policy without key",
			env:     map[string]string{"AMBIGUOUS_POLICY": "llm", "LLM_PROVIDER": "openai"},
			wantErr: "openai_api_key is required",
		},
		{
			name:    "llm policy unknown provider",
			env:     map[string]string{"AMBIGUOUS_POLICY": "llm", "LLM_PROVIDER": "other"},
			wantErr: "llm_provider must be",
		},
		{
			name:    "unknown policy",
			env:     map[string]string{"AMBIGUOUS_POLICY": "coin"},
			wantErr: "ambiguous_policy must be",
		},
		{
			name:    "timeout too low",
			env:     map[string]string{"EXTERNAL_HTTP_TIMEOUT_SECONDS": "2"},
			wantErr: "must be >= 5",
		},
		{
			name:    "non numeric int",
			env:     map[string]string{"MAX_UPLOAD_MB": "ten"},
			wantErr: "invalid MAX_UPLOAD_MB",
		},
		{
			name:    "slack without channel",
			env:     map[string]string{"SLACK_BOT_TOKEN": "xoxb-test"},
			wantErr: "must be set together",
		},
		{
			name:    "bad timezone",
			env:     map[string]string{"TIMEZONE": "Mars/Olympus"},
			wantErr: "invalid timezone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfig(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadLLMPolicyWithKey(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AMBIGUOUS_POLICY", "LLM")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.AmbiguousPolicy != "llm" || cfg.LLMProvider != "anthropic" {
		t.Fatalf("unexpected llm settings: %q %q", cfg.AmbiguousPolicy, cfg.LLMProvider)
	}
}
