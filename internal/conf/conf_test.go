package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatzot/facilitator/internal/biz/domain"
	"github.com/chatzot/facilitator/internal/biz/usecase"
)

func writePrompts(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"LISTEN_ADDR", "MESSAGE_LOG_TYPE", "MESSAGE_LOG_PATH", "PROMPTS_CONFIG_PATH", "LOG_LEVEL", "DEBUG",
		"COMPLETION_TIMEOUT_SECONDS", "INACTIVITY_INTERVAL_SECONDS", "CONCLUSION_LEAD_MINUTES", "LOBBY_MAX_MEMBERS"} {
		t.Setenv(key, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.MessageLog.Type)
	assert.Equal(t, "facilitator.sqlite.db", cfg.MessageLog.Path)
	assert.Equal(t, usecase.DefaultCompletionTimeout, cfg.LLM.Timeout)
	assert.Equal(t, usecase.DefaultInactivityInterval, cfg.Facilitator.InactivityInterval)
	assert.Equal(t, 1, cfg.Facilitator.ConclusionLeadMinutes)
	assert.Equal(t, usecase.DefaultMaxMembers, cfg.LobbyMaxMembers)
	assert.Equal(t, hclog.Info, cfg.Level())
	assert.Empty(t, cfg.PromptsPath)
	assert.Equal(t, usecase.DefaultPromptSet.Behavior, cfg.Prompts.Facilitator.Behavior)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writePrompts(t, "facilitator:\n  shorten: keep it short\n")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("MESSAGE_LOG_TYPE", "BuntDB")
	t.Setenv("MESSAGE_LOG_PATH", "/tmp/log.db")
	t.Setenv("COMPLETION_TIMEOUT_SECONDS", "12")
	t.Setenv("INACTIVITY_INTERVAL_SECONDS", "90")
	t.Setenv("CONCLUSION_LEAD_MINUTES", "2")
	t.Setenv("CLASSIFICATION_WINDOW", "6")
	t.Setenv("PROMPTS_CONFIG_PATH", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "buntdb", cfg.MessageLog.Type)
	assert.Equal(t, 12*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, path, cfg.PromptsPath)
	assert.Equal(t, hclog.Warn, cfg.Level())

	sc := cfg.ToSessionConfig()
	assert.Equal(t, 90*time.Second, sc.InactivityInterval)
	assert.Equal(t, 2, sc.ConclusionLeadMinutes)
	assert.Equal(t, 6, sc.ClassificationWindow)
	assert.Equal(t, 12*time.Second, sc.CompletionTimeout)
	assert.Equal(t, "keep it short", sc.Prompts.Shorten)
	assert.Equal(t, usecase.DefaultPromptSet.Conclusion, sc.Prompts.Conclusion)
}

func TestApplyFlags(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LISTEN_ADDR", ":9000")
	cfg := LoadFromEnv()

	path := writePrompts(t, "rule_orders:\n  passive: [participation]\n")
	fs := FlagSet()
	require.NoError(t, fs.Parse([]string{"--addr", ":7000", "--prompts", path, "--debug"}))
	require.NoError(t, cfg.ApplyFlags(fs))

	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, hclog.Debug, cfg.Level())
	assert.Equal(t, []string{domain.RuleParticipation}, cfg.ToSessionConfig().Prompts.RuleOrder("passive"))

	fs = FlagSet()
	require.NoError(t, fs.Parse([]string{"--prompts", filepath.Join(t.TempDir(), "missing.yaml")}))
	var cfgErr *ConfigError
	require.True(t, errors.As(cfg.ApplyFlags(fs), &cfgErr))
	assert.Equal(t, "--prompts", cfgErr.Field)
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PROMPTS_CONFIG_PATH", "")
	t.Setenv("MESSAGE_LOG_TYPE", "")
	valid := func() *Config { return LoadFromEnv() }

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing key", func(c *Config) { c.LLM.APIKey = "" }, "OPENAI_API_KEY"},
		{"bad log type", func(c *Config) { c.MessageLog.Type = "redis" }, "MESSAGE_LOG_TYPE"},
		{"missing log path", func(c *Config) { c.MessageLog.Path = "" }, "MESSAGE_LOG_PATH"},
		{"no members", func(c *Config) { c.LobbyMaxMembers = 0 }, "LOBBY_MAX_MEMBERS"},
		{"no timeout", func(c *Config) { c.LLM.Timeout = 0 }, "COMPLETION_TIMEOUT_SECONDS"},
		{"no lead", func(c *Config) { c.Facilitator.ConclusionLeadMinutes = 0 }, "CONCLUSION_LEAD_MINUTES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			var cfgErr *ConfigError
			require.True(t, errors.As(cfg.Validate(), &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	cfg := valid()
	cfg.MessageLog = MessageLogConfig{Type: "none"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_BrokenPromptsFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PROMPTS_CONFIG_PATH", writePrompts(t, "rule_orders:\n  cognitive: [vibes]\n"))

	cfg := LoadFromEnv()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown rule "vibes"`)
}

func TestParsePrompts_FillsDefaults(t *testing.T) {
	cfg, err := ParsePrompts([]byte(`
interventions:
  hint: "Nudge {{user}} gently."
rule_orders:
  Custom: [participation, cognitive]
`))
	require.NoError(t, err)

	set := cfg.ToPromptSet()
	assert.Equal(t, "Nudge {{user}} gently.", set.Interventions[domain.ActionHint])
	assert.Equal(t, usecase.DefaultPromptSet.Interventions[domain.ActionRedirect], set.Interventions[domain.ActionRedirect])
	assert.Equal(t, []string{domain.RuleParticipation, domain.RuleCognitive}, set.RuleOrder("custom"))
	assert.Equal(t, domain.DefaultRuleOrder, set.RuleOrder("cognitive"))
	assert.Equal(t, usecase.DefaultPromptSet.Behavior, set.Behavior)

	_, err = ParsePrompts([]byte("facilitator: [not, a, map]"))
	assert.Error(t, err)
}

func TestShippedPromptsFile(t *testing.T) {
	cfg, path, err := LoadPromptsConfig(filepath.Join("..", "..", "configs", "prompts.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	set := cfg.ToPromptSet()
	assert.Contains(t, set.Behavior, "{{botname}}")
	assert.Len(t, set.Interventions, len(usecase.DefaultPromptSet.Interventions))
	assert.Equal(t, []string{domain.RuleProductivity}, set.RuleOrder("passive"))
}
