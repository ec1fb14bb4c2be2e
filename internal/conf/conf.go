package conf

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/chatzot/facilitator/internal/biz/usecase"
	"github.com/chatzot/facilitator/internal/data"
	"github.com/chatzot/facilitator/internal/service"
	"github.com/chatzot/facilitator/llm"
)

// Config represents application configuration
type Config struct {
	// HTTP listen address for the websocket endpoint and admin API
	Addr string

	// Completion service configuration
	LLM LLMConfig

	// Message log configuration
	MessageLog MessageLogConfig

	// Facilitator tuning
	Facilitator FacilitatorConfig

	// Maximum members per lobby
	LobbyMaxMembers int

	// Path the prompts were loaded from, empty for built-in defaults
	PromptsPath string

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig

	LogLevel string

	// Debug mode
	Debug bool

	promptsErr error
}

// LLMConfig contains completion service configuration
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// MessageLogConfig selects the message log backend
type MessageLogConfig struct {
	Type string
	Path string
}

// FacilitatorConfig contains per-chatroom tuning
type FacilitatorConfig struct {
	InactivityInterval       time.Duration
	InterventionDelay        time.Duration
	ConclusionLeadMinutes    int
	ParticipationMinMessages int
	ClassificationWindow     int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = "localhost:8080"
	}

	logType := strings.ToLower(os.Getenv("MESSAGE_LOG_TYPE"))
	if logType == "" {
		logType = data.LogTypeSQLite
	}
	logPath := os.Getenv("MESSAGE_LOG_PATH")
	if logPath == "" && logType != data.LogTypeNone {
		logPath = "facilitator." + logType + ".db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	promptsPath := os.Getenv("PROMPTS_CONFIG_PATH")
	prompts, loadedFrom, promptsErr := LoadPromptsConfig(promptsPath)
	if promptsErr != nil {
		loadedFrom = promptsPath
	}

	return &Config{
		Addr: addr,
		LLM: LLMConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
			Timeout: envSeconds("COMPLETION_TIMEOUT_SECONDS", usecase.DefaultCompletionTimeout),
		},
		MessageLog: MessageLogConfig{
			Type: logType,
			Path: logPath,
		},
		Facilitator: FacilitatorConfig{
			InactivityInterval:       envSeconds("INACTIVITY_INTERVAL_SECONDS", usecase.DefaultInactivityInterval),
			InterventionDelay:        envSeconds("INTERVENTION_DELAY_SECONDS", usecase.DefaultInterventionDelay),
			ConclusionLeadMinutes:    envInt("CONCLUSION_LEAD_MINUTES", service.DefaultConclusionLeadMinutes),
			ParticipationMinMessages: envInt("PARTICIPATION_MIN_MESSAGES", 0),
			ClassificationWindow:     envInt("CLASSIFICATION_WINDOW", 0),
		},
		LobbyMaxMembers: envInt("LOBBY_MAX_MEMBERS", usecase.DefaultMaxMembers),
		PromptsPath:     loadedFrom,
		Prompts:         prompts,
		LogLevel:        logLevel,
		Debug:           os.Getenv("DEBUG") == "true",
		promptsErr:      promptsErr,
	}
}

// FlagSet returns the command-line flags that override environment values
func FlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("facilitator", pflag.ContinueOnError)
	fs.String("addr", "", "listen address for websocket and admin API (overrides LISTEN_ADDR)")
	fs.String("prompts", "", "path to prompts.yaml (overrides PROMPTS_CONFIG_PATH)")
	fs.String("log-level", "", "trace, debug, info, warn or error (overrides LOG_LEVEL)")
	fs.Bool("debug", false, "enable debug logging")
	return fs
}

// ApplyFlags overrides configuration with flags that were set explicitly
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if fs.Changed("addr") {
		c.Addr, _ = fs.GetString("addr")
	}
	if fs.Changed("log-level") {
		c.LogLevel, _ = fs.GetString("log-level")
	}
	if fs.Changed("debug") {
		c.Debug, _ = fs.GetBool("debug")
	}
	if fs.Changed("prompts") {
		path, _ := fs.GetString("prompts")
		prompts, loadedFrom, err := LoadPromptsConfig(path)
		if err != nil {
			return &ConfigError{Field: "--prompts", Message: err.Error()}
		}
		c.Prompts = prompts
		c.PromptsPath = loadedFrom
		c.promptsErr = nil
	}
	return nil
}

// Level returns the hclog level, debug when Debug is set
func (c *Config) Level() hclog.Level {
	if c.Debug {
		return hclog.Debug
	}
	level := hclog.LevelFromString(c.LogLevel)
	if level == hclog.NoLevel {
		return hclog.Info
	}
	return level
}

// ToLLMConfig converts to completion client configuration
func (c *Config) ToLLMConfig() llm.Config {
	return llm.Config{
		APIKey:  c.LLM.APIKey,
		BaseURL: c.LLM.BaseURL,
		Model:   c.LLM.Model,
	}
}

// ToSessionConfig converts to session service configuration
func (c *Config) ToSessionConfig() service.SessionConfig {
	prompts := c.Prompts
	if prompts == nil {
		prompts = DefaultPromptsConfig()
	}
	return service.SessionConfig{
		Prompts:                  prompts.ToPromptSet(),
		ClassificationWindow:     c.Facilitator.ClassificationWindow,
		CompletionTimeout:        c.LLM.Timeout,
		InterventionDelay:        c.Facilitator.InterventionDelay,
		InactivityInterval:       c.Facilitator.InactivityInterval,
		ConclusionLeadMinutes:    c.Facilitator.ConclusionLeadMinutes,
		ParticipationMinMessages: c.Facilitator.ParticipationMinMessages,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
	}
	switch c.MessageLog.Type {
	case data.LogTypeSQLite, data.LogTypeBuntDB, data.LogTypeNone:
	default:
		return &ConfigError{Field: "MESSAGE_LOG_TYPE", Message: "must be sqlite, buntdb or none"}
	}
	if c.MessageLog.Type != data.LogTypeNone && c.MessageLog.Path == "" {
		return &ConfigError{Field: "MESSAGE_LOG_PATH", Message: "required"}
	}
	if c.LobbyMaxMembers <= 0 {
		return &ConfigError{Field: "LOBBY_MAX_MEMBERS", Message: "must be positive"}
	}
	if c.LLM.Timeout <= 0 {
		return &ConfigError{Field: "COMPLETION_TIMEOUT_SECONDS", Message: "must be positive"}
	}
	if c.Facilitator.InactivityInterval <= 0 {
		return &ConfigError{Field: "INACTIVITY_INTERVAL_SECONDS", Message: "must be positive"}
	}
	if c.Facilitator.ConclusionLeadMinutes <= 0 {
		return &ConfigError{Field: "CONCLUSION_LEAD_MINUTES", Message: "must be positive"}
	}
	if c.promptsErr != nil {
		return &ConfigError{Field: "PROMPTS_CONFIG_PATH", Message: c.promptsErr.Error()}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return def
}
