package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for coverbot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Resume   ResumeConfig   `json:"resume" yaml:"resume"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

// SlackConfig holds the workspace credentials and the two fixed channels.
type SlackConfig struct {
	BotToken      string `json:"botToken" yaml:"botToken"`
	AppToken      string `json:"appToken" yaml:"appToken"`                               // required for Socket Mode
	SigningSecret string `json:"signingSecret,omitempty" yaml:"signingSecret,omitempty"` // empty disables verification
	SourceChannel string `json:"sourceChannel" yaml:"sourceChannel"`
	ResultChannel string `json:"resultChannel" yaml:"resultChannel"`
	APIURL        string `json:"apiUrl,omitempty" yaml:"apiUrl,omitempty"`
	Debug         bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
}

type ProviderConfig struct {
	Name                string `json:"name" yaml:"name"` // "openai" | "anthropic" | any OpenAI-compatible name with apiBase
	APIKey              string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase             string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	Model               string `json:"model,omitempty" yaml:"model,omitempty"` // empty picks the provider default
	MaxTokens           int    `json:"maxTokens" yaml:"maxTokens"`
	MaxTokensWithResume int    `json:"maxTokensWithResume" yaml:"maxTokensWithResume"`
	TimeoutSeconds      int    `json:"timeoutSeconds" yaml:"timeoutSeconds"` // per request; 0 waits indefinitely
}

type ServerConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"` // CORS; empty disables
}

type ResumeConfig struct {
	Path  string `json:"path" yaml:"path"`
	Watch bool   `json:"watch,omitempty" yaml:"watch,omitempty"` // reload when the file changes
}

// MetricsConfig configures the Prometheus endpoint. Path is mounted on the
// webhook router; Listen, when set, starts a standalone listener (used by
// the socket listener, which has no HTTP server of its own).
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Listen  string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// Addr returns the host:port the webhook server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfigDir returns the default config directory (~/.coverbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coverbot"
	}
	return filepath.Join(home, ".coverbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file (chosen by extension) on top of
// Defaults, expands ${VAR} references and ~/ paths, then validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Resume.Path = ExpandPath(cfg.Resume.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Defaults when it
// does not. Any other read or parse failure is returned.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		return Defaults(), nil
	}
	return Load(path)
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// ApplyEnv overlays the process environment onto cfg. Only variables that are
// set and non-empty override file values.
func ApplyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.General.LogLevel, "LOG_LEVEL")
	setString(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&cfg.Slack.AppToken, "SLACK_APP_TOKEN")
	setString(&cfg.Slack.SigningSecret, "SLACK_SIGNING_SECRET")
	setString(&cfg.Slack.SourceChannel, "PROPOSAL_CHANNEL_ID")
	setString(&cfg.Slack.ResultChannel, "RESULT_CHANNEL_ID")
	setString(&cfg.Provider.Name, "COMPLETION_PROVIDER")
	setString(&cfg.Provider.Model, "COMPLETION_MODEL")
	setString(&cfg.Provider.APIBase, "OPENAI_API_BASE")
	setString(&cfg.Server.Host, "COVERBOT_HOST")
	setString(&cfg.Metrics.Listen, "METRICS_LISTEN")

	if v := os.Getenv("RESUME_PATH"); v != "" {
		cfg.Resume.Path = ExpandPath(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
	if v := os.Getenv("COVERBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// The API key variable follows the selected provider.
	switch cfg.Provider.Name {
	case "anthropic", "claude":
		setString(&cfg.Provider.APIKey, "ANTHROPIC_API_KEY")
	default:
		setString(&cfg.Provider.APIKey, "OPENAI_API_KEY")
	}
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Missing credentials are
// not errors; see Warnings.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Slack.SourceChannel == "" {
		errs = append(errs, "slack.sourceChannel is required")
	}
	if cfg.Slack.ResultChannel == "" {
		errs = append(errs, "slack.resultChannel is required")
	}
	if cfg.Provider.MaxTokens < 1 {
		errs = append(errs, "provider.maxTokens must be >= 1")
	}
	if cfg.Provider.MaxTokensWithResume < 1 {
		errs = append(errs, "provider.maxTokensWithResume must be >= 1")
	}
	if cfg.Provider.TimeoutSeconds < 0 {
		errs = append(errs, "provider.timeoutSeconds must be >= 0")
	}
	switch cfg.Provider.Name {
	case "", "openai", "anthropic", "claude":
		// valid
	default:
		if cfg.Provider.APIBase == "" {
			errs = append(errs, fmt.Sprintf("provider.%s: apiBase is required for OpenAI-compatible providers", cfg.Provider.Name))
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Mode selects which credentials Warnings checks for.
type Mode string

const (
	ModeServe  Mode = "serve"
	ModeListen Mode = "listen"
)

// Warnings lists missing settings that leave part of the bot non-functional.
// They never stop the process.
func Warnings(cfg *Config, mode Mode) []string {
	var warns []string
	if cfg.Slack.BotToken == "" {
		warns = append(warns, "slack.botToken is not set; posting to Slack will fail")
	}
	switch mode {
	case ModeServe:
		if cfg.Provider.APIKey == "" && cfg.Provider.APIBase == "" {
			warns = append(warns, "provider.apiKey is not set; every proposal will get the provider-error reply")
		}
	case ModeListen:
		if cfg.Slack.AppToken == "" {
			warns = append(warns, "slack.appToken is not set; socket mode cannot connect")
		}
	}
	return warns
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
