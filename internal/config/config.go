package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config models lexflow.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		// JWTSecret is normally supplied through LEXFLOW_JWT_SECRET.
		JWTSecret string `yaml:"jwt_secret,omitempty"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	LLM           LLMConfig           `yaml:"llm"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	WhatsApp      WhatsAppConfig      `yaml:"whatsapp"`
	Commander     CommanderConfig     `yaml:"commander"`
	Digest        DigestConfig        `yaml:"digest"`
}

type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type TranscriptionConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	APIKey         string `yaml:"api_key,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WhatsAppConfig holds the process-wide fallback credentials used when a tenant has no
// channel instance of its own.
type WhatsAppConfig struct {
	BaseURL      string `yaml:"base_url"`
	InstanceName string `yaml:"instance_name"`
	InstanceID   string `yaml:"instance_id,omitempty"`
	Token        string `yaml:"token,omitempty"`
	ClientToken  string `yaml:"client_token,omitempty"`
}

type CommanderConfig struct {
	Timezone         string `yaml:"timezone"`
	DeadlineLimit    int    `yaml:"deadline_limit"`
	ProjectListLimit int    `yaml:"project_list_limit"`
}

type DigestConfig struct {
	Enabled    bool              `yaml:"enabled"`
	Schedule   string            `yaml:"schedule"`
	Timezone   string            `yaml:"timezone"`
	Recipients []DigestRecipient `yaml:"recipients"`
}

type DigestRecipient struct {
	TenantID string `yaml:"tenant_id"`
	Phone    string `yaml:"phone"`
	UserID   string `yaml:"user_id,omitempty"`
	// OnlyOwn restricts the digest to deadlines the user is responsible for.
	OnlyOwn bool `yaml:"only_own,omitempty"`
}

// Load reads and validates config from the workspace, falling back to defaults when the
// file is absent.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "lexflow.yml")
}

// Default returns the default configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	if strings.TrimSpace(c.WhatsApp.BaseURL) == "" {
		return fmt.Errorf("whatsapp.base_url is required")
	}
	if _, err := time.LoadLocation(c.Commander.Timezone); err != nil {
		return fmt.Errorf("commander.timezone: %w", err)
	}
	if c.Commander.DeadlineLimit < 0 || c.Commander.ProjectListLimit < 0 {
		return fmt.Errorf("commander limits must not be negative")
	}
	if c.Digest.Enabled {
		if _, err := cron.ParseStandard(c.Digest.Schedule); err != nil {
			return fmt.Errorf("digest.schedule: %w", err)
		}
		if _, err := time.LoadLocation(c.Digest.Timezone); err != nil {
			return fmt.Errorf("digest.timezone: %w", err)
		}
		for i, rcpt := range c.Digest.Recipients {
			if rcpt.TenantID == "" || rcpt.Phone == "" {
				return fmt.Errorf("digest.recipients[%d] requires tenant_id and phone", i)
			}
		}
	}
	return nil
}

// Location returns the commander's timezone used to decide what "today" is.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Commander.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
  format: json

llm:
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  timeout_seconds: 60

transcription:
  base_url: https://api.openai.com/v1
  model: whisper-1
  language: pt
  timeout_seconds: 60

whatsapp:
  base_url: https://api.z-api.io
  instance_name: default

commander:
  timezone: America/Sao_Paulo
  deadline_limit: 15
  project_list_limit: 10

digest:
  enabled: false
  schedule: "0 8 * * 1-5"
  timezone: America/Sao_Paulo
  recipients: []
`
