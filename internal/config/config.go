package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "GITCORE"
	fileName  = "config.yaml"
)

type IdentityConfig struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Email string `yaml:"email" mapstructure:"email"`
}

type AuthConfig struct {
	SSHUser          string `yaml:"ssh_user" mapstructure:"ssh_user"`
	CredentialHelper bool   `yaml:"credential_helper" mapstructure:"credential_helper"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

type Config struct {
	Identity    IdentityConfig `yaml:"identity" mapstructure:"identity"`
	Remote      string         `yaml:"remote" mapstructure:"remote"`
	CommitLimit int            `yaml:"commit_limit" mapstructure:"commit_limit"`
	RecentLimit int            `yaml:"recent_limit" mapstructure:"recent_limit"`
	Auth        AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Log         LogConfig      `yaml:"log" mapstructure:"log"`
	Output      string         `yaml:"output" mapstructure:"output"`
}

func DefaultConfig() *Config {
	return &Config{
		Identity:    IdentityConfig{Name: "gitcore", Email: "gitcore@localhost"},
		Remote:      "origin",
		CommitLimit: 50,
		RecentLimit: 10,
		Auth:        AuthConfig{SSHUser: "git", CredentialHelper: true},
		Log:         LogConfig{Level: "info"},
		Output:      "text",
	}
}

// DefaultPath is <user config dir>/gitcore/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "gitcore", fileName), nil
}

// Load reads a YAML config file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetDefaults registers every key of DefaultConfig on v, so that
// environment variables are picked up even when the file omits the key.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("identity.name", d.Identity.Name)
	v.SetDefault("identity.email", d.Identity.Email)
	v.SetDefault("remote", d.Remote)
	v.SetDefault("commit_limit", d.CommitLimit)
	v.SetDefault("recent_limit", d.RecentLimit)
	v.SetDefault("auth.ssh_user", d.Auth.SSHUser)
	v.SetDefault("auth.credential_helper", d.Auth.CredentialHelper)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("output", d.Output)
}

// Resolve layers defaults, the config file at path (optional), GITCORE_*
// environment variables and whatever flags the caller bound on v.
func Resolve(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q: want text, json or yaml", c.Output)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.CommitLimit <= 0 {
		return fmt.Errorf("commit_limit must be positive, got %d", c.CommitLimit)
	}
	if c.RecentLimit < 0 {
		return fmt.Errorf("recent_limit must not be negative, got %d", c.RecentLimit)
	}
	return nil
}
