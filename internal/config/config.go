package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Chat      ChatConfig      `mapstructure:"chat"`
}

// OpenAIConfig configures the chat-completions provider. Any
// OpenAI-compatible endpoint works via base_url.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// WarehouseConfig configures the warehouse MCP server: SQL backend plus the
// control-plane REST API.
type WarehouseConfig struct {
	Host      string `mapstructure:"host"`      // REST API host
	Token     string `mapstructure:"token"`     // REST API bearer token
	HTTPPath  string `mapstructure:"http_path"` // SQL endpoint path, informational
	SQLDriver string `mapstructure:"sql_driver"`
	SQLDSN    string `mapstructure:"sql_dsn"`
}

// ChatConfig configures the interactive chat loop.
type ChatConfig struct {
	MaxTurns     int     `mapstructure:"max_turns"`     // Tool rounds per user message
	Temperature  float32 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"` // Override the built-in prompt
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("warehouse.sql_driver", "sqlite")
	viper.SetDefault("warehouse.sql_dsn", "warehouse.db")
	viper.SetDefault("chat.max_turns", 20)
	viper.SetDefault("chat.temperature", 0.7)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveOpenAI(&cfg.OpenAI)
	resolveWarehouse(&cfg.Warehouse)

	return &cfg, nil
}

func resolveOpenAI(cfg *OpenAIConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.BaseURL = expandEnv(cfg.BaseURL)
}

func resolveWarehouse(cfg *WarehouseConfig) {
	cfg.Host = expandEnv(cfg.Host)
	if cfg.Host == "" {
		cfg.Host = os.Getenv("WAREHOUSE_HOST")
	}
	cfg.Token = expandEnv(cfg.Token)
	if cfg.Token == "" {
		cfg.Token = os.Getenv("WAREHOUSE_TOKEN")
	}
	cfg.HTTPPath = expandEnv(cfg.HTTPPath)
	if cfg.HTTPPath == "" {
		cfg.HTTPPath = os.Getenv("WAREHOUSE_HTTP_PATH")
	}
	cfg.SQLDSN = expandEnv(cfg.SQLDSN)
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for lakechat.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "lakechat"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "lakechat"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes the config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`openai:
  model: %s
  base_url: %s
  # api_key: set here or via OPENAI_API_KEY

warehouse:
  # host: your-workspace.example.com
  # token: set here or via WAREHOUSE_TOKEN
  sql_driver: %s
  sql_dsn: %s

chat:
  max_turns: %d
  temperature: %.1f
  # system_prompt: override the built-in prompt
`, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.Warehouse.SQLDriver, cfg.Warehouse.SQLDSN, cfg.Chat.MaxTurns, cfg.Chat.Temperature)

	return os.WriteFile(path, []byte(content), 0600)
}
