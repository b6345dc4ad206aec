package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the mcp.json configuration file.
type Config struct {
	Servers map[string]ServerConfig `json:"servers"`
}

// ServerConfig describes one stdio MCP server: the command to launch and the
// environment it runs with.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Validate checks that the server configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("server requires a command")
	}
	return nil
}

// DefaultConfigPath returns the default path for mcp.json.
func DefaultConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "lakechat", "mcp.json"), nil
}

// LoadConfig loads the MCP configuration from the default path.
func LoadConfig() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFromPath(path)
}

// LoadConfigFromPath loads the MCP configuration from a specific path.
// A missing file yields an empty configuration.
func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Servers: make(map[string]ServerConfig)}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}
	return &cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveToPath(path)
}

// SaveToPath saves the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ServerNames returns the configured server names.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	return names
}

// AddServer adds or updates a server configuration.
func (c *Config) AddServer(name string, cfg ServerConfig) {
	if c.Servers == nil {
		c.Servers = make(map[string]ServerConfig)
	}
	c.Servers[name] = cfg
}

// RemoveServer removes a server configuration.
func (c *Config) RemoveServer(name string) bool {
	if _, ok := c.Servers[name]; ok {
		delete(c.Servers, name)
		return true
	}
	return false
}
