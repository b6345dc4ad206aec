package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lakechat/lakechat/internal/llm"
)

// Manager owns the lifecycle of every configured MCP server and routes tool
// invocations to the right connection. It implements llm.ToolInvoker; its
// Registry implements llm.ToolResolver.
type Manager struct {
	config   *Config
	registry *Registry

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewManager(config *Config) *Manager {
	return &Manager{
		config:   config,
		registry: NewRegistry(),
		clients:  make(map[string]*Client),
	}
}

// Registry returns the tool registry backing this manager.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// StartAll connects every configured server and registers its tools. A server
// that fails to start is reported but does not prevent the others from
// starting; the returned error aggregates the failures.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error
	for name, serverCfg := range m.config.Servers {
		if err := m.start(ctx, name, serverCfg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("starting MCP servers: %v", errs)
	}
	return nil
}

func (m *Manager) start(ctx context.Context, name string, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %s: %w", name, err)
	}

	m.mu.Lock()
	if _, running := m.clients[name]; running {
		m.mu.Unlock()
		return nil
	}
	client := NewClient(name, cfg)
	m.clients[name] = client
	m.mu.Unlock()

	if err := client.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.clients, name)
		m.mu.Unlock()
		return err
	}

	m.registry.Register(name, client.Tools())
	return nil
}

// Stop shuts down one server and unregisters its tools.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	delete(m.clients, name)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.registry.Remove(name)
	return client.Stop()
}

// StopAll shuts down every running server.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := make(map[string]*Client, len(m.clients))
	for name, client := range m.clients {
		clients[name] = client
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for name, client := range clients {
		m.registry.Remove(name)
		client.Stop()
	}
}

// RunningServers returns the names of connected servers.
func (m *Manager) RunningServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}

// AllTools returns every tool across all running servers.
func (m *Manager) AllTools() []llm.ToolSpec {
	return m.registry.AllSpecs()
}

// Invoke implements llm.ToolInvoker by routing the call to the named
// connection.
func (m *Manager) Invoke(ctx context.Context, conn, tool string, args json.RawMessage) ([]llm.ToolContentPart, error) {
	m.mu.RLock()
	client, ok := m.clients[conn]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("MCP server %s is not running", conn)
	}
	return client.CallTool(ctx, tool, args)
}
