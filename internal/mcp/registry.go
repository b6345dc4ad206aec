package mcp

import (
	"sync"

	"github.com/lakechat/lakechat/internal/llm"
)

// Registry maps tool names to the connection that serves them. Tool names are
// global: the first connection to register a name owns it and later
// registrations of the same name by other connections are ignored.
type Registry struct {
	mu     sync.RWMutex
	owners map[string]string         // tool name -> connection name
	specs  map[string][]llm.ToolSpec // connection name -> its tools
}

func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[string]string),
		specs:  make(map[string][]llm.ToolSpec),
	}
}

// Register records a connection's tools. Re-registering the same connection
// replaces its previous tool set.
func (r *Registry) Register(conn string, tools []llm.ToolSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(conn)

	kept := make([]llm.ToolSpec, 0, len(tools))
	for _, tool := range tools {
		if owner, taken := r.owners[tool.Name]; taken && owner != conn {
			continue
		}
		r.owners[tool.Name] = conn
		kept = append(kept, tool)
	}
	r.specs[conn] = kept
}

// Remove drops a connection and all its tools.
func (r *Registry) Remove(conn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn)
}

func (r *Registry) removeLocked(conn string) {
	for _, tool := range r.specs[conn] {
		if r.owners[tool.Name] == conn {
			delete(r.owners, tool.Name)
		}
	}
	delete(r.specs, conn)
}

// FindOwner implements llm.ToolResolver.
func (r *Registry) FindOwner(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.owners[name]
	return conn, ok
}

// AllSpecs returns every registered tool across all connections.
func (r *Registry) AllSpecs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []llm.ToolSpec
	for _, tools := range r.specs {
		all = append(all, tools...)
	}
	return all
}
