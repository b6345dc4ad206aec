package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lakechat/lakechat/internal/llm"
)

// Client wraps a connection to one stdio MCP server.
type Client struct {
	name   string
	config ServerConfig

	mu      sync.RWMutex
	client  *mcp.Client
	session *mcp.ClientSession
	tools   []llm.ToolSpec
	running bool
}

// NewClient creates a new MCP client for the given server configuration.
func NewClient(name string, config ServerConfig) *Client {
	return &Client{
		name:   name,
		config: config,
	}
}

// Name returns the server name.
func (c *Client) Name() string {
	return c.name
}

// Start launches the server process, initializes the session, and fetches the
// tool list.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.client = mcp.NewClient(&mcp.Implementation{
		Name:    "lakechat",
		Version: "1.0.0",
	}, nil)

	cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
	cmd.Env = os.Environ()
	for k, v := range c.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	transport := &mcp.CommandTransport{Command: cmd}
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to MCP server %s: %w", c.name, err)
	}
	c.session = session

	if err := c.refreshTools(ctx); err != nil {
		c.session.Close()
		c.session = nil
		return fmt.Errorf("list tools from %s: %w", c.name, err)
	}

	c.running = true
	return nil
}

// Stop closes the MCP server connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}
	c.running = false
	c.tools = nil
	return err
}

// IsRunning returns whether the client is connected.
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Tools returns the available tools from this server.
func (c *Client) Tools() []llm.ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	c.tools = make([]llm.ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema := make(map[string]any)
		if t.InputSchema != nil {
			data, err := json.Marshal(t.InputSchema)
			if err == nil {
				_ = json.Unmarshal(data, &schema)
			}
		}
		c.tools = append(c.tools, llm.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return nil
}

// CallTool invokes a tool and decodes the result into normalized content
// parts. A result the server flags as an error comes back as a Go error
// carrying the result text, so callers can feed it to the model as data.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) ([]llm.ToolContentPart, error) {
	c.mu.RLock()
	session := c.session
	running := c.running
	c.mu.RUnlock()

	if !running || session == nil {
		return nil, fmt.Errorf("MCP server %s is not running", c.name)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}

	parts, err := decodeContent(result.Content)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	if result.IsError {
		return nil, fmt.Errorf("tool %s returned error: %s", name, flattenText(parts))
	}
	return parts, nil
}

// decodeContent converts MCP content items to normalized parts. Content of a
// kind this client does not understand is a decode error, not a silent skip.
func decodeContent(content []mcp.Content) ([]llm.ToolContentPart, error) {
	parts := make([]llm.ToolContentPart, 0, len(content))
	for _, item := range content {
		switch v := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, llm.ToolContentPart{
				Type: llm.ToolContentPartText,
				Text: v.Text,
			})
		case *mcp.ImageContent:
			parts = append(parts, llm.ToolContentPart{
				Type: llm.ToolContentPartImage,
				ImageData: &llm.ToolImageData{
					MediaType: v.MIMEType,
					Base64:    base64.StdEncoding.EncodeToString(v.Data),
				},
			})
		default:
			return nil, fmt.Errorf("unsupported content type %T", item)
		}
	}
	return parts, nil
}

func flattenText(parts []llm.ToolContentPart) string {
	var texts []string
	for _, part := range parts {
		if part.Type == llm.ToolContentPartText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
