package warehouse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes warehouse tools over MCP. Every tool failure is reported as
// an error result with the message as content, so the calling model can read
// it and adjust.
type Server struct {
	mcpServer *mcp.Server
	sql       *SQLRunner
	api       *APIClient
	history   *History
	logger    *slog.Logger
}

// ServerConfig holds the dependencies for a warehouse MCP server.
type ServerConfig struct {
	Name    string
	Version string
	SQL     *SQLRunner
	API     *APIClient
	Logger  *slog.Logger
}

// NewServer creates the MCP server and registers all warehouse tools.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.SQL == nil {
		return nil, fmt.Errorf("SQL runner is required")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("API client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: version,
		}, nil),
		sql:     cfg.SQL,
		api:     cfg.API,
		history: NewHistory(),
		logger:  logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// RunSQLQueryInput is the input schema for run_sql_query.
type RunSQLQueryInput struct {
	SQL string `json:"sql" jsonschema:"The SQL query to execute. Only SELECT, SHOW, and DESCRIBE statements are allowed."`
}

// DescribeTableInput is the input schema for describe_table.
type DescribeTableInput struct {
	TableName string `json:"table_name" jsonschema:"The name of the table to describe."`
}

// JobInput is the input schema for job-scoped tools.
type JobInput struct {
	JobID int64 `json:"job_id" jsonschema:"The numeric job identifier."`
}

// EmptyInput is the input schema for zero-argument tools.
type EmptyInput struct{}

func (s *Server) registerTools() error {
	type toolDef struct {
		name        string
		description string
		register    func(tool *mcp.Tool) error
	}

	defs := []toolDef{
		{
			name:        "run_sql_query",
			description: "Execute SQL queries on the warehouse with safety checks. Only read statements are allowed.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[RunSQLQueryInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.runSQLQuery)
				return nil
			},
		},
		{
			name:        "list_databases",
			description: "List all databases in the warehouse.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[EmptyInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.listDatabases)
				return nil
			},
		},
		{
			name:        "describe_table",
			description: "Get detailed schema information for a specific table.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[DescribeTableInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.describeTable)
				return nil
			},
		},
		{
			name:        "list_jobs",
			description: "List all warehouse jobs.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[EmptyInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.listJobs)
				return nil
			},
		},
		{
			name:        "get_job_status",
			description: "Get the run history and status of a specific job.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[JobInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.getJobStatus)
				return nil
			},
		},
		{
			name:        "get_job_details",
			description: "Get detailed configuration for a specific job.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[JobInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.getJobDetails)
				return nil
			},
		},
		{
			name:        "get_cluster_info",
			description: "Get information about available compute clusters.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[EmptyInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.getClusterInfo)
				return nil
			},
		},
		{
			name:        "get_interaction_history",
			description: "Get the history of tool interactions in this session.",
			register: func(tool *mcp.Tool) error {
				schema, err := jsonschema.For[EmptyInput](nil)
				if err != nil {
					return err
				}
				tool.InputSchema = schema
				mcp.AddTool(s.mcpServer, tool, s.getInteractionHistory)
				return nil
			},
		},
	}

	for _, def := range defs {
		tool := &mcp.Tool{Name: def.name, Description: def.description}
		if err := def.register(tool); err != nil {
			return fmt.Errorf("tool %s: %w", def.name, err)
		}
	}
	return nil
}

// finish records the interaction and builds the tool result. Errors become
// error results carrying the message as text.
func (s *Server) finish(kind, input, output string, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		s.logger.Warn("tool failed", "tool", kind, "error", err)
		message := fmt.Sprintf("Error: %v", err)
		s.history.Record(kind, input, message)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: message}},
			IsError: true,
		}, nil, nil
	}

	s.logger.Debug("tool completed", "tool", kind)
	s.history.Record(kind, input, output)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: output}},
	}, nil, nil
}

func (s *Server) runSQLQuery(ctx context.Context, req *mcp.CallToolRequest, in RunSQLQueryInput) (*mcp.CallToolResult, any, error) {
	output, err := s.sql.RunQuery(ctx, in.SQL)
	return s.finish("sql_query", in.SQL, output, err)
}

func (s *Server) listDatabases(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, any, error) {
	output, err := s.sql.ListDatabases(ctx)
	return s.finish("list_databases", "list_databases()", output, err)
}

func (s *Server) describeTable(ctx context.Context, req *mcp.CallToolRequest, in DescribeTableInput) (*mcp.CallToolResult, any, error) {
	output, err := s.sql.DescribeTable(ctx, in.TableName)
	return s.finish("describe_table", fmt.Sprintf("describe_table(%s)", in.TableName), output, err)
}

func (s *Server) listJobs(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, any, error) {
	output, err := s.api.ListJobs(ctx)
	return s.finish("list_jobs", "list_jobs()", output, err)
}

func (s *Server) getJobStatus(ctx context.Context, req *mcp.CallToolRequest, in JobInput) (*mcp.CallToolResult, any, error) {
	output, err := s.api.GetJobStatus(ctx, in.JobID)
	return s.finish("get_job_status", fmt.Sprintf("get_job_status(%d)", in.JobID), output, err)
}

func (s *Server) getJobDetails(ctx context.Context, req *mcp.CallToolRequest, in JobInput) (*mcp.CallToolResult, any, error) {
	output, err := s.api.GetJobDetails(ctx, in.JobID)
	return s.finish("get_job_details", fmt.Sprintf("get_job_details(%d)", in.JobID), output, err)
}

func (s *Server) getClusterInfo(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, any, error) {
	output, err := s.api.GetClusterInfo(ctx)
	return s.finish("get_cluster_info", "get_cluster_info()", output, err)
}

func (s *Server) getInteractionHistory(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, any, error) {
	// Reading the history is not itself an interaction.
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: s.history.Render()}},
	}, nil, nil
}
