package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lakechat/lakechat/internal/config"
	"github.com/lakechat/lakechat/internal/llm"
	"github.com/lakechat/lakechat/internal/mcp"
	"github.com/lakechat/lakechat/internal/session"
	"github.com/lakechat/lakechat/internal/signal"
)

const defaultSystemPrompt = `You are a helpful AI assistant with direct access to data warehouse tools through MCP (Model Context Protocol).

When users ask about warehouse data, jobs, or infrastructure, ALWAYS use these tools instead of providing generic SQL examples.

For example:
- "Show me databases" -> Use the list_databases tool
- "What tables do I have?" -> Use run_sql_query with "SHOW TABLES"
- "Describe the sales table" -> Use describe_table with "sales"
- "What jobs are running?" -> Use the list_jobs tool

Be direct and actionable - use the tools to get real information from the user's warehouse environment.`

var (
	chatSessionID string
	chatModel     string
	chatMaxTurns  int
)

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume a saved session by ID")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Override the configured model")
	chatCmd.Flags().IntVar(&chatMaxTurns, "max-turns", 0, "Max tool rounds per message (default from config)")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("no API key configured: set openai.api_key or OPENAI_API_KEY")
		}
		return runChat(cfg)
	},
}

func runChat(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	store, err := session.NewSQLiteStore()
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	manager, err := startMCP(ctx)
	if err != nil {
		return err
	}
	defer manager.StopAll()

	model := cfg.OpenAI.Model
	if chatModel != "" {
		model = chatModel
	}

	sess, conv, err := resumeOrCreate(ctx, store, cfg, model)
	if err != nil {
		return err
	}

	provider := llm.NewOpenAIProvider(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, model)
	engine := llm.NewEngine(provider, manager.Registry(), manager)
	engine.SetTurnCompletedCallback(func(appended []llm.Message) {
		if err := store.AppendMessages(ctx, sess.ID, appended); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save messages: %v\n", err)
		}
	})

	maxTurns := cfg.Chat.MaxTurns
	if chatMaxTurns > 0 {
		maxTurns = chatMaxTurns
	}

	fmt.Printf("Session %s (model %s). Type 'exit' to quit.\n", sess.ID, model)
	if servers := manager.RunningServers(); len(servers) > 0 {
		fmt.Printf("Connected MCP servers: %s\n", strings.Join(servers, ", "))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		userMsg := llm.UserText(input)
		conv.Append(userMsg)
		if err := store.AppendMessages(ctx, sess.ID, []llm.Message{userMsg}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save message: %v\n", err)
		}

		req := llm.Request{
			Model:       model,
			Tools:       manager.AllTools(),
			Temperature: cfg.Chat.Temperature,
			MaxTurns:    maxTurns,
			Debug:       debug,
		}
		if err := streamAnswer(ctx, engine, conv, req); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Printf("\nSorry, I encountered an error: %v\n", err)
		}
	}
	return scanner.Err()
}

// streamAnswer consumes one engine stream, printing text deltas as they
// arrive and tool activity as it happens.
func streamAnswer(ctx context.Context, engine *llm.Engine, conv *llm.Conversation, req llm.Request) error {
	stream := engine.Stream(ctx, conv, req)
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch event.Type {
		case llm.EventTextDelta:
			fmt.Print(event.Text)
		case llm.EventToolExecStart:
			fmt.Printf("\n[calling %s]\n", event.ToolName)
		case llm.EventToolExecEnd:
			if !event.ToolSuccess {
				fmt.Printf("[%s failed]\n", event.ToolName)
			}
		case llm.EventDone:
			fmt.Println()
			return nil
		}
	}
}

func resumeOrCreate(ctx context.Context, store session.Store, cfg *config.Config, model string) (*session.Session, *llm.Conversation, error) {
	systemPrompt := cfg.Chat.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	if chatSessionID != "" {
		sess, err := store.GetSession(ctx, chatSessionID)
		if err != nil {
			return nil, nil, err
		}
		messages, err := store.Messages(ctx, sess.ID)
		if err != nil {
			return nil, nil, err
		}
		return sess, llm.NewConversation(messages...), nil
	}

	sess, err := store.CreateSession(ctx, "", model)
	if err != nil {
		return nil, nil, err
	}
	systemMsg := llm.SystemText(systemPrompt)
	if err := store.AppendMessages(ctx, sess.ID, []llm.Message{systemMsg}); err != nil {
		return nil, nil, err
	}
	return sess, llm.NewConversation(systemMsg), nil
}

// startMCP loads mcp.json and connects the configured servers. With nothing
// configured it falls back to this binary's own warehouse server.
func startMCP(ctx context.Context) (*mcp.Manager, error) {
	mcpCfg, err := mcp.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load MCP config: %w", err)
	}

	if len(mcpCfg.Servers) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate own binary for warehouse server: %w", err)
		}
		mcpCfg.AddServer("warehouse", mcp.ServerConfig{
			Command: self,
			Args:    []string{"serve"},
		})
	}

	manager := mcp.NewManager(mcpCfg)
	if err := manager.StartAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return manager, nil
}
