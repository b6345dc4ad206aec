package cmd

import (
	"fmt"
	"log/slog"
	"os"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/lakechat/lakechat/internal/config"
	"github.com/lakechat/lakechat/internal/signal"
	"github.com/lakechat/lakechat/internal/warehouse"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the warehouse MCP server on stdio",
	Long: `Runs the warehouse tool server speaking MCP over stdin/stdout. The chat
command launches this automatically; run it directly to plug the warehouse
tools into other MCP clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	// Logs go to stderr: stdout carries the MCP protocol.
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	runner, err := warehouse.OpenSQL(cfg.Warehouse.SQLDriver, cfg.Warehouse.SQLDSN)
	if err != nil {
		return err
	}
	defer runner.Close()

	if err := runner.Ping(ctx); err != nil {
		return err
	}

	server, err := warehouse.NewServer(warehouse.ServerConfig{
		Name:    "lakechat-warehouse",
		Version: Version,
		SQL:     runner,
		API:     warehouse.NewAPIClient(cfg.Warehouse.Host, cfg.Warehouse.Token),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	logger.Info("warehouse MCP server ready", "version", Version, "transport", "stdio")
	if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	logger.Info("warehouse MCP server shut down")
	return nil
}
