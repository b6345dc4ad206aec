package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var debug bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Emit debug logs to stderr")
}

var rootCmd = &cobra.Command{
	Use:   "lakechat",
	Short: "Chat with your data warehouse",
	Long: `lakechat is a streaming chat assistant that answers questions about your
data warehouse by calling SQL and jobs tools over MCP mid-conversation.

Examples:
  lakechat chat                       # interactive chat session
  lakechat chat --session <id>        # resume a saved session
  lakechat serve                      # run the warehouse MCP server on stdio

  lakechat mcp list                   # show configured MCP servers
  lakechat models                     # list models at the provider`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
