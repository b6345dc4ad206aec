package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lakechat/lakechat/internal/mcp"
	"github.com/lakechat/lakechat/internal/signal"
)

func init() {
	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpAddCmd)
	mcpCmd.AddCommand(mcpRemoveCmd)
	mcpCmd.AddCommand(mcpTestCmd)
	mcpCmd.AddCommand(mcpPathCmd)
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage MCP server configuration",
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := mcp.LoadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Servers) == 0 {
			fmt.Println("No MCP servers configured. The chat command will use the built-in warehouse server.")
			return nil
		}
		names := cfg.ServerNames()
		sort.Strings(names)
		for _, name := range names {
			server := cfg.Servers[name]
			fmt.Printf("%s: %s", name, server.Command)
			for _, arg := range server.Args {
				fmt.Printf(" %s", arg)
			}
			fmt.Println()
		}
		return nil
	},
}

var mcpAddCmd = &cobra.Command{
	Use:   "add <name> <command> [args...]",
	Short: "Add or update an MCP server",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := mcp.LoadConfig()
		if err != nil {
			return err
		}
		server := mcp.ServerConfig{Command: args[1], Args: args[2:]}
		if err := server.Validate(); err != nil {
			return err
		}
		cfg.AddServer(args[0], server)
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Added MCP server %q\n", args[0])
		return nil
	},
}

var mcpRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := mcp.LoadConfig()
		if err != nil {
			return err
		}
		if !cfg.RemoveServer(args[0]) {
			return fmt.Errorf("unknown MCP server: %s", args[0])
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Removed MCP server %q\n", args[0])
		return nil
	},
}

var mcpTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Connect to an MCP server and list its tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := mcp.LoadConfig()
		if err != nil {
			return err
		}
		serverCfg, ok := cfg.Servers[args[0]]
		if !ok {
			return fmt.Errorf("unknown MCP server: %s", args[0])
		}

		ctx, stop := signal.NotifyContext()
		defer stop()

		client := mcp.NewClient(args[0], serverCfg)
		if err := client.Start(ctx); err != nil {
			return err
		}
		defer client.Stop()

		tools := client.Tools()
		fmt.Printf("Connected to %q, %d tools:\n", args[0], len(tools))
		for _, tool := range tools {
			fmt.Printf("  %s: %s\n", tool.Name, tool.Description)
		}
		return nil
	},
}

var mcpPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the mcp.json path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := mcp.DefaultConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}
