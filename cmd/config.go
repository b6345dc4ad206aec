package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lakechat/lakechat/internal/config"
)

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("model:      %s\n", cfg.OpenAI.Model)
		fmt.Printf("base_url:   %s\n", cfg.OpenAI.BaseURL)
		fmt.Printf("api_key:    %s\n", maskSecret(cfg.OpenAI.APIKey))
		fmt.Printf("warehouse:  %s\n", valueOr(cfg.Warehouse.Host, "(not configured)"))
		fmt.Printf("token:      %s\n", maskSecret(cfg.Warehouse.Token))
		fmt.Printf("sql_driver: %s\n", cfg.Warehouse.SQLDriver)
		fmt.Printf("sql_dsn:    %s\n", cfg.Warehouse.SQLDSN)
		fmt.Printf("max_turns:  %d\n", cfg.Chat.MaxTurns)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.Exists() {
			path, _ := config.GetConfigPath()
			return fmt.Errorf("config already exists at %s", path)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		path, _ := config.GetConfigPath()
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
