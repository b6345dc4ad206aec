package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakechat/lakechat/internal/config"
	"github.com/lakechat/lakechat/internal/llm"
	"github.com/lakechat/lakechat/internal/signal"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available at the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("no API key configured: set openai.api_key or OPENAI_API_KEY")
		}

		ctx, stop := signal.NotifyContext()
		defer stop()

		models, err := llm.ListModels(ctx, cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey)
		if err != nil {
			return err
		}
		for _, m := range models {
			marker := "  "
			if m.ID == cfg.OpenAI.Model {
				marker = "* "
			}
			created := ""
			if m.Created > 0 {
				created = time.Unix(m.Created, 0).Format("2006-01-02")
			}
			fmt.Printf("%s%-40s %s\n", marker, m.ID, created)
		}
		return nil
	},
}
