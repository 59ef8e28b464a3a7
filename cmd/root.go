package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/webharvest/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "webharvest",
	Short: "Fetch web pages, extract structured fields, persist to Postgres",
	Long:  "Fetches pages over plain or authenticated HTTP, extracts fields via CSS selectors or XPath, and writes the extracted values to a relational sink.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
