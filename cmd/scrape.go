package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/webharvest/internal/extract"
	"github.com/sells-group/webharvest/internal/harvest"
)

var (
	scrapeBackend string
	scrapeQueries []string
	scrapeTable   string
	scrapeBypass  bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Extract fields from one page and optionally persist them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(scrapeQueries) == 0 {
			return fmt.Errorf("at least one --query is required")
		}

		pcfg := harvest.Config{
			URL:         args[0],
			Backend:     extract.Backend(scrapeBackend),
			CloudBypass: scrapeBypass,
			UserAgent:   cfg.HTTP.UserAgent,
			Timeout:     cfg.HTTP.Timeout(),
		}
		if scrapeTable != "" {
			storeCfg := cfg.Store
			pcfg.Store = &storeCfg
		}

		p, err := harvest.GetOrCreate(cmd.Context(), pcfg)
		if err != nil {
			return err
		}

		lists, err := p.Extract(scrapeQueries...)
		if err != nil {
			return err
		}
		for i, list := range lists {
			fmt.Printf("%s (%d matches)\n", scrapeQueries[i], len(list))
			for _, v := range list {
				fmt.Printf("  %s\n", v)
			}
		}

		if scrapeTable != "" {
			return p.SaveToSink(cmd.Context(), scrapeTable)
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeBackend, "backend", "css", "extraction backend: css or xpath")
	scrapeCmd.Flags().StringArrayVar(&scrapeQueries, "query", nil, "selector or path expression (repeatable)")
	scrapeCmd.Flags().StringVar(&scrapeTable, "table", "", "persist extracted values to this table")
	scrapeCmd.Flags().BoolVar(&scrapeBypass, "cloud-bypass", false, "route the fetch through the Cloudflare bypass transport")
	rootCmd.AddCommand(scrapeCmd)
}
