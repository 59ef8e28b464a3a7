package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/webharvest/internal/restapi"
)

var (
	apiBaseURL string
	apiKey     string
	apiParams  map[string]string
)

var apiCmd = &cobra.Command{
	Use:   "api <endpoint>",
	Short: "Fetch a JSON payload from a REST endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := restapi.New(restapi.Options{
			BaseURL: apiBaseURL,
			APIKey:  apiKey,
			Timeout: cfg.HTTP.Timeout(),
		})
		if err != nil {
			return err
		}

		payload, err := client.EndpointData(cmd.Context(), args[0], apiParams)
		if err != nil {
			return err
		}

		enc, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}

func init() {
	apiCmd.Flags().StringVar(&apiBaseURL, "base-url", "", "API base URL")
	apiCmd.Flags().StringVar(&apiKey, "key", "", "API key sent as the api_key query parameter")
	apiCmd.Flags().StringToStringVar(&apiParams, "param", nil, "query parameter as key=value (repeatable)")
	_ = apiCmd.MarkFlagRequired("base-url")
	rootCmd.AddCommand(apiCmd)
}
