package main

import (
	"fmt"

	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/spf13/cobra"
)

var (
	setAPIKey     string
	setBaseURL    string
	setModel      string
	setTokenLimit int
)

// configCmd groups the API configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or change the stored text-generation API configuration",
}

var configGetCmd = dbCommand(&cobra.Command{
	Use:   "get",
	Short: "Show the API configuration with the key masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := newSettingsProvider().Current(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(view)
	},
})

var configSetCmd = dbCommand(&cobra.Command{
	Use:     "set",
	Short:   "Store API configuration values",
	Example: `  chunk-service config set --api-key sk-... --model claude-3-haiku`,
	RunE:    runConfigSet,
})

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd)

	configSetCmd.Flags().StringVar(&setAPIKey, "api-key", "", "API key")
	configSetCmd.Flags().StringVar(&setBaseURL, "base-url", "", "Messages endpoint URL")
	configSetCmd.Flags().StringVar(&setModel, "model", "", "Model name")
	configSetCmd.Flags().IntVar(&setTokenLimit, "token-limit", 0, "Maximum tokens per response")
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	var in settings.UpdateInput
	flags := cmd.Flags()
	if flags.Changed("api-key") {
		in.APIKey = &setAPIKey
	}
	if flags.Changed("base-url") {
		in.BaseURL = &setBaseURL
	}
	if flags.Changed("model") {
		in.Model = &setModel
	}
	if flags.Changed("token-limit") {
		in.TokenLimit = &setTokenLimit
	}
	if in.APIKey == nil && in.BaseURL == nil && in.Model == nil && in.TokenLimit == nil {
		return fmt.Errorf("nothing to set: pass at least one of --api-key, --base-url, --model, --token-limit")
	}

	view, err := newSettingsProvider().Update(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Println("Configuration updated successfully.")
	return printJSON(view)
}
