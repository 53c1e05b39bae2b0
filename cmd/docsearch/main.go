// Command docsearch serves and queries the incremental symbol search index
// built from documentation search shards.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDir      string
	flagFormat   string
	flagLogLevel string
)

// errorHandled is set when a command already reported its failure.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "docsearch",
	Short:         "Incremental multi-shard symbol search for generated documentation",
	Long:          "docsearch loads documentation search shards, indexes every symbol label by its word suffixes and answers type-ahead queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "shard directory (overrides config, implies the dir source)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: text|json")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(typeCmd)
	rootCmd.AddCommand(checkCmd)
}

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("invalid --format %q (want %s or %s)", format, formatText, formatJSON)
	}
}

var errCheckFailed = errors.New("some shards failed to load")
