package main

import (
	"context"
	"io"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every shard and report what was indexed",
	Long:  "Fetches and parses every shard, prints per-shard entry counts and the shards that failed. Exits 1 if any shard failed.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupCLILogging(cfg)
		err = runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, flagFormat)
		if err == errCheckFailed {
			// the report already lists the failures
			errorHandled = true
		}
		return err
	},
}

func runCheck(ctx context.Context, w io.Writer, cfg *config.Config, format string) error {
	_, report, closer, err := loadEngine(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	if format == formatJSON {
		if err := writeJSON(w, report); err != nil {
			return err
		}
	} else {
		formatReportText(w, report)
	}
	if len(report.Failed) > 0 {
		return errCheckFailed
	}
	return nil
}
