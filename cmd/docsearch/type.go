package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/spf13/cobra"
)

var flagTop int

var typeCmd = &cobra.Command{
	Use:   "type <text>...",
	Short: "Type a query one keystroke at a time through a session",
	Long: "Feeds every prefix of the query to one incremental session, the way a search box does, " +
		"and prints how each keystroke was answered (full match, narrowing, cache) with the top results.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupCLILogging(cfg)
		return runType(cmd.Context(), cmd.OutOrStdout(), cfg, strings.Join(args, " "), flagTop, flagFormat)
	},
}

func init() {
	typeCmd.Flags().IntVar(&flagTop, "top", 3, "results shown per keystroke")
}

// keystroke is the JSON shape of one step.
type keystroke struct {
	Input string `json:"input"`
	session.Update
}

func runType(ctx context.Context, w io.Writer, cfg *config.Config, raw string, top int, format string) error {
	eng, _, closer, err := loadEngine(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	s := session.New("cli", eng, matcher.New(matcher.NewLRU(cfg.Search.CacheSize)), session.WithLimit(top))

	var tw *tabwriter.Writer
	if format == formatText {
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INPUT\tMODE\tTOTAL\tTOP")
	}
	runes := []rune(raw)
	for i := 1; i <= len(runes); i++ {
		input := string(runes[:i])
		u, err := s.Update(ctx, input)
		if errors.Is(err, apperrors.ErrStaleQuery) {
			continue
		}
		if err != nil {
			return fmt.Errorf("keystroke %q: %w", input, err)
		}
		if tw == nil {
			if err := writeJSON(w, keystroke{Input: input, Update: u}); err != nil {
				return err
			}
			continue
		}
		labels := make([]string, len(u.Results))
		for j, r := range u.Results {
			labels[j] = r.Label
		}
		fmt.Fprintf(tw, "%q\t%s\t%d\t%s\n", input, u.Mode, u.Total, strings.Join(labels, ", "))
	}
	if tw != nil {
		return tw.Flush()
	}
	return nil
}
