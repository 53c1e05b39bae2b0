package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/spf13/cobra"
)

var (
	flagLimit int
	flagGroup bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>...",
	Short: "Run one query and print ranked results",
	Long:  "Loads every shard, runs the query once and prints the ranked matches. All arguments are joined with spaces.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupCLILogging(cfg)
		return runQuery(cmd.Context(), cmd.OutOrStdout(), cfg, strings.Join(args, " "), queryOptions{
			limit:  flagLimit,
			group:  flagGroup,
			format: flagFormat,
		})
	},
}

func init() {
	queryCmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum results (default: search.defaultLimit)")
	queryCmd.Flags().BoolVar(&flagGroup, "group", false, "group results by category")
}

type queryOptions struct {
	limit  int
	group  bool
	format string
}

// queryOutput is the JSON shape of a query.
type queryOutput struct {
	Query   string                         `json:"query"`
	Total   int                            `json:"total"`
	Results []session.Result               `json:"results,omitempty"`
	Groups  []ranker.Group[session.Result] `json:"groups,omitempty"`
}

func runQuery(ctx context.Context, w io.Writer, cfg *config.Config, raw string, opts queryOptions) error {
	eng, _, closer, err := loadEngine(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	idx := eng.Current()
	m, err := matcher.New(nil).Match(ctx, idx, raw)
	if err != nil {
		return err
	}
	limit := opts.limit
	if limit <= 0 {
		limit = cfg.Search.DefaultLimit
	}
	hits := m.Hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := session.ToResults(idx, hits)
	out := queryOutput{Query: m.Plan.Normalized, Total: len(m.Hits)}
	if opts.group {
		out.Groups = ranker.GroupByCategory(results, func(r session.Result) shard.Category { return r.Category })
	} else {
		out.Results = results
	}

	if opts.format == formatJSON {
		return writeJSON(w, out)
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "no matches for %q\n", raw)
		return nil
	}
	if opts.group {
		formatGroupedText(w, out.Groups)
	} else {
		formatResultsText(w, results)
	}
	if out.Total > len(results) {
		fmt.Fprintf(w, "(%d of %d shown)\n", len(results), out.Total)
	}
	return nil
}
