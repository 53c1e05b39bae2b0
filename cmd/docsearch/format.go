package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/session"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatResultsText prints results as aligned columns.
func formatResultsText(w io.Writer, results []session.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tCATEGORY\tMATCH\tSCOPE\tURL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Label, r.Category, r.Tier, scopes(r.Anchors), r.URL)
	}
	tw.Flush()
}

// formatGroupedText prints one block per category in first-seen order.
func formatGroupedText(w io.Writer, groups []ranker.Group[session.Result]) {
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d)\n", g.Category, len(g.Items))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, r := range g.Items {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Label, scopes(r.Anchors), r.URL)
		}
		tw.Flush()
	}
}

// scopes joins the non-empty anchor scopes of an overloaded symbol.
func scopes(anchors []shard.Anchor) string {
	var out []string
	for _, a := range anchors {
		if a.Scope != "" {
			out = append(out, a.Scope)
		}
	}
	return strings.Join(out, ", ")
}

// formatReportText prints a reload report as a shard table followed by
// the skipped shards, if any.
func formatReportText(w io.Writer, r *engine.Report) {
	fmt.Fprintf(w, "source:      %s\n", r.Source)
	fmt.Fprintf(w, "version:     %d\n", r.Version)
	fmt.Fprintf(w, "entries:     %d\n", r.Entries)
	fmt.Fprintf(w, "terms:       %d\n", r.Terms)
	fmt.Fprintf(w, "fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(w, "duration:    %s\n\n", r.Duration.Round(time.Microsecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHARD\tCATEGORY\tENTRIES")
	for _, s := range r.Shards {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Key, s.Category, s.Entries)
	}
	tw.Flush()

	if len(r.Failed) == 0 {
		return
	}
	fmt.Fprintf(w, "\nFAILED (%d)\n", len(r.Failed))
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  %s: %s\n", f.Key, f.Reason)
	}
}
