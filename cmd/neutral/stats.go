package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CTAG07/Neutral/pkg/stats"
)

func newStatsCmd() *cobra.Command {
	var (
		dbPath string
		top    int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show render stats recorded by a neutral-ipc engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := stats.Open(dbPath)
			if err != nil {
				return err
			}
			store, err := stats.NewStore(db, newLogger(cmd))
			if err != nil {
				_ = db.Close()
				return err
			}
			defer func(store *stats.Store) {
				_ = store.Close()
			}(store)

			sum, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := store.Top(cmd.Context(), top)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s renders of %s templates (%s errors, %s redirects)\n\n",
				humanize.Comma(sum.TotalRenders), humanize.Comma(sum.UniqueTemplates),
				humanize.Comma(sum.ErrorRenders), humanize.Comma(sum.RedirectRenders))

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "TEMPLATE\tRENDERS\tERRORS\tREDIRECTS\tLAST STATUS\tLAST SEEN")
			for _, r := range rows {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.Path, humanize.Comma(r.TotalRenders), humanize.Comma(r.ErrorRenders),
					humanize.Comma(r.RedirectRenders), r.LastStatus, humanize.Time(r.LastSeen))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "./data/neutral_stats.db", "stats database path")
	cmd.Flags().IntVarP(&top, "top", "n", 20, "number of templates to list")
	return cmd
}
