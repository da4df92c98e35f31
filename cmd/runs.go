package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/capofinance/capo/internal/model"
	"github.com/capofinance/capo/internal/store"
)

var (
	runsSource string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List import run history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListImportRuns(ctx, store.RunFilter{
			SourceKind: model.SourceKind(runsSource),
			Limit:      runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No import runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.ImportRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSOURCE\tFILE\tSTATUS\tTOTAL\tIMPORTED\tSKIPPED\tERRORS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.SourceKind,
			r.Filename,
			r.Status,
			r.TotalRows,
			r.ImportedRows,
			r.SkippedRows,
			r.ErrorRows,
		)
	}
	_ = tw.Flush()
}

func init() {
	runsCmd.Flags().StringVar(&runsSource, "source", "", "filter by source kind (statement|bill)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
