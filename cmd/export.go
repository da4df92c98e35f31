package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capofinance/capo/internal/report"
	"github.com/capofinance/capo/internal/store"
)

var (
	exportYear  int
	exportMonth int
	exportOut   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a monthly spending report as XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if exportMonth < 1 || exportMonth > 12 {
			return eris.New("--month must be between 1 and 12")
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		month := time.Month(exportMonth)
		spending, err := st.MonthlySpending(ctx, exportYear, month)
		if err != nil {
			return eris.Wrap(err, "monthly spending")
		}

		from := time.Date(exportYear, month, 1, 0, 0, 0, 0, time.UTC)
		txns, err := st.ListTransactions(ctx, store.TxFilter{From: from, To: from.AddDate(0, 1, 0)})
		if err != nil {
			return eris.Wrap(err, "list transactions")
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", exportOut)
		}
		defer f.Close() //nolint:errcheck

		monthly := report.Monthly{Year: exportYear, Month: month, Spending: spending, Transactions: txns}
		if err := report.WriteXLSX(f, monthly); err != nil {
			return err
		}

		zap.L().Info("report written",
			zap.String("file", exportOut),
			zap.Int("categories", len(spending)),
			zap.Int("transactions", len(txns)),
		)
		return nil
	},
}

func init() {
	now := time.Now()
	exportCmd.Flags().IntVar(&exportYear, "year", now.Year(), "report year")
	exportCmd.Flags().IntVar(&exportMonth, "month", int(now.Month()), "report month (1-12)")
	exportCmd.Flags().StringVar(&exportOut, "out", "spending.xlsx", "output file path")
	rootCmd.AddCommand(exportCmd)
}
