package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capofinance/capo/internal/model"
)

var (
	importFiles   []string
	importAccount string
	importCard    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import bank exports into the transaction store",
}

var importStatementCmd = &cobra.Command{
	Use:   "statement",
	Short: "Import bank account statement CSV exports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), model.SourceStatement)
	},
}

var importBillCmd = &cobra.Command{
	Use:   "bill",
	Short: "Import credit card bill CSV exports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), model.SourceBill)
	},
}

func runImport(ctx context.Context, kind model.SourceKind) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	im, err := initImporter(st)
	if err != nil {
		return err
	}

	var accountID, cardID *int64
	switch kind {
	case model.SourceStatement:
		if importAccount != "" {
			acct, err := st.EnsureAccount(ctx, importAccount)
			if err != nil {
				return eris.Wrap(err, "resolve account")
			}
			accountID = &acct.ID
		}
	case model.SourceBill:
		if importCard != "" {
			card, err := st.EnsureCreditCard(ctx, importCard)
			if err != nil {
				return eris.Wrap(err, "resolve credit card")
			}
			cardID = &card.ID
		}
	}

	// Files go through the pipeline concurrently. Row-level dedup makes
	// overlapping exports safe to run in parallel.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, path := range importFiles {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s", path)
			}

			var res *model.ImportResult
			switch kind {
			case model.SourceStatement:
				res, err = im.ImportStatement(gctx, filepath.Base(path), data, accountID)
			default:
				res, err = im.ImportBill(gctx, filepath.Base(path), data, cardID)
			}
			if err != nil && res == nil {
				return eris.Wrapf(err, "import %s", path)
			}

			zap.L().Info("file processed",
				zap.String("file", path),
				zap.String("status", res.Status),
				zap.Int("total", res.TotalRows),
				zap.Int("imported", res.ImportedRows),
				zap.Int("skipped", res.SkippedRows),
				zap.Int("errored", res.ErrorRows),
				zap.String("message", res.Message),
			)
			if res.Status == model.ResultError && err != nil {
				return eris.Wrapf(err, "import %s", path)
			}
			return nil
		})
	}
	return g.Wait()
}

func init() {
	for _, c := range []*cobra.Command{importStatementCmd, importBillCmd} {
		c.Flags().StringArrayVar(&importFiles, "file", nil, "CSV file to import (repeatable)")
		_ = c.MarkFlagRequired("file")
	}
	importStatementCmd.Flags().StringVar(&importAccount, "account", "", "bank account name to link transactions to")
	importBillCmd.Flags().StringVar(&importCard, "card", "", "credit card name to link transactions to")

	importCmd.AddCommand(importStatementCmd, importBillCmd)
	rootCmd.AddCommand(importCmd)
}
