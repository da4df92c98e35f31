package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capofinance/capo/internal/classify"
	"github.com/capofinance/capo/internal/store"
)

var migrateSkipSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and seed reference tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))

		if migrateSkipSeed {
			return nil
		}
		return seedReferenceData(ctx, st)
	},
}

// seedReferenceData makes sure the persons and category tables contain
// every name the pipeline can attribute or classify to. Idempotent.
func seedReferenceData(ctx context.Context, st store.Store) error {
	for _, p := range cfg.Import.Persons {
		if _, err := st.EnsurePerson(ctx, p.Name); err != nil {
			return eris.Wrapf(err, "seed person %s", p.Name)
		}
	}
	if _, err := st.EnsurePerson(ctx, cfg.Import.DefaultPerson); err != nil {
		return eris.Wrapf(err, "seed person %s", cfg.Import.DefaultPerson)
	}

	cls, err := classify.New()
	if err != nil {
		return err
	}
	seen := make(map[string]int64)
	for _, r := range cls.Rules() {
		catID, ok := seen[r.Category]
		if !ok {
			cat, err := st.EnsureCategory(ctx, r.Category)
			if err != nil {
				return eris.Wrapf(err, "seed category %s", r.Category)
			}
			catID = cat.ID
			seen[r.Category] = catID
		}
		if r.Subcategory == "" {
			continue
		}
		if _, err := st.EnsureSubcategory(ctx, catID, r.Subcategory); err != nil {
			return eris.Wrapf(err, "seed subcategory %s", r.Subcategory)
		}
	}

	zap.L().Info("reference data seeded",
		zap.Int("persons", len(cfg.Import.Persons)),
		zap.Int("categories", len(seen)),
	)
	return nil
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSkipSeed, "skip-seed", false, "create schema only, do not seed reference tables")
	rootCmd.AddCommand(migrateCmd)
}
