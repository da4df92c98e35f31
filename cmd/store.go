package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/capofinance/capo/internal/classify"
	"github.com/capofinance/capo/internal/importer"
	"github.com/capofinance/capo/internal/parser"
	"github.com/capofinance/capo/internal/store"
	"go.uber.org/zap"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "capo.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initImporter(st store.Store) (*importer.Importer, error) {
	cls, err := classify.New()
	if err != nil {
		return nil, err
	}

	persons := make([]parser.Person, 0, len(cfg.Import.Persons))
	for _, p := range cfg.Import.Persons {
		persons = append(persons, parser.Person{Name: p.Name, Markers: p.Markers})
	}

	return importer.New(st, cls, importer.Options{
		Persons:          persons,
		DefaultPerson:    cfg.Import.DefaultPerson,
		FallbackPersonID: cfg.Import.FallbackPersonID,
	}, zap.L()), nil
}
