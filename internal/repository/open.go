package repository

import (
	"context"
	"fmt"
)

type OpenOptions struct {
	Driver        string
	Postgres      *Credentials
	SQLiteDSN     string
	MongoURI      string
	MongoDatabase string
}

// Open connects the configured store and brings its schema up to date.
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	switch opts.Driver {
	case "postgres":
		if opts.Postgres == nil {
			return nil, fmt.Errorf("postgres store: missing credentials")
		}
		repo, err := NewRepository(opts.Postgres)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil

	case "sqlite":
		repo, err := NewSQLiteRepository(opts.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil

	case "mongo":
		db, err := ConnectMongoDB(ctx, opts.MongoURI, opts.MongoDatabase)
		if err != nil {
			return nil, err
		}
		repo := NewMongoRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
