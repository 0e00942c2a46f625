// Package storage opens the configured repositories backend.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/nutkeeper/internal/dbx"
	"github.com/dmitrijs2005/nutkeeper/internal/filex"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories/badgerrepo"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories/sqlrepo"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

const sqliteFile = "wallet.db"

type Options struct {
	Backend     string
	DataDir     string
	PostgresDSN string
	Logger      logging.Logger
}

// Open returns a migrated, ready store for opts.Backend.
func Open(ctx context.Context, opts Options) (repositories.Store, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	switch opts.Backend {
	case BackendSQLite, "":
		dir, err := filex.EnsureDir(opts.DataDir)
		if err != nil {
			return nil, err
		}
		return wrap(sqlrepo.Open(ctx, dbx.SQLite, filepath.Join(dir, sqliteFile)))
	case BackendPostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend needs a DSN")
		}
		return wrap(sqlrepo.Open(ctx, dbx.Postgres, opts.PostgresDSN))
	case BackendBadger:
		dir, err := filex.EnsureSubDir(opts.DataDir, "badger")
		if err != nil {
			return nil, err
		}
		return wrap(badgerrepo.Open(dir, logging.NewBadgerLogger(opts.Logger)))
	case BackendMemory:
		return wrap(badgerrepo.Open("", logging.NewBadgerLogger(opts.Logger)))
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
}

// wrap keeps a nil concrete store from turning into a non-nil interface.
func wrap[S repositories.Store](s S, err error) (repositories.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
