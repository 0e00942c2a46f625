// Package badgerrepo implements the repositories on an embedded badger
// database through badgerhold. Every repository method runs inside a
// badger transaction; WithTx shares one transaction across repositories.
package badgerrepo

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/timshannon/badgerhold/v4"
)

// Store implements repositories.Store.
type Store struct {
	db  *badgerhold.Store
	txn *badger.Txn
}

// Open opens (or creates) the database in dir. An empty dir keeps
// everything in memory.
func Open(dir string, logger badger.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = logger
	if dir == "" {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, classify("open badger", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	if s.txn != nil {
		return classify(op, fn(s.txn))
	}
	return classify(op, s.db.Badger().Update(fn))
}

func (s *Store) view(op string, fn func(txn *badger.Txn) error) error {
	if s.txn != nil {
		return classify(op, fn(s.txn))
	}
	return classify(op, s.db.Badger().View(fn))
}

func (s *Store) Proofs() repositories.ProofRepository { return &ProofRepository{s} }

func (s *Store) Transactions() repositories.TransactionRepository {
	return &TransactionRepository{s}
}

func (s *Store) PendingTokens() repositories.PendingTokenRepository {
	return &PendingTokenRepository{s}
}

func (s *Store) Quotes() repositories.QuoteRepository      { return &QuoteRepository{s} }
func (s *Store) Settings() repositories.SettingsRepository { return &SettingsRepository{s} }
func (s *Store) Keys() repositories.KeyRepository          { return &KeyRepository{s} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, s repositories.Store) error) error {
	if s.txn != nil {
		return fn(ctx, s)
	}
	return s.db.Badger().Update(func(txn *badger.Txn) error {
		return fn(ctx, &Store{db: s.db, txn: txn})
	})
}

func (s *Store) Wipe(ctx context.Context) error {
	if s.txn != nil {
		return fmt.Errorf("wipe is not allowed inside a transaction")
	}
	return classify("wipe", s.db.Badger().DropAll())
}

func (s *Store) Close() error {
	if s.txn != nil {
		return nil
	}
	return s.db.Close()
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("failed to %s: %w", op, common.ErrNotFound)
	case errors.Is(err, badgerhold.ErrKeyExists):
		return fmt.Errorf("failed to %s: %w", op, common.ErrKeyExists)
	case errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("failed to %s: %w: %v", op, common.ErrStorageQuotaExceeded, err)
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrKeyExists), errors.Is(err, common.ErrStorageQuotaExceeded):
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
