// Package repositories defines the storage port of the wallet. Services
// depend only on these interfaces; sqlrepo and badgerrepo implement them.
package repositories

import (
	"context"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

// ProofRepository persists plaintext proofs keyed by (mint, secret).
type ProofRepository interface {
	// Replace atomically swaps the whole stored set for mint.
	Replace(ctx context.Context, mint string, proofs models.Proofs) error
	ListByMint(ctx context.Context, mint string) (models.Proofs, error)
	// Mints lists mints that currently hold at least one proof.
	Mints(ctx context.Context) ([]string, error)
}

// TransactionRepository is the append-mostly transaction history.
type TransactionRepository interface {
	Insert(ctx context.Context, tx models.Transaction) error
	// UpdateStatus sets status and reports whether a row changed.
	UpdateStatus(ctx context.Context, id string, status models.TxStatus) (bool, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	// List returns every transaction, newest first.
	List(ctx context.Context) ([]models.Transaction, error)
}

// PendingTokenRepository holds sent tokens awaiting the recipient's claim.
type PendingTokenRepository interface {
	Upsert(ctx context.Context, p models.PendingToken) error
	GetByID(ctx context.Context, id string) (models.PendingToken, error)
	List(ctx context.Context) ([]models.PendingToken, error)
	Delete(ctx context.Context, id string) error
}

// QuoteRepository holds mint quotes awaiting payment.
type QuoteRepository interface {
	Upsert(ctx context.Context, q models.MintQuote) error
	List(ctx context.Context) ([]models.MintQuote, error)
	Delete(ctx context.Context, id string) error
}

// SettingsRepository is a small key-value table for blobs such as the
// encrypted proofs, the balance snapshot and keyset counters.
type SettingsRepository interface {
	// Get returns common.ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KeyRepository stores P2PK keypairs.
type KeyRepository interface {
	// Insert returns common.ErrKeyExists for a duplicate public key.
	Insert(ctx context.Context, k models.P2PKKey) error
	Update(ctx context.Context, k models.P2PKKey) error
	GetByPublicKey(ctx context.Context, pub string) (models.P2PKKey, error)
	List(ctx context.Context) ([]models.P2PKKey, error)
	Delete(ctx context.Context, pub string) error
}

// Store bundles the repositories of one backend.
type Store interface {
	Proofs() ProofRepository
	Transactions() TransactionRepository
	PendingTokens() PendingTokenRepository
	Quotes() QuoteRepository
	Settings() SettingsRepository
	Keys() KeyRepository

	// WithTx runs fn with a Store whose repositories share one
	// transaction, committed when fn returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	// Wipe deletes every record of every repository.
	Wipe(ctx context.Context) error
	Close() error
}
