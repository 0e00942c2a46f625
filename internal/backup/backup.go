// Package backup seals the wallet state with a seed-derived key and stores
// it in an object store, so a wallet can be rebuilt from its mnemonic plus
// the bucket.
package backup

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/nutkeeper/internal/cryptox"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

const maxObject = 64 << 20

// ObjectStore is a flat key-to-bytes store. Get returns common.ErrNotFound
// for a missing key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Source is the wallet side of a backup.
type Source interface {
	BackupKey() ([]byte, error)
	ExportState(ctx context.Context) (models.WalletState, error)
	ImportState(ctx context.Context, st models.WalletState) (models.ImportSummary, error)
}

type Service struct {
	src     Source
	objects ObjectStore
	log     logging.Logger
}

func NewService(src Source, objects ObjectStore, log logging.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{src: src, objects: objects, log: log.With("component", "backup")}
}

// ObjectKey names the backup of the wallet sealed under key.
func ObjectKey(key []byte) string {
	return "wallets/" + cryptox.Fingerprint(key) + ".bin"
}

// Export uploads the current state and returns the object key.
func (s *Service) Export(ctx context.Context) (string, error) {
	key, err := s.src.BackupKey()
	if err != nil {
		return "", err
	}
	st, err := s.src.ExportState(ctx)
	if err != nil {
		return "", fmt.Errorf("error collecting wallet state: %w", err)
	}
	blob, err := cryptox.Seal(st, key)
	if err != nil {
		return "", fmt.Errorf("error sealing backup: %w", err)
	}

	name := ObjectKey(key)
	if err := s.objects.Put(ctx, name, blob); err != nil {
		return "", err
	}
	s.log.Info(ctx, "backup exported", "object", name, "bytes", len(blob))
	return name, nil
}

// Import downloads the backup for the loaded seed and merges it.
func (s *Service) Import(ctx context.Context) (models.ImportSummary, error) {
	key, err := s.src.BackupKey()
	if err != nil {
		return models.ImportSummary{}, err
	}
	name := ObjectKey(key)
	blob, err := s.objects.Get(ctx, name)
	if err != nil {
		return models.ImportSummary{}, err
	}

	var st models.WalletState
	if err := cryptox.Open(blob, key, &st); err != nil {
		return models.ImportSummary{}, fmt.Errorf("error opening backup: %w", err)
	}
	sum, err := s.src.ImportState(ctx, st)
	if err != nil {
		return sum, err
	}
	s.log.Info(ctx, "backup imported", "object", name, "proofs", sum.Proofs, "amount", sum.Amount)
	return sum, nil
}
