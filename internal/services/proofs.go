package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/cryptox"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// ProofStore is the authoritative set of unspent proofs per mint. Every
// write replaces the mint's whole set.
type ProofStore interface {
	Save(ctx context.Context, mint string, proofs models.Proofs) error
	Get(ctx context.Context, mint string) (models.Proofs, error)
	// Update applies fn to the current set and saves the result. Calls for
	// the same mint are serialized.
	Update(ctx context.Context, mint string, fn func(models.Proofs) (models.Proofs, error)) error
	// Mints lists mints that hold proofs, plaintext or sealed.
	Mints(ctx context.Context) ([]string, error)
	All(ctx context.Context) (map[string]models.Proofs, error)
	// Locked lists mints whose sealed set the loaded key cannot open.
	Locked(ctx context.Context) ([]string, error)
	// LockedFor is Locked for a candidate key.
	LockedFor(ctx context.Context, key []byte) ([]string, error)
}

// KeyFunc returns the proof encryption key, or nil when none is available.
type KeyFunc func() []byte

type proofStore struct {
	store repositories.Store
	key   KeyFunc
	seal  bool
	log   logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProofStore builds a ProofStore over store. key opens sealed sets; with
// seal, sets are sealed into settings whenever the key yields material.
// Without seal a readable sealed set is moved back to plaintext rows on its
// next write.
func NewProofStore(store repositories.Store, key KeyFunc, seal bool, log logging.Logger) ProofStore {
	if log == nil {
		log = logging.Discard()
	}
	return &proofStore{store: store, key: key, seal: seal, log: log, locks: map[string]*sync.Mutex{}}
}

func encryptedKey(mint string) string {
	return keyEncryptedPrefix + base64.StdEncoding.EncodeToString([]byte(mint))
}

func (s *proofStore) lock(mint string) func() {
	s.mu.Lock()
	l, ok := s.locks[mint]
	if !ok {
		l = &sync.Mutex{}
		s.locks[mint] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *proofStore) encryptionKey() []byte {
	if s.key == nil {
		return nil
	}
	return s.key()
}

func (s *proofStore) Save(ctx context.Context, mint string, proofs models.Proofs) error {
	defer s.lock(mint)()
	return s.save(ctx, mint, proofs)
}

func (s *proofStore) save(ctx context.Context, mint string, proofs models.Proofs) error {
	proofs = proofs.Filter().Dedup()
	key := s.encryptionKey()

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		if err := s.ensureOpenable(ctx, tx.Settings(), mint, key); err != nil {
			return err
		}
		// an empty set leaves no blob behind
		if key == nil || !s.seal || len(proofs) == 0 {
			if err := tx.Proofs().Replace(ctx, mint, proofs); err != nil {
				return err
			}
			if err := tx.Settings().Delete(ctx, encryptedKey(mint)); err != nil {
				return err
			}
			return s.trackEncrypted(ctx, tx.Settings(), mint, false)
		}

		blob, err := cryptox.Seal(proofs, key)
		if err != nil {
			return fmt.Errorf("failed to seal proofs: %w", err)
		}
		if err := tx.Settings().Put(ctx, encryptedKey(mint), blob); err != nil {
			return err
		}
		if err := tx.Proofs().Replace(ctx, mint, nil); err != nil {
			return err
		}
		return s.trackEncrypted(ctx, tx.Settings(), mint, true)
	})
	if err != nil {
		return fmt.Errorf("failed to save proofs for %s: %w", mint, err)
	}
	return nil
}

// ensureOpenable refuses to write over a sealed set that key cannot open.
func (s *proofStore) ensureOpenable(ctx context.Context, settings repositories.SettingsRepository, mint string, key []byte) error {
	blob, err := settings.Get(ctx, encryptedKey(mint))
	switch {
	case isNotFound(err):
		return nil
	case err != nil:
		return err
	}
	if _, err := openSealed(blob, key); err != nil {
		return fmt.Errorf("%w: %s", common.ErrProofsLocked, mint)
	}
	return nil
}

// trackEncrypted keeps the list of mints with a sealed set, since settings
// cannot be listed by prefix.
func (s *proofStore) trackEncrypted(ctx context.Context, settings repositories.SettingsRepository, mint string, present bool) error {
	var mints []string
	if _, err := getJSON(ctx, settings, keyEncryptedMints, &mints); err != nil {
		return err
	}
	i := slices.Index(mints, mint)
	switch {
	case present && i < 0:
		mints = append(mints, mint)
	case !present && i >= 0:
		mints = slices.Delete(mints, i, i+1)
	default:
		return nil
	}
	return putJSON(ctx, settings, keyEncryptedMints, mints)
}

// Get prefers the sealed set when one exists. A set that cannot be opened
// is reported as empty and left in place.
func (s *proofStore) Get(ctx context.Context, mint string) (models.Proofs, error) {
	blob, err := s.store.Settings().Get(ctx, encryptedKey(mint))
	switch {
	case err == nil:
		return s.open(ctx, mint, blob), nil
	case !isNotFound(err):
		return nil, fmt.Errorf("failed to load sealed proofs for %s: %w", mint, err)
	}

	proofs, err := s.store.Proofs().ListByMint(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to load proofs for %s: %w", mint, err)
	}
	return proofs, nil
}

func openSealed(blob, key []byte) (models.Proofs, error) {
	if key == nil {
		return nil, common.ErrNoSeed
	}
	var proofs models.Proofs
	if err := cryptox.Open(blob, key, &proofs); err != nil {
		return nil, err
	}
	return proofs, nil
}

func (s *proofStore) open(ctx context.Context, mint string, blob []byte) models.Proofs {
	proofs, err := openSealed(blob, s.encryptionKey())
	if err != nil {
		s.log.Warn(ctx, "failed to open sealed proofs", "mint", mint, "error", err)
		return models.Proofs{}
	}
	return proofs.WithMint(mint)
}

func (s *proofStore) Update(ctx context.Context, mint string, fn func(models.Proofs) (models.Proofs, error)) error {
	defer s.lock(mint)()

	current, err := s.Get(ctx, mint)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.save(ctx, mint, next)
}

func (s *proofStore) Mints(ctx context.Context) ([]string, error) {
	plain, err := s.store.Proofs().Mints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mints: %w", err)
	}
	var sealed []string
	if _, err := getJSON(ctx, s.store.Settings(), keyEncryptedMints, &sealed); err != nil {
		return nil, err
	}

	mints := append(plain, sealed...)
	sort.Strings(mints)
	return slices.Compact(mints), nil
}

func (s *proofStore) Locked(ctx context.Context) ([]string, error) {
	return s.LockedFor(ctx, s.encryptionKey())
}

func (s *proofStore) LockedFor(ctx context.Context, key []byte) ([]string, error) {
	var sealed []string
	if _, err := getJSON(ctx, s.store.Settings(), keyEncryptedMints, &sealed); err != nil {
		return nil, err
	}
	var locked []string
	for _, m := range sealed {
		blob, err := s.store.Settings().Get(ctx, encryptedKey(m))
		switch {
		case isNotFound(err):
			continue
		case err != nil:
			return nil, fmt.Errorf("failed to load sealed proofs for %s: %w", m, err)
		}
		if _, err := openSealed(blob, key); err != nil {
			locked = append(locked, m)
		}
	}
	return locked, nil
}

func (s *proofStore) All(ctx context.Context) (map[string]models.Proofs, error) {
	mints, err := s.Mints(ctx)
	if err != nil {
		return nil, err
	}
	all := make(map[string]models.Proofs, len(mints))
	for _, m := range mints {
		proofs, err := s.Get(ctx, m)
		if err != nil {
			return nil, err
		}
		if len(proofs) > 0 {
			all[m] = proofs
		}
	}
	return all, nil
}
