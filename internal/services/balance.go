package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// BalanceCache keeps a derived snapshot of the proof store for fast reads.
type BalanceCache interface {
	// Recompute sums every known mint's proofs and stores a fresh snapshot.
	// The snapshot is stale while any sealed set cannot be opened.
	Recompute(ctx context.Context) (models.BalanceSnapshot, error)
	// MarkStale flags the stored snapshot without recomputing it.
	MarkStale(ctx context.Context) error
	// Snapshot returns the stored snapshot, false when there is none.
	Snapshot(ctx context.Context) (models.BalanceSnapshot, bool, error)
}

type balanceCache struct {
	proofs   ProofStore
	mints    MintRegistry
	settings repositories.SettingsRepository
	clock    Clock

	mu sync.Mutex
}

func NewBalanceCache(proofs ProofStore, mints MintRegistry, settings repositories.SettingsRepository, clock Clock) BalanceCache {
	return &balanceCache{proofs: proofs, mints: mints, settings: settings, clock: clock}
}

func (b *balanceCache) Recompute(ctx context.Context) (models.BalanceSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	configured, err := b.mints.List(ctx)
	if err != nil {
		return models.BalanceSnapshot{}, err
	}
	holding, err := b.proofs.Mints(ctx)
	if err != nil {
		return models.BalanceSnapshot{}, err
	}

	snap := models.BalanceSnapshot{PerMint: map[string]int64{}, LastUpdated: b.clock.now()}
	for _, m := range append(configured, holding...) {
		if _, done := snap.PerMint[m]; done {
			continue
		}
		proofs, err := b.proofs.Get(ctx, m)
		if err != nil {
			return models.BalanceSnapshot{}, err
		}
		amount := proofs.Amount()
		snap.PerMint[m] = amount
		snap.Total += amount
	}
	// sets sealed under a key that is not loaded yet read as empty
	locked, err := b.proofs.Locked(ctx)
	if err != nil {
		return models.BalanceSnapshot{}, err
	}
	snap.IsStale = len(locked) > 0

	if err := putJSON(ctx, b.settings, keyBalance, snap); err != nil {
		return models.BalanceSnapshot{}, fmt.Errorf("failed to save balance: %w", err)
	}
	return snap, nil
}

func (b *balanceCache) MarkStale(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var snap models.BalanceSnapshot
	found, err := getJSON(ctx, b.settings, keyBalance, &snap)
	if err != nil || !found || snap.IsStale {
		return err
	}
	snap.IsStale = true
	return putJSON(ctx, b.settings, keyBalance, snap)
}

func (b *balanceCache) Snapshot(ctx context.Context) (models.BalanceSnapshot, bool, error) {
	var snap models.BalanceSnapshot
	found, err := getJSON(ctx, b.settings, keyBalance, &snap)
	if err != nil {
		return models.BalanceSnapshot{}, false, fmt.Errorf("failed to load balance: %w", err)
	}
	return snap, found, nil
}
