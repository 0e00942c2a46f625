package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/seed"
	"github.com/dmitrijs2005/nutkeeper/internal/token"
)

const noteRestored = "Restored from seed"

// Restore adopts mnemonic as the wallet seed and scans mints for proofs
// derived from it. A phrase that cannot open the sets already sealed is
// refused with common.ErrProofsLocked. With autoAdd the findings are merged right away,
// otherwise they are kept for ClaimRestored.
func (w *Wallet) Restore(ctx context.Context, mnemonic string, mints []string, autoAdd bool, opts RestoreOptions) (Report, error) {
	candidate, err := seed.FromMnemonic(mnemonic)
	if err != nil {
		return Report{}, err
	}
	locked, err := w.proofs.LockedFor(ctx, candidate.EncryptionKey())
	candidate.Wipe()
	if err != nil {
		return Report{}, err
	}
	if len(locked) > 0 {
		return Report{}, fmt.Errorf("%w: %d mint(s) hold proofs sealed under another seed", common.ErrProofsLocked, len(locked))
	}

	keys, err := w.seed.Set(ctx, mnemonic)
	if err != nil {
		return Report{}, err
	}
	if err := w.useSeed(keys); err != nil {
		return Report{}, err
	}

	for _, m := range mints {
		if _, err := w.mints.Add(ctx, m); err != nil {
			w.log.Warn(ctx, "skipping mint", "mint", m, "error", err)
		}
	}

	report, err := w.restore.Restore(ctx, keys.Mnemonic(), mints, opts)
	if err != nil {
		return report, err
	}

	bundles := report.Bundles()
	if len(bundles) == 0 {
		return report, nil
	}
	if err := w.stashRestored(ctx, bundles); err != nil {
		return report, err
	}
	if autoAdd {
		if _, err := w.ClaimRestored(ctx, ""); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (w *Wallet) loadRestored(ctx context.Context) (map[string]models.RestoredBundle, error) {
	stash := map[string]models.RestoredBundle{}
	if _, err := getJSON(ctx, w.store.Settings(), keyRestored, &stash); err != nil {
		return nil, fmt.Errorf("failed to load restored tokens: %w", err)
	}
	return stash, nil
}

func (w *Wallet) saveRestored(ctx context.Context, stash map[string]models.RestoredBundle) error {
	if len(stash) == 0 {
		return w.store.Settings().Delete(ctx, keyRestored)
	}
	return putJSON(ctx, w.store.Settings(), keyRestored, stash)
}

// stashRestored merges bundles into the stored ones, one bundle per mint.
func (w *Wallet) stashRestored(ctx context.Context, bundles []models.RestoredBundle) error {
	stash, err := w.loadRestored(ctx)
	if err != nil {
		return err
	}
	for _, b := range bundles {
		merged := append(stash[b.Mint].Proofs, b.Proofs...).Dedup()
		encoded, err := token.Encode(token.Token{Mint: b.Mint, Unit: common.Unit, Proofs: merged})
		if err != nil {
			return fmt.Errorf("failed to encode restored token: %w", err)
		}
		stash[b.Mint] = models.RestoredBundle{
			Mint:       b.Mint,
			Token:      encoded,
			Proofs:     merged,
			Amount:     merged.Amount(),
			ProofCount: len(merged),
			Timestamp:  b.Timestamp,
		}
	}
	return w.saveRestored(ctx, stash)
}

// RestoredBundles lists unclaimed restore findings by mint.
func (w *Wallet) RestoredBundles(ctx context.Context) ([]models.RestoredBundle, error) {
	stash, err := w.loadRestored(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RestoredBundle, 0, len(stash))
	for _, b := range stash {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out, nil
}

// ClaimRestored merges the stored findings for mint, or for every mint
// when mint is empty, and returns the amount added. Proofs already held
// are skipped.
func (w *Wallet) ClaimRestored(ctx context.Context, mint string) (int64, error) {
	stash, err := w.loadRestored(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for m, b := range stash {
		if mint != "" && m != mint {
			continue
		}
		var added models.Proofs
		err := w.proofs.Update(ctx, m, func(cur models.Proofs) (models.Proofs, error) {
			added = b.Proofs.Without(cur.Secrets())
			return append(cur, added.WithMint(m)...), nil
		})
		if err != nil {
			return total, err
		}
		if _, err := w.mints.Add(ctx, m); err != nil {
			w.log.Warn(ctx, "failed to add restored mint", "mint", m, "error", err)
		}
		if added.Amount() > 0 {
			if _, err := w.ledger.Append(ctx, models.TxReceive, added.Amount(), noteRestored, m, models.TxPaid); err != nil {
				w.log.Error(ctx, "failed to record restore", "error", err)
			}
		}
		total += added.Amount()
		delete(stash, m)
	}

	if err := w.saveRestored(ctx, stash); err != nil {
		return total, err
	}
	w.funds.refresh(ctx)
	return total, nil
}

// DiscardRestored drops stored findings for mint, or all when mint is
// empty.
func (w *Wallet) DiscardRestored(ctx context.Context, mint string) error {
	stash, err := w.loadRestored(ctx)
	if err != nil {
		return err
	}
	if mint == "" {
		clear(stash)
	} else {
		delete(stash, mint)
	}
	return w.saveRestored(ctx, stash)
}
