package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/cryptox"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

const stateVersion = 1

// BackupKey derives the key backups are sealed with from the loaded seed.
func (w *Wallet) BackupKey() ([]byte, error) {
	keys, ok := w.seed.Current()
	if !ok {
		return nil, common.ErrNoSeed
	}
	return cryptox.DeriveKey(keys.Seed(), cryptox.PurposeBackup)
}

// ExportState collects mints, proofs, pending tokens and P2PK keys.
func (w *Wallet) ExportState(ctx context.Context) (models.WalletState, error) {
	st := models.WalletState{Version: stateVersion, CreatedAt: w.clock.now().UTC()}

	var err error
	if st.Mints, err = w.mints.List(ctx); err != nil {
		return st, err
	}
	st.DefaultMint, err = w.mints.Default(ctx)
	if err != nil && !errors.Is(err, common.ErrUnknownMint) {
		return st, err
	}
	if st.Proofs, err = w.proofs.All(ctx); err != nil {
		return st, err
	}
	if st.Pending, err = w.tokens.List(ctx); err != nil {
		return st, err
	}
	if st.Keys, err = w.keys.List(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// ImportState merges st into the wallet. Only proofs the mint still reports
// unspent are added; a mint that cannot be asked is skipped and listed in
// the summary. Proofs already held, pending tokens already tracked and keys
// already known are left alone.
func (w *Wallet) ImportState(ctx context.Context, st models.WalletState) (models.ImportSummary, error) {
	var sum models.ImportSummary
	if st.Version != stateVersion {
		return sum, fmt.Errorf("%w: unsupported backup version %d", common.ErrDecode, st.Version)
	}

	for _, u := range st.Mints {
		known, err := w.mints.Known(ctx, u)
		if err != nil {
			return sum, err
		}
		if known {
			continue
		}
		if _, err := w.mints.Add(ctx, u); err != nil {
			return sum, fmt.Errorf("error adding mint %s: %w", u, err)
		}
		sum.Mints++
	}
	if st.DefaultMint != "" {
		if _, err := w.mints.Default(ctx); errors.Is(err, common.ErrUnknownMint) {
			if err := w.mints.SetDefault(ctx, st.DefaultMint); err != nil {
				w.log.Warn(ctx, "failed to restore default mint", "mint", st.DefaultMint, "error", err)
			}
		}
	}

	for _, u := range slices.Sorted(maps.Keys(st.Proofs)) {
		fresh, err := w.importable(ctx, u, st.Proofs[u])
		if err != nil {
			w.log.Warn(ctx, "skipping backup proofs", "mint", u, "error", err)
			sum.Skipped = append(sum.Skipped, u)
			continue
		}
		var added models.Proofs
		err = w.proofs.Update(ctx, u, func(cur models.Proofs) (models.Proofs, error) {
			added = fresh.Without(cur.Secrets())
			return append(cur, added.WithMint(u)...), nil
		})
		if err != nil {
			return sum, fmt.Errorf("error importing proofs for %s: %w", u, err)
		}
		sum.Proofs += len(added)
		sum.Amount += added.Amount()
	}

	for _, pt := range st.Pending {
		if _, err := w.tokens.Get(ctx, pt.ID); err == nil {
			continue
		} else if !errors.Is(err, common.ErrNotFound) {
			return sum, err
		}
		if err := w.store.PendingTokens().Upsert(ctx, pt); err != nil {
			return sum, fmt.Errorf("error importing pending token: %w", err)
		}
		sum.Pending++
	}

	for _, k := range st.Keys {
		err := w.store.Keys().Insert(ctx, k)
		if errors.Is(err, common.ErrKeyExists) {
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("error importing key: %w", err)
		}
		sum.Keys++
	}

	w.funds.refresh(ctx)
	w.log.Info(ctx, "wallet state imported", "proofs", sum.Proofs, "amount", sum.Amount)
	return sum, nil
}

// importable returns the backup proofs for mintURL that are not held yet
// and that the mint reports unspent.
func (w *Wallet) importable(ctx context.Context, mintURL string, proofs models.Proofs) (models.Proofs, error) {
	held, err := w.proofs.Get(ctx, mintURL)
	if err != nil {
		return nil, err
	}
	candidates := proofs.Filter().Dedup().Without(held.Secrets())
	if len(candidates) == 0 {
		return nil, nil
	}
	c, err := w.pool.Dial(mintURL)
	if err != nil {
		return nil, err
	}
	return filterUnspent(ctx, c, candidates)
}
