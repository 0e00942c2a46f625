package services

import (
	"context"

	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

// funds wraps the proof store writes that move value in or out of the
// wallet and keeps the balance snapshot in step with them.
type funds struct {
	proofs  ProofStore
	balance BalanceCache
	log     logging.Logger
}

// credit adds proofs to the mint's set.
func (f *funds) credit(ctx context.Context, mint string, add models.Proofs) error {
	err := f.proofs.Update(ctx, mint, func(cur models.Proofs) (models.Proofs, error) {
		return append(cur, add.WithMint(mint)...), nil
	})
	if err != nil {
		return err
	}
	f.refresh(ctx)
	return nil
}

// replace swaps spent inputs for the proofs the mint returned. Proofs added
// to the set since the inputs were read are preserved.
func (f *funds) replace(ctx context.Context, mint string, spent, add models.Proofs) error {
	gone := spent.Secrets()
	err := f.proofs.Update(ctx, mint, func(cur models.Proofs) (models.Proofs, error) {
		return append(cur.Without(gone), add.WithMint(mint)...), nil
	})
	if err != nil {
		return err
	}
	f.refresh(ctx)
	return nil
}

// refresh marks the snapshot stale and recomputes it. Failures are logged
// and leave the snapshot stale.
func (f *funds) refresh(ctx context.Context) {
	if err := f.balance.MarkStale(ctx); err != nil {
		f.log.Warn(ctx, "failed to mark balance stale", "error", err)
	}
	if _, err := f.balance.Recompute(ctx); err != nil {
		f.log.Warn(ctx, "failed to recompute balance", "error", err)
	}
}
