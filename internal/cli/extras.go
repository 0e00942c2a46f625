package cli

import (
	"context"
	"errors"
)

var (
	errNoPrice  = errors.New("price display is disabled")
	errNoBackup = errors.New("backups are not configured")
)

func (a *App) showPrice(ctx context.Context, _ []string) error {
	if a.price == nil {
		return errNoPrice
	}
	q, err := a.price.Latest(ctx)
	if err != nil {
		if q, err = a.price.Refresh(ctx); err != nil {
			return err
		}
	}
	a.printf("1 BTC = %s %s (as of %s)\n", q.Amount.StringFixed(2), q.Currency, q.FetchedAt.Local().Format("15:04"))
	return nil
}

func (a *App) backupExport(ctx context.Context, _ []string) error {
	if a.backup == nil {
		return errNoBackup
	}
	name, err := a.backup.Export(ctx)
	if err != nil {
		return err
	}
	a.printf("Backup written to %s\n", name)
	return nil
}

func (a *App) backupImport(ctx context.Context, _ []string) error {
	if a.backup == nil {
		return errNoBackup
	}
	sum, err := a.backup.Import(ctx)
	if err != nil {
		return err
	}
	a.printf("Imported %d sat in %d proofs, %d mints, %d pending tokens, %d keys\n",
		sum.Amount, sum.Proofs, sum.Mints, sum.Pending, sum.Keys)
	for _, m := range sum.Skipped {
		a.printf("Skipped proofs for %s: mint could not be checked\n", m)
	}
	return nil
}

func (a *App) wipe(ctx context.Context, _ []string) error {
	if !Confirm(a.reader, "Delete the seed, all proofs and history?", a.out) {
		return nil
	}
	if err := a.wallet.ClearAll(ctx); err != nil {
		return err
	}
	a.printf("Wallet cleared\n")
	return nil
}
