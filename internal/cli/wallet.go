package cli

import (
	"context"
	"errors"
	"sort"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

func (a *App) balance(ctx context.Context, _ []string) error {
	snap, err := a.wallet.Balance(ctx)
	if err != nil {
		return err
	}

	mints := make([]string, 0, len(snap.PerMint))
	for m := range snap.PerMint {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	for _, m := range mints {
		a.printf("  %-40s %d sat\n", m, snap.PerMint[m])
	}

	a.printf("Total: %d sat%s\n", snap.Total, a.fiat(ctx, snap.Total))
	return nil
}

func (a *App) history(ctx context.Context, _ []string) error {
	txs, err := a.wallet.Transactions(ctx)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		a.printf("No transactions\n")
		return nil
	}
	for _, tx := range txs {
		sign := "+"
		if tx.Type == models.TxSend {
			sign = "-"
		}
		a.printf("%s  %s%d sat  %-8s %s  %s\n", tx.Timestamp.Local().Format("2006-01-02 15:04"),
			sign, tx.Amount, tx.Status, shortMint(tx.Mint), tx.Note)
	}
	return nil
}

func (a *App) listMints(ctx context.Context, _ []string) error {
	mints, err := a.wallet.Mints(ctx)
	if err != nil {
		return err
	}
	if len(mints) == 0 {
		a.printf("No mints; add one with 'addmint <url>'\n")
		return nil
	}
	def, _ := a.wallet.DefaultMint(ctx)
	for _, m := range mints {
		mark := " "
		if m == def {
			mark = "*"
		}
		a.printf("%s %s\n", mark, m)
	}
	return nil
}

func (a *App) addMint(ctx context.Context, args []string) error {
	url, err := oneArg(args)
	if err != nil {
		return err
	}
	info, err := a.wallet.AddMint(ctx, url)
	if err != nil {
		return err
	}
	a.printf("Added %s (%s %s)\n", url, info.Name, info.Version)
	return nil
}

func (a *App) removeMint(ctx context.Context, args []string) error {
	url, err := oneArg(args)
	if err != nil {
		return err
	}
	if err := a.wallet.RemoveMint(ctx, url); err != nil {
		if errors.Is(err, common.ErrMintInUse) {
			return errors.New("mint still holds funds; send or melt them first")
		}
		return err
	}
	a.printf("Removed %s\n", url)
	return nil
}

func (a *App) setDefault(ctx context.Context, args []string) error {
	url, err := oneArg(args)
	if err != nil {
		return err
	}
	return a.wallet.SetDefaultMint(ctx, url)
}

func (a *App) mintInfo(ctx context.Context, args []string) error {
	var url string
	if len(args) > 1 {
		return errUsage
	}
	if len(args) == 1 {
		url = args[0]
	}
	info, err := a.wallet.MintInfo(ctx, url)
	if err != nil {
		return err
	}
	a.printf("Name:        %s\nVersion:     %s\nDescription: %s\n", info.Name, info.Version, info.Description)
	for _, nut := range []string{"7", "9", "11", "13"} {
		a.printf("NUT-%-2s       %v\n", nut, info.Supports(nut))
	}
	return nil
}

func (a *App) fiat(ctx context.Context, sats int64) string {
	if a.price == nil || sats <= 0 {
		return ""
	}
	q, err := a.price.Latest(ctx)
	if err != nil {
		return ""
	}
	return " (" + q.Convert(uint64(sats)).StringFixed(2) + " " + q.Currency + ")"
}
