package cli

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/services"
)

func (a *App) newSeed(ctx context.Context, _ []string) error {
	words, err := a.wallet.CreateSeed(ctx)
	if errors.Is(err, common.ErrKeyExists) {
		return errors.New("wallet already has a seed; use 'wipe' to start over")
	}
	if err != nil {
		return err
	}
	a.printf("Write these words down. They are the only way to recover your funds:\n\n  %s\n\n", words)
	return nil
}

func (a *App) showSeed(ctx context.Context, _ []string) error {
	if !Confirm(a.reader, "Show the seed phrase on screen?", a.out) {
		return nil
	}
	words, err := a.wallet.SeedPhrase(ctx)
	if err != nil {
		return err
	}
	a.printf("%s\n", words)
	return nil
}

func (a *App) restore(ctx context.Context, args []string) error {
	secret, err := GetSecret("Seed phrase", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	mints, err := a.restoreTargets(ctx, args)
	if err != nil {
		return err
	}
	if len(mints) == 0 {
		return errors.New("no mints to scan; pass mint URLs or add them first")
	}

	opts := a.restoreOpts
	opts.Progress = func(p services.Progress) {
		a.printf("  %s %s batch %d: %d found\n", shortMint(p.Mint), p.Keyset, p.Batch, p.Found)
	}

	report, err := a.wallet.Restore(ctx, string(secret), mints, a.autoAdd, opts)
	if err != nil {
		return err
	}
	for _, m := range report.Mints {
		switch {
		case m.Err != nil:
			a.printf("%s: %v\n", m.Mint, m.Err)
		case m.Bundle != nil:
			a.printf("%s: %d sat in %d proofs\n", m.Mint, m.Bundle.Amount, m.Bundle.ProofCount)
		default:
			a.printf("%s: nothing found\n", m.Mint)
		}
	}
	if total := report.Total(); total > 0 && !a.autoAdd {
		a.printf("Recovered %d sat; run 'claim' to add them\n", total)
	}
	return nil
}

// restoreTargets is args when given, otherwise the configured and known
// mints.
func (a *App) restoreTargets(ctx context.Context, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	known, err := a.wallet.Mints(ctx)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(a.restoreMints)
	for _, m := range known {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (a *App) restored(ctx context.Context, _ []string) error {
	bundles, err := a.wallet.RestoredBundles(ctx)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		a.printf("Nothing recovered\n")
		return nil
	}
	for _, b := range bundles {
		a.printf("%s  %d sat in %d proofs\n", b.Mint, b.Amount, b.ProofCount)
	}
	return nil
}

func (a *App) claim(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return errUsage
	}
	amount, err := a.wallet.ClaimRestored(ctx, strings.Join(args, ""))
	if err != nil {
		return err
	}
	a.printf("Added %d sat\n", amount)
	return nil
}

func (a *App) discard(ctx context.Context, args []string) error {
	mint, err := oneArg(args)
	if err != nil {
		return err
	}
	return a.wallet.DiscardRestored(ctx, mint)
}
