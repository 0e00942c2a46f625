package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/lnaddr"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/token"
)

func (a *App) invoice(ctx context.Context, args []string) error {
	fs := flags("invoice")
	mint := fs.String("m", "", "mint URL")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	amount, err := parseAmount(fs.Arg(0))
	if err != nil {
		return err
	}

	q, err := a.wallet.RequestMint(ctx, *mint, amount)
	if err != nil {
		return err
	}
	a.printf("Pay this invoice to mint %d sat (quote %s, expires %s):\n%s\n",
		q.Amount, q.ID, q.ExpiresAt.Local().Format("15:04:05"), q.Request)
	return nil
}

func (a *App) quotes(ctx context.Context, _ []string) error {
	qs, err := a.wallet.Quotes(ctx)
	if err != nil {
		return err
	}
	if len(qs) == 0 {
		a.printf("No open quotes\n")
		return nil
	}
	for _, q := range qs {
		a.printf("%s  %d sat  %-6s  %s\n", q.ID, q.Amount, q.State, shortMint(q.MintURL))
	}
	return nil
}

func (a *App) receive(ctx context.Context, args []string) error {
	var encoded string
	switch len(args) {
	case 0:
		var err error
		if encoded, err = GetSimpleText(a.reader, "Paste the token", a.out); err != nil {
			return err
		}
	case 1:
		encoded = args[0]
	default:
		return errUsage
	}

	amount, err := a.wallet.Receive(ctx, encoded)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAlreadySpent):
			return errors.New("token was already redeemed")
		case errors.Is(err, common.ErrLockMismatch):
			return errors.New("token is locked to a key this wallet does not hold")
		}
		return err
	}
	a.printf("Received %d sat\n", amount)
	return nil
}

func (a *App) send(ctx context.Context, args []string) error {
	fs := flags("send")
	mint := fs.String("m", "", "mint URL")
	lock := fs.String("lock", "", "lock to this public key (hex or npub)")
	v4 := fs.Bool("b", false, "print the cashuB form")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	amount, err := parseAmount(fs.Arg(0))
	if err != nil {
		return err
	}

	pt, err := a.wallet.Send(ctx, *mint, amount, *lock)
	if err != nil {
		return err
	}
	encoded := pt.Token
	if *v4 {
		if encoded, err = token.EncodeV4(token.Token{Mint: pt.MintURL, Unit: common.Unit, Proofs: pt.Proofs}); err != nil {
			return err
		}
	}
	a.printf("Token for %d sat (id %s):\n%s\n", pt.Amount, pt.ID, encoded)
	return nil
}

func (a *App) pay(ctx context.Context, args []string) error {
	fs := flags("pay")
	mint := fs.String("m", "", "mint URL")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return errUsage
	}

	target := fs.Arg(0)
	var (
		q   models.MeltQuote
		err error
	)
	if lnaddr.Valid(target) {
		if fs.NArg() != 2 {
			return errUsage
		}
		amount, perr := parseAmount(fs.Arg(1))
		if perr != nil {
			return perr
		}
		q, err = a.wallet.PayAddress(ctx, *mint, target, amount)
	} else {
		if fs.NArg() != 1 {
			return errUsage
		}
		q, err = a.wallet.PayInvoice(ctx, *mint, strings.TrimPrefix(strings.ToLower(target), "lightning:"))
	}
	if err != nil {
		return err
	}

	if q.State == models.QuotePending {
		a.printf("Payment of %d sat is in flight; it will settle on the next check\n", q.Amount)
		return nil
	}
	a.printf("Paid %d sat", q.Amount)
	if q.Preimage != "" {
		a.printf(" (preimage %s)", q.Preimage)
	}
	a.printf("\n")
	return nil
}

func (a *App) pending(ctx context.Context, _ []string) error {
	list, err := a.wallet.PendingTokens(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.printf("No pending tokens\n")
		return nil
	}
	for _, pt := range list {
		a.printf("%s  %d sat  %s  %s\n", pt.ID, pt.Amount, pt.CreatedAt.Local().Format("2006-01-02 15:04"), shortMint(pt.MintURL))
	}
	return nil
}

func (a *App) reclaim(ctx context.Context, args []string) error {
	id, err := oneArg(args)
	if err != nil {
		return err
	}
	amount, err := a.wallet.Reclaim(ctx, id)
	if errors.Is(err, common.ErrClaimedByRecipient) {
		a.printf("The recipient already claimed this token\n")
		return nil
	}
	if err != nil {
		return err
	}
	a.printf("Reclaimed %d sat\n", amount)
	return nil
}

func (a *App) forget(ctx context.Context, args []string) error {
	id, err := oneArg(args)
	if err != nil {
		return err
	}
	return a.wallet.DeletePending(ctx, id)
}

func (a *App) check(ctx context.Context, _ []string) error {
	err := errors.Join(a.wallet.CheckQuotes(ctx), a.wallet.CheckPendingTokens(ctx))
	if err != nil {
		return err
	}
	a.printf("Done\n")
	return nil
}

func (a *App) verify(ctx context.Context, args []string) error {
	fs := flags("verify")
	mint := fs.String("m", "", "mint URL")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}

	mints := []string{*mint}
	if *mint == "" {
		var err error
		if mints, err = a.wallet.Mints(ctx); err != nil {
			return err
		}
	}

	var errs []error
	for _, m := range mints {
		removed, err := a.wallet.CheckProofs(ctx, m)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m, err))
			continue
		}
		a.printf("%s: %d sat of spent proofs removed\n", shortMint(m), removed)
	}
	return errors.Join(errs...)
}
