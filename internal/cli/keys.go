package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/p2pk"
)

func (a *App) listKeys(ctx context.Context, _ []string) error {
	keys, err := a.wallet.Keys().List(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		a.printf("No keys; create one with 'genkey'\n")
		return nil
	}
	for _, k := range keys {
		npub, _ := p2pk.EncodeNpub(k.PublicKey)
		a.printf("%s  used %d×  %s\n", k.PublicKey, k.UsedCount, npub)
	}
	return nil
}

func (a *App) genKey(ctx context.Context, _ []string) error {
	k, err := a.wallet.Keys().Generate(ctx)
	if err != nil {
		return err
	}
	a.printf("Public key: %s\n", k.PublicKey)
	return nil
}

func (a *App) importKey(ctx context.Context, _ []string) error {
	secret, err := GetSecret("Private key", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	k, err := a.wallet.Keys().Import(ctx, string(secret))
	if errors.Is(err, common.ErrKeyExists) {
		return errors.New("key is already in the wallet")
	}
	if err != nil {
		return err
	}
	a.printf("Imported %s\n", k.PublicKey)
	return nil
}

func (a *App) removeKey(ctx context.Context, args []string) error {
	pub, err := oneArg(args)
	if err != nil {
		return err
	}
	if !Confirm(a.reader, "Tokens locked to this key become unspendable. Delete it?", a.out) {
		return nil
	}
	return a.wallet.Keys().Delete(ctx, pub)
}
