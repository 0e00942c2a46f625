package services

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/mint"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// MintRegistry is the user's list of known mints and the default one.
// URLs are normalized before they are stored or compared.
type MintRegistry interface {
	Add(ctx context.Context, url string) (string, error)
	Remove(ctx context.Context, url string) error
	List(ctx context.Context) ([]string, error)
	// Known reports whether url is in the list.
	Known(ctx context.Context, url string) (bool, error)
	Default(ctx context.Context) (string, error)
	SetDefault(ctx context.Context, url string) error
}

type mintRegistry struct {
	settings repositories.SettingsRepository
	mu       sync.Mutex
}

func NewMintRegistry(settings repositories.SettingsRepository) MintRegistry {
	return &mintRegistry{settings: settings}
}

func (r *mintRegistry) load(ctx context.Context) ([]string, error) {
	var mints []string
	if _, err := getJSON(ctx, r.settings, keyMints, &mints); err != nil {
		return nil, fmt.Errorf("failed to load mints: %w", err)
	}
	return mints, nil
}

func (r *mintRegistry) Add(ctx context.Context, url string) (string, error) {
	u, err := mint.NormalizeURL(url)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mints, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	if slices.Contains(mints, u) {
		return u, nil
	}
	if err := putJSON(ctx, r.settings, keyMints, append(mints, u)); err != nil {
		return "", fmt.Errorf("failed to save mints: %w", err)
	}
	if len(mints) == 0 {
		if err := putJSON(ctx, r.settings, keyDefaultMint, u); err != nil {
			return "", fmt.Errorf("failed to save default mint: %w", err)
		}
	}
	return u, nil
}

// Remove drops url from the list. Callers check that no proofs remain.
func (r *mintRegistry) Remove(ctx context.Context, url string) error {
	u, err := mint.NormalizeURL(url)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mints, err := r.load(ctx)
	if err != nil {
		return err
	}
	i := slices.Index(mints, u)
	if i < 0 {
		return common.ErrUnknownMint
	}
	mints = slices.Delete(mints, i, i+1)
	if err := putJSON(ctx, r.settings, keyMints, mints); err != nil {
		return fmt.Errorf("failed to save mints: %w", err)
	}

	var def string
	if _, err := getJSON(ctx, r.settings, keyDefaultMint, &def); err != nil {
		return err
	}
	if def != u {
		return nil
	}
	if len(mints) == 0 {
		return r.settings.Delete(ctx, keyDefaultMint)
	}
	return putJSON(ctx, r.settings, keyDefaultMint, mints[0])
}

func (r *mintRegistry) List(ctx context.Context) ([]string, error) {
	return r.load(ctx)
}

func (r *mintRegistry) Known(ctx context.Context, url string) (bool, error) {
	u, err := mint.NormalizeURL(url)
	if err != nil {
		return false, nil
	}
	mints, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(mints, u), nil
}

// Default returns the default mint, common.ErrUnknownMint when none is set.
func (r *mintRegistry) Default(ctx context.Context) (string, error) {
	var def string
	found, err := getJSON(ctx, r.settings, keyDefaultMint, &def)
	if err != nil {
		return "", fmt.Errorf("failed to load default mint: %w", err)
	}
	if !found || def == "" {
		return "", common.ErrUnknownMint
	}
	return def, nil
}

func (r *mintRegistry) SetDefault(ctx context.Context, url string) error {
	ok, err := r.Known(ctx, url)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUnknownMint
	}
	u, _ := mint.NormalizeURL(url)
	return putJSON(ctx, r.settings, keyDefaultMint, u)
}
