// Package services implements the wallet's business logic on top of the
// storage port and the mint protocol client. Each service is an exported
// interface with an unexported implementation built by its New function.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// Settings keys.
const (
	keySeed            = "seed_mnemonic"
	keyMints           = "mints"
	keyDefaultMint     = "default_mint"
	keyBalance         = "balance_snapshot"
	keyRestored        = "restored_tokens"
	keyEncryptedMints  = "encrypted_proof_mints"
	keyCounterPrefix   = "keyset_counter_"
	keyEncryptedPrefix = "encrypted_proofs_"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// getJSON loads key into v. A missing key leaves v untouched and reports
// false.
func getJSON(ctx context.Context, repo repositories.SettingsRepository, key string, v any) (bool, error) {
	raw, err := repo.Get(ctx, key)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, repo repositories.SettingsRepository, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	return repo.Put(ctx, key, raw)
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
