package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedKey(b byte) KeyFunc {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return func() []byte { return key }
}

func TestProofStore_SaveFiltersAndReplaces(t *testing.T) {
	ctx := context.Background()
	ps := NewProofStore(newTestStore(t), nil, false, logging.Discard())

	require.NoError(t, ps.Save(ctx, mintA, models.Proofs{proof(4, "a"), proof(0, "zero"), proof(2, "b"), proof(4, "a")}))
	got, err := ps.Get(ctx, mintA)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(6), got.Amount())

	require.NoError(t, ps.Save(ctx, mintA, models.Proofs{proof(1, "c")}))
	got, err = ps.Get(ctx, mintA)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Secret)
	assert.Equal(t, mintA, got[0].Mint)

	require.NoError(t, ps.Save(ctx, mintB, models.Proofs{proof(8, "d")}))
	mints, err := ps.Mints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{mintA, mintB}, mints)

	all, err := ps.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), all[mintA].Amount())
	assert.Equal(t, int64(8), all[mintB].Amount())
}

func TestProofStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ps := NewProofStore(store, fixedKey(7), true, logging.Discard())

	require.NoError(t, ps.Save(ctx, mintA, models.Proofs{proof(4, "a"), proof(1, "b")}))

	plain, err := store.Proofs().ListByMint(ctx, mintA)
	require.NoError(t, err)
	assert.Empty(t, plain, "sealed sets must not leave plaintext rows")

	blob, err := store.Settings().Get(ctx, encryptedKey(mintA))
	require.NoError(t, err)
	assert.NotContains(t, string(blob), `"secret"`)

	got, err := ps.Get(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Amount())
	assert.Equal(t, mintA, got[0].Mint)

	mints, err := ps.Mints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{mintA}, mints)

	require.NoError(t, ps.Save(ctx, mintA, nil))
	mints, err = ps.Mints(ctx)
	require.NoError(t, err)
	assert.Empty(t, mints)
	_, err = store.Settings().Get(ctx, encryptedKey(mintA))
	assert.ErrorIs(t, err, common.ErrNotFound)

	// with nothing sealed any key may write again
	require.NoError(t, NewProofStore(store, fixedKey(8), true, logging.Discard()).Save(ctx, mintA, models.Proofs{proof(2, "c")}))
}

func TestProofStore_WrongKeyYieldsEmptySet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, NewProofStore(store, fixedKey(1), true, logging.Discard()).Save(ctx, mintA, models.Proofs{proof(4, "a")}))

	other := NewProofStore(store, fixedKey(2), true, logging.Discard())
	got, err := other.Get(ctx, mintA)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.Settings().Get(ctx, encryptedKey(mintA))
	assert.NoError(t, err, "ciphertext must be left in place")

	noKey := NewProofStore(store, func() []byte { return nil }, false, logging.Discard())
	got, err = noKey.Get(ctx, mintA)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProofStore_UnreadableSealedSetIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	owner := NewProofStore(store, fixedKey(1), true, logging.Discard())
	require.NoError(t, owner.Save(ctx, mintA, models.Proofs{proof(64, "a")}))

	credit := func(cur models.Proofs) (models.Proofs, error) {
		return append(cur, proof(2, "b")), nil
	}

	tests := []struct {
		name string
		ps   ProofStore
	}{
		{"no key", NewProofStore(store, nil, false, logging.Discard())},
		{"no key while sealing", NewProofStore(store, func() []byte { return nil }, true, logging.Discard())},
		{"other key", NewProofStore(store, fixedKey(2), true, logging.Discard())},
		{"other key without sealing", NewProofStore(store, fixedKey(2), false, logging.Discard())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.ps.Update(ctx, mintA, credit), common.ErrProofsLocked)
			assert.ErrorIs(t, tt.ps.Save(ctx, mintA, models.Proofs{proof(2, "b")}), common.ErrProofsLocked)

			locked, err := tt.ps.Locked(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{mintA}, locked)

			_, err = store.Settings().Get(ctx, encryptedKey(mintA))
			require.NoError(t, err, "ciphertext must be left in place")
			plain, err := store.Proofs().ListByMint(ctx, mintA)
			require.NoError(t, err)
			assert.Empty(t, plain)

			got, err := owner.Get(ctx, mintA)
			require.NoError(t, err)
			assert.Equal(t, int64(64), got.Amount())
		})
	}

	locked, err := owner.Locked(ctx)
	require.NoError(t, err)
	assert.Empty(t, locked)
	locked, err = owner.LockedFor(ctx, fixedKey(3)())
	require.NoError(t, err)
	assert.Equal(t, []string{mintA}, locked)
}

func TestProofStore_DisablingSealingMigratesReadableSet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, NewProofStore(store, fixedKey(1), true, logging.Discard()).Save(ctx, mintA, models.Proofs{proof(4, "a")}))

	plain := NewProofStore(store, fixedKey(1), false, logging.Discard())
	got, err := plain.Get(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Amount())

	require.NoError(t, plain.Update(ctx, mintA, func(cur models.Proofs) (models.Proofs, error) {
		return append(cur, proof(2, "b")), nil
	}))

	_, err = store.Settings().Get(ctx, encryptedKey(mintA))
	assert.ErrorIs(t, err, common.ErrNotFound)
	rows, err := store.Proofs().ListByMint(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, int64(6), rows.Amount())

	mints, err := plain.Mints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{mintA}, mints)
}

func TestProofStore_UpdateSerializesPerMint(t *testing.T) {
	ctx := context.Background()
	ps := NewProofStore(newTestStore(t), nil, false, logging.Discard())

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := ps.Update(ctx, mintA, func(cur models.Proofs) (models.Proofs, error) {
				return append(cur, proof(1, fmt.Sprintf("p%d", i))), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := ps.Get(ctx, mintA)
	require.NoError(t, err)
	assert.Len(t, got, n)
}

func TestProofStore_UpdateErrorKeepsSet(t *testing.T) {
	ctx := context.Background()
	ps := NewProofStore(newTestStore(t), nil, false, logging.Discard())
	require.NoError(t, ps.Save(ctx, mintA, models.Proofs{proof(4, "a")}))

	err := ps.Update(ctx, mintA, func(models.Proofs) (models.Proofs, error) {
		return nil, common.ErrInsufficientBalance
	})
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	got, err := ps.Get(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Amount())
}
