package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/p2pk"
	"github.com/dmitrijs2005/nutkeeper/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, mintURL string, ps models.Proofs) string {
	t.Helper()
	s, err := token.Encode(token.Token{Mint: mintURL, Unit: common.Unit, Proofs: ps})
	require.NoError(t, err)
	return s
}

func TestWallet_InitGuard(t *testing.T) {
	h := newHarness(t, false)
	h.w.initializing.Store(true)
	assert.ErrorIs(t, h.w.Init(context.Background()), common.ErrInitInProgress)

	h.w.initializing.Store(false)
	require.NoError(t, h.w.Init(context.Background()))
	assert.False(t, h.w.initializing.Load())
}

func TestWallet_InitLoadsSeedAndBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 8, 2)
	_, err := h.w.CreateSeed(ctx)
	require.NoError(t, err)

	// a second wallet over the same store starts cold
	w2 := NewWallet(Config{Store: h.store, Pool: h.pool, Clock: h.clock.Now})
	require.NoError(t, w2.Init(ctx))
	assert.True(t, w2.HasSeed(ctx))
	assert.Len(t, h.pool.seeds, 2)

	snap, found, err := w2.CachedBalance(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), snap.Total)
}

func TestWallet_Seed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	assert.False(t, h.w.HasSeed(ctx))
	_, err := h.w.SeedPhrase(ctx)
	assert.ErrorIs(t, err, common.ErrNoSeed)

	words, err := h.w.CreateSeed(ctx)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(words), 12)

	got, err := h.w.SeedPhrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, words, got)

	_, err = h.w.CreateSeed(ctx)
	assert.ErrorIs(t, err, common.ErrKeyExists)
}

func TestWallet_Mints(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)

	info, err := h.w.AddMint(ctx, mintA+"/")
	require.NoError(t, err)
	assert.Equal(t, "fake "+mintA, info.Name)
	_, err = h.w.AddMint(ctx, mintB)
	require.NoError(t, err)
	_, err = h.w.AddMint(ctx, "https://nowhere.example.com")
	assert.Error(t, err)

	mints, err := h.w.Mints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{mintA, mintB}, mints)

	def, err := h.w.DefaultMint(ctx)
	require.NoError(t, err)
	assert.Equal(t, mintA, def)
	require.NoError(t, h.w.SetDefaultMint(ctx, mintB))
	assert.ErrorIs(t, h.w.SetDefaultMint(ctx, "https://nowhere.example.com"), common.ErrUnknownMint)

	require.NoError(t, h.w.proofs.Save(ctx, mintB, h.b.fund(4)))
	assert.ErrorIs(t, h.w.RemoveMint(ctx, mintB), common.ErrMintInUse)
	require.NoError(t, h.w.proofs.Save(ctx, mintB, nil))
	require.NoError(t, h.w.RemoveMint(ctx, mintB))

	def, err = h.w.DefaultMint(ctx)
	require.NoError(t, err)
	assert.Equal(t, mintA, def, "default falls back to a remaining mint")
	assert.ErrorIs(t, h.w.RemoveMint(ctx, mintB), common.ErrUnknownMint)
}

func TestWallet_ReceiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 64)

	pt, err := h.w.Send(ctx, mintA, 21, "")
	require.NoError(t, err)
	assert.Equal(t, int64(43), h.held(t, mintA).Amount())

	txs, err := h.w.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxSend, txs[0].Type)
	assert.Equal(t, models.TxPending, txs[0].Status)
	assert.Equal(t, noteSent, txs[0].Note)

	// another wallet redeems the token
	other := newHarness(t, false)
	other.pool = h.pool
	other.w = NewWallet(Config{Store: other.store, Pool: h.pool, Clock: other.clock.Now})
	other.withMint(t, h.a)

	got, err := other.w.Receive(ctx, pt.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(21), got)
	assert.Equal(t, int64(21), other.held(t, mintA).Amount())

	rtxs, err := other.w.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, rtxs, 1)
	assert.Equal(t, noteReceived, rtxs[0].Note)
	assert.Equal(t, models.TxPaid, rtxs[0].Status)

	_, err = other.w.Receive(ctx, pt.Token)
	assert.ErrorIs(t, err, common.ErrAlreadySpent)

	bal, err := h.w.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(43), bal.Total)
}

func TestWallet_ReceiveRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a)

	_, err := h.w.Receive(ctx, "cashuAnot-a-token")
	assert.ErrorIs(t, err, common.ErrDecode)

	_, err = h.w.Receive(ctx, encode(t, mintB, h.b.fund(4)))
	assert.ErrorIs(t, err, common.ErrUnknownMint)

	_, err = h.w.Receive(ctx, encode(t, mintA, models.Proofs{proof(0, "zero")}))
	assert.ErrorIs(t, err, common.ErrDecode)

	usd := h.a.fund(5)
	s, err := token.Encode(token.Token{Mint: mintA, Unit: "usd", Proofs: usd})
	require.NoError(t, err)
	_, err = h.w.Receive(ctx, s)
	assert.ErrorIs(t, err, common.ErrUnsupportedUnit)
	assert.False(t, h.a.spent[usd[0].Secret], "the mint is never asked")
	assert.Empty(t, h.held(t, mintA))
}

func TestWallet_LockedTokens(t *testing.T) {
	ctx := context.Background()
	sender := newHarness(t, false)
	sender.withMint(t, sender.a, 32)

	receiver := newHarness(t, false)
	receiver.pool = sender.pool
	receiver.w = NewWallet(Config{Store: receiver.store, Pool: sender.pool, Clock: receiver.clock.Now})
	receiver.withMint(t, sender.a)
	key, err := receiver.w.Keys().Generate(ctx)
	require.NoError(t, err)
	npub, err := p2pk.EncodeNpub(key.PublicKey)
	require.NoError(t, err)

	pt, err := sender.w.Send(ctx, mintA, 10, npub)
	require.NoError(t, err)
	txs, err := sender.w.Transactions(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txs[0].Note, "P2PK-locked ecash generated ("+key.PublicKey[:16]))

	// a wallet without the key cannot take it
	third := NewWallet(Config{Store: newTestStore(t), Pool: sender.pool})
	_, err = third.AddMint(ctx, mintA)
	require.NoError(t, err)
	_, err = third.Receive(ctx, pt.Token)
	assert.ErrorIs(t, err, common.ErrLockMismatch)

	// the sender cannot reclaim it either
	_, err = sender.w.Reclaim(ctx, pt.ID)
	assert.ErrorIs(t, err, common.ErrLockMismatch)

	got, err := receiver.w.Receive(ctx, pt.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	rtxs, err := receiver.w.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, noteReceivedLocked, rtxs[0].Note)

	k, err := receiver.w.Keys().Lookup(ctx, key.PublicKey)
	require.NoError(t, err)
	assert.True(t, k.Used)
	assert.Equal(t, 1, k.UsedCount)
}

func TestWallet_SendInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 4, 1)

	_, err := h.w.Send(ctx, mintA, 6, "")
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
	assert.Equal(t, int64(5), h.held(t, mintA).Amount())

	_, err = h.w.Send(ctx, mintA, 1, "not-a-key")
	assert.ErrorIs(t, err, p2pk.ErrInvalidKey)
}

func TestWallet_Reclaim(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 16)

	pt, err := h.w.Send(ctx, mintA, 5, "")
	require.NoError(t, err)
	assert.Equal(t, int64(11), h.held(t, mintA).Amount())

	h.clock.Advance(time.Second)
	got, err := h.w.Reclaim(ctx, pt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
	assert.Equal(t, int64(16), h.held(t, mintA).Amount())

	pending, err := h.w.PendingTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	txs, err := h.w.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, noteReclaimed, txs[0].Note)
}

func TestWallet_ReclaimClaimedByRecipient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 16)

	pt, err := h.w.Send(ctx, mintA, 5, "")
	require.NoError(t, err)
	h.a.markSpent(pt.Proofs)

	_, err = h.w.Reclaim(ctx, pt.ID)
	assert.ErrorIs(t, err, common.ErrClaimedByRecipient)
	assert.ErrorIs(t, err, common.ErrAlreadySpent)

	pending, err := h.w.PendingTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	tx, err := h.w.ledger.Get(ctx, pt.TxID)
	require.NoError(t, err)
	assert.Equal(t, models.TxPaid, tx.Status)

	_, err = h.w.Reclaim(ctx, pt.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestWallet_DeletePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 8)

	pt, err := h.w.Send(ctx, mintA, 3, "")
	require.NoError(t, err)
	require.NoError(t, h.w.DeletePending(ctx, pt.ID))

	pending, err := h.w.PendingTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, int64(5), h.held(t, mintA).Amount())
}

func TestWallet_PayInvoice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 32, 16, 2)
	h.a.meltAmount = 40

	q, err := h.w.PayInvoice(ctx, mintA, "lnbc40")
	require.NoError(t, err)
	assert.Equal(t, models.QuotePaid, q.State)
	assert.Equal(t, "00ff", q.Preimage)

	// 41 spent: 40 plus a fee of 1 out of the reserve of 2
	assert.Equal(t, int64(50-41), h.held(t, mintA).Amount())

	txs, err := h.w.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(41), txs[0].Amount)
	assert.Equal(t, models.TxPaid, txs[0].Status)
	assert.Equal(t, notePaid, txs[0].Note)

	h.a.meltAmount = 100
	_, err = h.w.PayInvoice(ctx, mintA, "lnbc100")
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestWallet_PayInvoiceFailureKeepsProofs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 32)
	h.a.meltAmount = 10
	h.a.meltState = models.QuoteUnpaid

	_, err := h.w.PayInvoice(ctx, mintA, "lnbc10")
	assert.Error(t, err)
	assert.Equal(t, int64(32), h.held(t, mintA).Amount())

	txs, err := h.w.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

type fakeAddressResolver struct {
	invoice string
	err     error
	gotAddr string
	gotAmt  int64
}

func (f *fakeAddressResolver) Resolve(ctx context.Context, address string, amount int64) (string, error) {
	f.gotAddr, f.gotAmt = address, amount
	return f.invoice, f.err
}

func TestWallet_PayAddress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	res := &fakeAddressResolver{invoice: "lnbc5"}
	h.w.address = res
	h.withMint(t, h.a, 8)
	h.a.meltAmount = 5

	_, err := h.w.PayAddress(ctx, mintA, "alice@example.com", 5)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.gotAddr)
	assert.Equal(t, int64(5), res.gotAmt)
	assert.Equal(t, int64(2), h.held(t, mintA).Amount())
}

func TestWallet_CheckProofs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	ps := h.withMint(t, h.a, 1, 2, 4)
	h.a.markSpent(ps[1:2])

	removed, err := h.w.CheckProofs(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, int64(5), h.held(t, mintA).Amount())

	removed, err = h.w.CheckProofs(ctx, mintA)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestWallet_EncryptedProofs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	_, err := h.w.CreateSeed(ctx)
	require.NoError(t, err)
	h.withMint(t, h.a, 8, 4)

	plain, err := h.store.Proofs().ListByMint(ctx, mintA)
	require.NoError(t, err)
	assert.Empty(t, plain)

	_, err = h.w.Send(ctx, mintA, 3, "")
	require.NoError(t, err)
	bal, err := h.w.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), bal.Total)

	// a restart with the same store reads the sealed set after loading the seed
	w2 := NewWallet(Config{Store: h.store, Pool: h.pool, EncryptProofs: true})
	require.NoError(t, w2.Init(ctx))
	bal, err = w2.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), bal.Total)
}

func TestWallet_RestoreRefusesSeedThatCannotOpenSealedProofs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	_, err := h.w.CreateSeed(ctx)
	require.NoError(t, err)
	h.withMint(t, h.a, 64)
	original, err := h.w.SeedPhrase(ctx)
	require.NoError(t, err)

	other := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	_, err = h.w.Restore(ctx, other, []string{mintA}, true, RestoreOptions{})
	assert.ErrorIs(t, err, common.ErrProofsLocked)

	got, err := h.w.SeedPhrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, original, got)
	assert.Equal(t, int64(64), h.held(t, mintA).Amount())

	// the same phrase opens its own sets
	_, err = h.w.Restore(ctx, original, []string{mintA}, true, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(64), h.held(t, mintA).Amount())
}

func TestWallet_BalanceStaleUntilSeedLoaded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	_, err := h.w.CreateSeed(ctx)
	require.NoError(t, err)
	h.withMint(t, h.a, 64)

	// a restart touching mints before Init cannot open the sealed set yet
	w2 := NewWallet(Config{Store: h.store, Pool: h.pool, Clock: h.clock.Now, EncryptProofs: true})
	_, err = w2.AddMint(ctx, mintB)
	require.NoError(t, err)
	snap, found, err := w2.CachedBalance(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, snap.IsStale)

	require.NoError(t, w2.Init(ctx))
	snap, found, err = w2.CachedBalance(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, snap.IsStale)
	assert.Equal(t, int64(64), snap.Total)
}

func TestWallet_RestoreManualClaim(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.a.place(keysetID, 0, 8)
	h.a.place(keysetID, 1, 4)
	h.b.place(keysetID, 7, 2)

	report, err := h.w.Restore(ctx, "  Half depart obvious quality work element tank gorilla view sugar picture HUMBLE ",
		[]string{mintA, mintB}, false, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(14), report.Total())

	got, err := h.w.SeedPhrase(ctx)
	require.NoError(t, err)
	assert.Equal(t, phrase, got)

	mints, err := h.w.Mints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{mintA, mintB}, mints)

	bundles, err := h.w.RestoredBundles(ctx)
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, mintA, bundles[0].Mint)
	assert.Equal(t, int64(12), bundles[0].Amount)
	assert.Empty(t, h.held(t, mintA), "restore never merges on its own")

	added, err := h.w.ClaimRestored(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, int64(12), added)
	assert.Equal(t, int64(12), h.held(t, mintA).Amount())

	require.NoError(t, h.w.DiscardRestored(ctx, ""))
	bundles, err = h.w.RestoredBundles(ctx)
	require.NoError(t, err)
	assert.Empty(t, bundles)

	// running it again finds nothing new for the claimed mint
	report, err = h.w.Restore(ctx, phrase, []string{mintA}, true, RestoreOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Bundles())
	assert.Equal(t, int64(12), h.held(t, mintA).Amount())
}

func TestWallet_RestoreSkipsUnclaimedFindings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.a.place(keysetID, 0, 8)

	report, err := h.w.Restore(ctx, phrase, []string{mintA}, false, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(8), report.Total())

	// not claimed yet, so a second scan has nothing new to report
	report, err = h.w.Restore(ctx, phrase, []string{mintA}, false, RestoreOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Total())
	assert.Empty(t, report.Bundles())

	bundles, err := h.w.RestoredBundles(ctx)
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, int64(8), bundles[0].Amount)
}

func TestWallet_RestoreAutoAdd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.a.place(keysetID, 0, 8)

	_, err := h.w.Restore(ctx, phrase, []string{mintA}, true, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(8), h.held(t, mintA).Amount())

	bundles, err := h.w.RestoredBundles(ctx)
	require.NoError(t, err)
	assert.Empty(t, bundles)

	txs, err := h.w.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, noteRestored, txs[0].Note)

	_, err = h.w.Restore(ctx, "abandon abandon", []string{mintA}, true, RestoreOptions{})
	assert.ErrorIs(t, err, common.ErrInvalidMnemonic)
}

func TestWallet_ClearAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	_, err := h.w.CreateSeed(ctx)
	require.NoError(t, err)
	h.withMint(t, h.a, 8)
	_, err = h.w.Send(ctx, mintA, 3, "")
	require.NoError(t, err)

	require.NoError(t, h.w.ClearAll(ctx))
	assert.False(t, h.w.HasSeed(ctx))
	assert.Nil(t, h.pool.seeds[len(h.pool.seeds)-1])

	mints, err := h.w.Mints(ctx)
	require.NoError(t, err)
	assert.Empty(t, mints)
	assert.Empty(t, h.held(t, mintA))
	txs, err := h.w.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWallet_PendingTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.withMint(t, h.a, 32)

	pt, err := h.w.Send(ctx, mintA, 7, "")
	require.NoError(t, err)

	other := NewWallet(Config{Store: newTestStore(t), Pool: h.pool})
	_, err = other.AddMint(ctx, mintA)
	require.NoError(t, err)
	_, err = other.Receive(ctx, pt.Token)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.w.CheckPendingTokens(ctx))
	pending, err := h.w.PendingTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
