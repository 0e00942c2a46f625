package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/mint"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/dmitrijs2005/nutkeeper/internal/seed"
	"golang.org/x/sync/errgroup"
)

const warmConcurrency = 4

// MintPool dials mint clients and switches their derivation seed.
type MintPool interface {
	mint.Dialer
	SetSeed(seed []byte) error
}

// AddressResolver turns a Lightning address into an invoice.
type AddressResolver interface {
	Resolve(ctx context.Context, address string, amount int64) (string, error)
}

// Config wires a Wallet. Store and Pool are required.
type Config struct {
	Store    repositories.Store
	Pool     MintPool
	Logger   logging.Logger
	Clock    Clock
	Notifier Notifier
	// EncryptProofs seals proof sets with the seed-derived key.
	EncryptProofs bool
	Address       AddressResolver
	// Restore defaults to dialers derived from Pool when it is a *mint.Pool.
	Restore DialerFactory
}

// Wallet is the facade the CLI drives. It composes the services into the
// user-level flows and owns the init guard.
type Wallet struct {
	store   repositories.Store
	pool    MintPool
	seed    SeedService
	mints   MintRegistry
	proofs  ProofStore
	balance BalanceCache
	ledger  Ledger
	quotes  QuoteTracker
	tokens  TokenTracker
	keys    KeyService
	restore RestoreEngine
	address AddressResolver
	funds   *funds
	clock   Clock
	log     logging.Logger

	initializing atomic.Bool
}

func NewWallet(cfg Config) *Wallet {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier(log)
	}

	w := &Wallet{store: cfg.Store, pool: cfg.Pool, address: cfg.Address, clock: cfg.Clock, log: log}
	w.seed = NewSeedService(cfg.Store.Settings())

	key := func() []byte {
		if k, ok := w.seed.Current(); ok {
			return k.EncryptionKey()
		}
		return nil
	}

	w.mints = NewMintRegistry(cfg.Store.Settings())
	w.proofs = NewProofStore(cfg.Store, key, cfg.EncryptProofs, log)
	w.balance = NewBalanceCache(w.proofs, w.mints, cfg.Store.Settings(), cfg.Clock)
	w.ledger = NewLedger(cfg.Store.Transactions(), cfg.Clock)
	w.funds = &funds{proofs: w.proofs, balance: w.balance, log: log}
	w.quotes = NewQuoteTracker(cfg.Store.Quotes(), cfg.Pool, w.proofs, w.balance, w.ledger, w.seed, notifier, cfg.Clock, log)
	w.tokens = NewTokenTracker(cfg.Store.PendingTokens(), cfg.Pool, w.ledger, notifier, cfg.Clock, log)
	w.keys = NewKeyService(cfg.Store.Keys(), cfg.Clock)

	dialers := cfg.Restore
	if dialers == nil {
		if p, ok := cfg.Pool.(*mint.Pool); ok {
			dialers = PoolDialers(p, 0)
		}
	}
	w.restore = NewRestoreEngine(dialers, w.proofs, cfg.Store.PendingTokens(), cfg.Store.Settings(), cfg.Clock, log)
	return w
}

func (w *Wallet) Keys() KeyService { return w.keys }

// Init loads the seed and known mints, warms mint metadata and refreshes
// the balance. A second call while one is running fails with
// common.ErrInitInProgress.
func (w *Wallet) Init(ctx context.Context) error {
	if !w.initializing.CompareAndSwap(false, true) {
		return common.ErrInitInProgress
	}
	defer w.initializing.Store(false)

	keys, err := w.seed.Load(ctx)
	switch {
	case err == nil:
		if err := w.pool.SetSeed(keys.Seed()); err != nil {
			return fmt.Errorf("failed to load seed: %w", err)
		}
	case errors.Is(err, common.ErrNoSeed):
		w.log.Info(ctx, "wallet has no seed yet")
	default:
		return err
	}

	mints, err := w.mints.List(ctx)
	if err != nil {
		return err
	}
	w.warm(ctx, mints)

	if _, err := w.balance.Recompute(ctx); err != nil {
		return fmt.Errorf("failed to compute balance: %w", err)
	}
	return nil
}

// warm fetches info and keysets of every mint so later calls hit the
// client caches. Unreachable mints are only logged.
func (w *Wallet) warm(ctx context.Context, mints []string) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, m := range mints {
		g.Go(func() error {
			c, err := w.pool.Dial(m)
			if err != nil {
				w.log.Warn(ctx, "invalid mint", "mint", m, "error", err)
				return nil
			}
			if _, err := c.GetInfo(ctx); err != nil {
				w.log.Warn(ctx, "mint info unavailable", "mint", m, "error", err)
				return nil
			}
			if _, err := c.GetKeysets(ctx); err != nil {
				w.log.Warn(ctx, "mint keysets unavailable", "mint", m, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Wallet) useSeed(keys seed.Provider) error {
	if err := w.pool.SetSeed(keys.Seed()); err != nil {
		return fmt.Errorf("failed to load seed: %w", err)
	}
	return nil
}

// CreateSeed generates and stores a new 12-word phrase. A wallet that
// already has a seed keeps it and fails with common.ErrKeyExists.
func (w *Wallet) CreateSeed(ctx context.Context) (string, error) {
	if w.HasSeed(ctx) {
		return "", fmt.Errorf("wallet seed: %w", common.ErrKeyExists)
	}
	phrase, err := seed.NewMnemonic()
	if err != nil {
		return "", fmt.Errorf("failed to generate seed: %w", err)
	}
	keys, err := w.seed.Set(ctx, phrase)
	if err != nil {
		return "", err
	}
	if err := w.useSeed(keys); err != nil {
		return "", err
	}
	return keys.Mnemonic(), nil
}

func (w *Wallet) SeedPhrase(ctx context.Context) (string, error) {
	keys, err := w.seed.Load(ctx)
	if err != nil {
		return "", err
	}
	return keys.Mnemonic(), nil
}

func (w *Wallet) HasSeed(ctx context.Context) bool {
	_, err := w.seed.Load(ctx)
	return err == nil
}

// AddMint checks that url answers as a mint and adds it to the list.
func (w *Wallet) AddMint(ctx context.Context, url string) (models.MintInfo, error) {
	c, err := w.pool.Dial(url)
	if err != nil {
		return models.MintInfo{}, err
	}
	info, err := c.GetInfo(ctx)
	if err != nil {
		return models.MintInfo{}, fmt.Errorf("failed to reach mint: %w", err)
	}
	if _, err := w.mints.Add(ctx, c.URL()); err != nil {
		return models.MintInfo{}, err
	}
	w.funds.refresh(ctx)
	return info, nil
}

// RemoveMint refuses to drop a mint that still holds proofs.
func (w *Wallet) RemoveMint(ctx context.Context, url string) error {
	u, err := mint.NormalizeURL(url)
	if err != nil {
		return err
	}
	held, err := w.proofs.Get(ctx, u)
	if err != nil {
		return err
	}
	if held.Amount() > 0 {
		return fmt.Errorf("%w: %d sat at %s", common.ErrMintInUse, held.Amount(), u)
	}
	if err := w.mints.Remove(ctx, u); err != nil {
		return err
	}
	w.funds.refresh(ctx)
	return nil
}

func (w *Wallet) Mints(ctx context.Context) ([]string, error) { return w.mints.List(ctx) }

func (w *Wallet) DefaultMint(ctx context.Context) (string, error) { return w.mints.Default(ctx) }

func (w *Wallet) SetDefaultMint(ctx context.Context, url string) error {
	return w.mints.SetDefault(ctx, url)
}

func (w *Wallet) MintInfo(ctx context.Context, url string) (models.MintInfo, error) {
	c, err := w.client(ctx, url)
	if err != nil {
		return models.MintInfo{}, err
	}
	return c.GetInfo(ctx)
}

// client dials a known mint. An empty url selects the default mint.
func (w *Wallet) client(ctx context.Context, url string) (mint.Client, error) {
	if url == "" {
		def, err := w.mints.Default(ctx)
		if err != nil {
			return nil, err
		}
		url = def
	}
	known, err := w.mints.Known(ctx, url)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownMint, url)
	}
	return w.pool.Dial(url)
}

// Balance recomputes and returns the current balance.
func (w *Wallet) Balance(ctx context.Context) (models.BalanceSnapshot, error) {
	return w.balance.Recompute(ctx)
}

// CachedBalance returns the last stored snapshot without touching proofs.
func (w *Wallet) CachedBalance(ctx context.Context) (models.BalanceSnapshot, bool, error) {
	return w.balance.Snapshot(ctx)
}

func (w *Wallet) Transactions(ctx context.Context) ([]models.Transaction, error) {
	return w.ledger.List(ctx)
}

func (w *Wallet) PendingTokens(ctx context.Context) ([]models.PendingToken, error) {
	return w.tokens.List(ctx)
}

func (w *Wallet) Quotes(ctx context.Context) ([]models.MintQuote, error) {
	return w.quotes.Active(ctx)
}

// CheckQuotes runs one pass of the mint quote poller.
func (w *Wallet) CheckQuotes(ctx context.Context) error { return w.quotes.Check(ctx) }

// CheckPendingTokens runs one pass of the sent token poller.
func (w *Wallet) CheckPendingTokens(ctx context.Context) error { return w.tokens.Check(ctx) }

// ClearAll deletes every stored record, the seed included.
func (w *Wallet) ClearAll(ctx context.Context) error {
	if err := w.store.Wipe(ctx); err != nil {
		return fmt.Errorf("failed to clear wallet: %w", err)
	}
	w.seed.Forget()
	return w.pool.SetSeed(nil)
}
