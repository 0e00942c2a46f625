package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/mint"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// DefaultQuoteTTL applies when the mint did not say when its invoice
// expires.
const DefaultQuoteTTL = time.Hour

const noteMinted = "Minted via Lightning"

// QuoteTracker watches mint quotes until they are paid and minted or
// expire.
type QuoteTracker interface {
	// Track stores q, filling in creation time, expiry and state when unset.
	Track(ctx context.Context, q models.MintQuote) (models.MintQuote, error)
	// Active lists unexpired quotes that are UNPAID or PAID.
	Active(ctx context.Context) ([]models.MintQuote, error)
	// Check runs one polling pass over every stored quote.
	Check(ctx context.Context) error
}

type quoteTracker struct {
	repo     repositories.QuoteRepository
	dialer   mint.Dialer
	funds    *funds
	ledger   Ledger
	seed     SeedService
	notifier Notifier
	clock    Clock
	log      logging.Logger
}

func NewQuoteTracker(repo repositories.QuoteRepository, dialer mint.Dialer, proofs ProofStore, balance BalanceCache,
	ledger Ledger, seed SeedService, notifier Notifier, clock Clock, log logging.Logger) QuoteTracker {
	return &quoteTracker{
		repo:     repo,
		dialer:   dialer,
		funds:    &funds{proofs: proofs, balance: balance, log: log},
		ledger:   ledger,
		seed:     seed,
		notifier: notifier,
		clock:    clock,
		log:      log.With("component", "quotes"),
	}
}

func (t *quoteTracker) Track(ctx context.Context, q models.MintQuote) (models.MintQuote, error) {
	now := t.clock.now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.ExpiresAt.IsZero() {
		q.ExpiresAt = q.CreatedAt.Add(DefaultQuoteTTL)
	}
	if q.State == "" {
		q.State = models.QuoteUnpaid
	}
	if err := t.repo.Upsert(ctx, q); err != nil {
		return models.MintQuote{}, fmt.Errorf("error saving quote: %w", err)
	}
	return q, nil
}

func (t *quoteTracker) Active(ctx context.Context) ([]models.MintQuote, error) {
	quotes, err := t.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving quotes: %w", err)
	}
	now := t.clock.now()
	active := make([]models.MintQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.Active(now) {
			active = append(active, q)
		}
	}
	return active, nil
}

func (t *quoteTracker) Check(ctx context.Context) error {
	if _, ok := t.seed.Current(); !ok {
		t.log.Debug(ctx, "no seed loaded, skipping quote check")
		return nil
	}

	quotes, err := t.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("error retrieving quotes: %w", err)
	}

	now := t.clock.now()
	for _, q := range quotes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.Expired(now) {
			t.log.Info(ctx, "quote expired", "quote", q.ID, "mint", q.MintURL)
			t.remove(ctx, q)
			continue
		}
		if err := t.checkOne(ctx, q); err != nil {
			t.log.Warn(ctx, "quote check failed", "quote", q.ID, "mint", q.MintURL, "error", err)
		}
	}
	return nil
}

func (t *quoteTracker) remove(ctx context.Context, q models.MintQuote) {
	if err := t.repo.Delete(ctx, q.ID); err != nil {
		t.log.Error(ctx, "failed to delete quote", "quote", q.ID, "error", err)
	}
}

func (t *quoteTracker) checkOne(ctx context.Context, q models.MintQuote) error {
	c, err := t.dialer.Dial(q.MintURL)
	if err != nil {
		return err
	}

	remote, err := c.CheckMintQuote(ctx, q.ID)
	if errors.Is(err, common.ErrQuoteExpired) {
		t.log.Info(ctx, "mint reports quote expired", "quote", q.ID)
		t.remove(ctx, q)
		return nil
	}
	if err != nil {
		return err
	}
	if !remote.State.Settled() {
		return nil
	}

	if q.State == models.QuoteUnpaid {
		q.State = models.QuotePaid
		if err := t.repo.Upsert(ctx, q); err != nil {
			return fmt.Errorf("error saving quote: %w", err)
		}
	}

	proofs, err := c.MintProofs(ctx, q.Amount, q.ID)
	if errors.Is(err, common.ErrQuoteIssued) {
		t.log.Warn(ctx, "quote was already issued, run restore to recover its proofs", "quote", q.ID, "mint", q.MintURL)
		t.remove(ctx, q)
		return nil
	}
	if err != nil {
		return err
	}

	if err := t.funds.credit(ctx, q.MintURL, proofs); err != nil {
		return err
	}

	if q.TxID != "" {
		err = t.ledger.UpdateStatus(ctx, q.TxID, models.TxPaid)
	} else {
		_, err = t.ledger.Append(ctx, models.TxReceive, proofs.Amount(), noteMinted, q.MintURL, models.TxPaid)
	}
	if err != nil {
		t.log.Error(ctx, "failed to record minted quote", "quote", q.ID, "error", err)
	}

	t.remove(ctx, q)
	t.notifier.Notify(ctx, Event{Kind: EventQuotePaid, ID: q.ID, Mint: q.MintURL, Amount: proofs.Amount()})
	return nil
}
