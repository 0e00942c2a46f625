package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/mint"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// GraceWindow is how long a freshly sent token is left alone before its
// proofs are checked.
const GraceWindow = 10 * time.Second

// TokenTracker watches sent tokens until the recipient redeems them.
type TokenTracker interface {
	Track(ctx context.Context, p models.PendingToken) error
	List(ctx context.Context) ([]models.PendingToken, error)
	Get(ctx context.Context, id string) (models.PendingToken, error)
	Delete(ctx context.Context, id string) error
	// Check runs one polling pass. A token is settled only when every one
	// of its proofs is spent.
	Check(ctx context.Context) error
}

type tokenTracker struct {
	repo     repositories.PendingTokenRepository
	dialer   mint.Dialer
	ledger   Ledger
	notifier Notifier
	clock    Clock
	log      logging.Logger
}

func NewTokenTracker(repo repositories.PendingTokenRepository, dialer mint.Dialer, ledger Ledger,
	notifier Notifier, clock Clock, log logging.Logger) TokenTracker {
	return &tokenTracker{
		repo:     repo,
		dialer:   dialer,
		ledger:   ledger,
		notifier: notifier,
		clock:    clock,
		log:      log.With("component", "tokens"),
	}
}

func (t *tokenTracker) Track(ctx context.Context, p models.PendingToken) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.clock.now()
	}
	if err := t.repo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("error saving pending token: %w", err)
	}
	return nil
}

func (t *tokenTracker) List(ctx context.Context) ([]models.PendingToken, error) {
	list, err := t.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving pending tokens: %w", err)
	}
	return list, nil
}

func (t *tokenTracker) Get(ctx context.Context, id string) (models.PendingToken, error) {
	p, err := t.repo.GetByID(ctx, id)
	if err != nil {
		return models.PendingToken{}, fmt.Errorf("error retrieving pending token %s: %w", id, err)
	}
	return p, nil
}

func (t *tokenTracker) Delete(ctx context.Context, id string) error {
	if err := t.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting pending token %s: %w", id, err)
	}
	return nil
}

func (t *tokenTracker) Check(ctx context.Context) error {
	pending, err := t.List(ctx)
	if err != nil {
		return err
	}

	now := t.clock.now()
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if now.Sub(p.CreatedAt) < GraceWindow || len(p.Proofs) == 0 {
			continue
		}
		if err := t.checkOne(ctx, p); err != nil {
			t.log.Warn(ctx, "pending token check failed", "token", p.ID, "mint", p.MintURL, "error", err)
		}
	}
	return nil
}

func (t *tokenTracker) checkOne(ctx context.Context, p models.PendingToken) error {
	c, err := t.dialer.Dial(p.MintURL)
	if err != nil {
		return err
	}
	states, err := c.CheckProofsStates(ctx, p.Proofs)
	if err != nil {
		return err
	}
	if !models.AllSpent(states) {
		return nil
	}

	if err := t.Delete(ctx, p.ID); err != nil {
		return err
	}
	if p.TxID != "" {
		if err := t.ledger.UpdateStatus(ctx, p.TxID, models.TxPaid); err != nil {
			t.log.Error(ctx, "failed to mark send paid", "token", p.ID, "error", err)
		}
	}
	t.log.Info(ctx, "sent token claimed", "token", p.ID, "amount", p.Amount)
	t.notifier.Notify(ctx, Event{Kind: EventTokenClaimed, ID: p.ID, Mint: p.MintURL, Amount: p.Amount})
	return nil
}
