package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/google/uuid"
)

// Ledger is the user-facing transaction history. It records what happened
// and never checks balances.
type Ledger interface {
	Append(ctx context.Context, typ models.TxType, amount int64, note, mint string, status models.TxStatus) (string, error)
	// UpdateStatus is a no-op when the transaction already has status.
	UpdateStatus(ctx context.Context, id string, status models.TxStatus) error
	// List returns the history newest first.
	List(ctx context.Context) ([]models.Transaction, error)
	Get(ctx context.Context, id string) (models.Transaction, error)
}

type ledger struct {
	repo  repositories.TransactionRepository
	clock Clock
}

func NewLedger(repo repositories.TransactionRepository, clock Clock) Ledger {
	return &ledger{repo: repo, clock: clock}
}

func (l *ledger) Append(ctx context.Context, typ models.TxType, amount int64, note, mint string, status models.TxStatus) (string, error) {
	tx := models.Transaction{
		ID:        uuid.NewString(),
		Type:      typ,
		Amount:    amount,
		Note:      note,
		Mint:      mint,
		Status:    status,
		Timestamp: l.clock.now(),
	}
	if err := l.repo.Insert(ctx, tx); err != nil {
		return "", fmt.Errorf("error saving transaction: %w", err)
	}
	return tx.ID, nil
}

func (l *ledger) UpdateStatus(ctx context.Context, id string, status models.TxStatus) error {
	if _, err := l.repo.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("error updating transaction %s: %w", id, err)
	}
	return nil
}

func (l *ledger) List(ctx context.Context) ([]models.Transaction, error) {
	txs, err := l.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving transactions: %w", err)
	}
	return txs, nil
}

func (l *ledger) Get(ctx context.Context, id string) (models.Transaction, error) {
	tx, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("error retrieving transaction %s: %w", id, err)
	}
	return tx, nil
}
