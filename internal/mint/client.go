// Package mint talks to Cashu mints over their HTTP API. Client is the
// boundary the wallet services depend on; the HTTP implementation performs
// the wallet side of blinding, unblinding and deterministic output
// derivation.
package mint

import (
	"context"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

// Client is a connection to one mint.
type Client interface {
	URL() string

	GetInfo(ctx context.Context) (models.MintInfo, error)
	// GetKeysets lists the mint's keysets for the wallet unit, keys included.
	GetKeysets(ctx context.Context) ([]models.Keyset, error)

	CreateMintQuote(ctx context.Context, amount int64) (models.MintQuote, error)
	CheckMintQuote(ctx context.Context, quoteID string) (models.MintQuote, error)
	MintProofs(ctx context.Context, amount int64, quoteID string) (models.Proofs, error)

	// Send swaps proofs so that exactly amount is split off, optionally
	// locked to lockTo. keep holds the change plus every untouched proof.
	Send(ctx context.Context, amount int64, proofs models.Proofs, lockTo string) (send, keep models.Proofs, err error)
	// Receive swaps foreign proofs for fresh ones. Locked proofs must carry
	// their witness.
	Receive(ctx context.Context, proofs models.Proofs) (models.Proofs, error)

	CreateMeltQuote(ctx context.Context, invoice string) (models.MeltQuote, error)
	MeltProofs(ctx context.Context, quote models.MeltQuote, proofs models.Proofs) (MeltResult, error)

	// Restore re-derives count outputs from start for keysetID and returns
	// the proofs the mint has signatures for, spent or not.
	Restore(ctx context.Context, keysetID string, start, count uint32) (models.Proofs, error)
	// CheckProofsStates returns one state per proof, in input order.
	CheckProofsStates(ctx context.Context, proofs models.Proofs) ([]models.ProofState, error)
}

// MeltResult is the outcome of paying a melt quote.
type MeltResult struct {
	State    models.QuoteState
	Preimage string
	// Change is the fee-reserve overpayment returned by the mint.
	Change models.Proofs
	// Keep holds the proofs that were not used as inputs.
	Keep models.Proofs
}

func (r MeltResult) Paid() bool { return r.State == models.QuotePaid }

// Dialer hands out clients by mint URL.
type Dialer interface {
	Dial(mintURL string) (Client, error)
}

// CounterStore persists the next unused derivation index per keyset.
type CounterStore interface {
	// Reserve returns the first of n consecutive indexes and moves the
	// counter past them.
	Reserve(ctx context.Context, keysetID string, n uint32) (uint32, error)
	// Advance moves the counter to next unless it is already beyond it.
	Advance(ctx context.Context, keysetID string, next uint32) error
}
