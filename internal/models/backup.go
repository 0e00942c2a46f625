package models

import "time"

// WalletState is everything a backup carries. The seed itself is not part
// of it: the backup is sealed with a key derived from the seed.
type WalletState struct {
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"createdAt"`
	Mints       []string          `json:"mints"`
	DefaultMint string            `json:"defaultMint,omitempty"`
	Proofs      map[string]Proofs `json:"proofs"`
	Pending     []PendingToken    `json:"pendingTokens"`
	Keys        []P2PKKey         `json:"p2pkKeys"`
}

// ImportSummary counts what an import added to the wallet.
type ImportSummary struct {
	Mints   int   `json:"mints"`
	Proofs  int   `json:"proofs"`
	Amount  int64 `json:"amount"`
	Pending int   `json:"pendingTokens"`
	Keys    int   `json:"p2pkKeys"`
	// Skipped lists mints whose proofs could not be checked and were left
	// out.
	Skipped []string `json:"skippedMints,omitempty"`
}
