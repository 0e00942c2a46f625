package models

import "time"

// PendingToken is a send-token handed out but not yet redeemed by its
// recipient. Its proofs have already been debited from the store.
type PendingToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Amount    int64     `json:"amount"`
	MintURL   string    `json:"mintUrl"`
	Proofs    Proofs    `json:"proofs"`
	CreatedAt time.Time `json:"timestamp"`
	TxID      string    `json:"txId,omitempty"`
}
