package models

import "time"

// RestoredBundle holds proofs recovered for one mint that have not been
// merged into the store yet.
type RestoredBundle struct {
	Mint       string    `json:"mint"`
	Token      string    `json:"token"`
	Proofs     Proofs    `json:"proofs"`
	Amount     int64     `json:"amount"`
	ProofCount int       `json:"proofCount"`
	Timestamp  time.Time `json:"timestamp"`
}
