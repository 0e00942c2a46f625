package models

import "time"

type TxType string

const (
	TxSend    TxType = "send"
	TxReceive TxType = "receive"
)

type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxPaid    TxStatus = "paid"
)

// Transaction is an append-only ledger record.
type Transaction struct {
	ID        string    `json:"id"`
	Type      TxType    `json:"type"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note"`
	Mint      string    `json:"mint"`
	Status    TxStatus  `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
