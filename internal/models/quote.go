package models

import "time"

type QuoteState string

const (
	QuoteUnpaid QuoteState = "UNPAID"
	QuotePaid   QuoteState = "PAID"
	QuoteIssued QuoteState = "ISSUED"
	// QuotePending is only reported for melt quotes in flight.
	QuotePending QuoteState = "PENDING"
)

// Settled reports whether the mint has received the payment.
func (s QuoteState) Settled() bool {
	return s == QuotePaid || s == QuoteIssued
}

// MintQuote is a Lightning invoice the wallet waits on before minting.
type MintQuote struct {
	ID        string     `json:"id"`
	MintURL   string     `json:"mintUrl"`
	Amount    int64      `json:"amount"`
	Request   string     `json:"request"`
	State     QuoteState `json:"state"`
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	TxID      string     `json:"txId,omitempty"`
}

// Expired reports whether the invoice can no longer be paid at now.
func (q MintQuote) Expired(now time.Time) bool {
	return !q.ExpiresAt.After(now)
}

// Active reports whether the quote still belongs in the polling set.
func (q MintQuote) Active(now time.Time) bool {
	if q.Expired(now) {
		return false
	}
	return q.State == QuoteUnpaid || q.State == QuotePaid
}

// MeltQuote is the mint's offer to pay an external invoice.
type MeltQuote struct {
	ID         string     `json:"id"`
	MintURL    string     `json:"mintUrl"`
	Request    string     `json:"request"`
	Amount     int64      `json:"amount"`
	FeeReserve int64      `json:"feeReserve"`
	State      QuoteState `json:"state"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Preimage   string     `json:"preimage,omitempty"`
}

// Total is the amount of proofs the melt must be funded with.
func (q MeltQuote) Total() int64 {
	return q.Amount + q.FeeReserve
}
