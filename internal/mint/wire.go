package mint

import (
	"strconv"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

type keysetsResponse struct {
	Keysets []keysetEntry `json:"keysets"`
}

type keysetEntry struct {
	ID          string            `json:"id"`
	Unit        string            `json:"unit"`
	Active      *bool             `json:"active,omitempty"`
	InputFeePPK int64             `json:"input_fee_ppk"`
	Keys        map[string]string `json:"keys,omitempty"`
}

func (k keysetEntry) model() models.Keyset {
	ks := models.Keyset{ID: k.ID, Unit: k.Unit, Active: k.Active == nil || *k.Active, InputFeePPK: k.InputFeePPK}
	if len(k.Keys) > 0 {
		ks.Keys = make(map[int64]string, len(k.Keys))
		for amt, pub := range k.Keys {
			if n, err := strconv.ParseInt(amt, 10, 64); err == nil {
				ks.Keys[n] = pub
			}
		}
	}
	return ks
}

type blindedMessage struct {
	Amount int64  `json:"amount"`
	ID     string `json:"id"`
	B      string `json:"B_"`
}

type blindSignature struct {
	Amount int64  `json:"amount"`
	ID     string `json:"id"`
	C      string `json:"C_"`
}

type mintQuoteRequest struct {
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"`
}

type mintQuoteResponse struct {
	Quote   string            `json:"quote"`
	Request string            `json:"request"`
	State   models.QuoteState `json:"state"`
	Paid    *bool             `json:"paid,omitempty"`
	Expiry  *int64            `json:"expiry"`
	Amount  int64             `json:"amount,omitempty"`
}

type mintRequest struct {
	Quote   string           `json:"quote"`
	Outputs []blindedMessage `json:"outputs"`
}

type signaturesResponse struct {
	Signatures []blindSignature `json:"signatures"`
}

type swapRequest struct {
	Inputs  models.Proofs    `json:"inputs"`
	Outputs []blindedMessage `json:"outputs"`
}

type meltQuoteRequest struct {
	Request string `json:"request"`
	Unit    string `json:"unit"`
}

type meltQuoteResponse struct {
	Quote      string            `json:"quote"`
	Amount     int64             `json:"amount"`
	FeeReserve int64             `json:"fee_reserve"`
	State      models.QuoteState `json:"state"`
	Paid       *bool             `json:"paid,omitempty"`
	Expiry     *int64            `json:"expiry"`
	Preimage   *string           `json:"payment_preimage"`
	Change     []blindSignature  `json:"change,omitempty"`
}

type meltRequest struct {
	Quote   string           `json:"quote"`
	Inputs  models.Proofs    `json:"inputs"`
	Outputs []blindedMessage `json:"outputs,omitempty"`
}

type restoreRequest struct {
	Outputs []blindedMessage `json:"outputs"`
}

type restoreResponse struct {
	Outputs    []blindedMessage `json:"outputs"`
	Signatures []blindSignature `json:"signatures"`
	// Promises is the pre-1.0 name of Signatures.
	Promises []blindSignature `json:"promises,omitempty"`
}

type checkStateRequest struct {
	Ys []string `json:"Ys"`
}

type checkStateResponse struct {
	States []proofStateEntry `json:"states"`
}

type proofStateEntry struct {
	Y       string                `json:"Y"`
	State   models.ProofStateKind `json:"state"`
	Witness string                `json:"witness,omitempty"`
}

// quoteState resolves the legacy boolean "paid" flag older mints send.
func quoteState(state models.QuoteState, paid *bool) models.QuoteState {
	if state != "" {
		return state
	}
	if paid != nil && *paid {
		return models.QuotePaid
	}
	return models.QuoteUnpaid
}
