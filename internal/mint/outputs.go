package mint

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dmitrijs2005/nutkeeper/internal/cashu"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/p2pk"
)

// output is a blinded message together with what is needed to unblind the
// mint's answer.
type output struct {
	msg    blindedMessage
	secret string
	r      *btcec.PrivateKey
}

func messages(outs []output) []blindedMessage {
	if len(outs) == 0 {
		return nil
	}
	msgs := make([]blindedMessage, len(outs))
	for i, o := range outs {
		msgs[i] = o.msg
	}
	return msgs
}

// newOutputs prepares one output per amount. Plain outputs are derived
// from the seed when one is loaded; locked outputs always use a random
// nonce and blinding factor.
func (c *HTTPClient) newOutputs(ctx context.Context, keysetID string, amounts []int64, lockTo string) ([]output, error) {
	if len(amounts) == 0 {
		return nil, nil
	}

	d := c.deriver()
	if lockTo == "" && d != nil && c.opts.Counters != nil {
		start, err := c.opts.Counters.Reserve(ctx, keysetID, uint32(len(amounts)))
		if err != nil {
			return nil, fmt.Errorf("failed to reserve counter: %w", err)
		}
		return derivedOutputs(d, keysetID, start, amounts)
	}

	outs := make([]output, len(amounts))
	for i, amt := range amounts {
		var (
			secret string
			err    error
		)
		if lockTo != "" {
			secret, err = p2pk.NewLockSecret(lockTo)
		} else {
			secret, err = cashu.RandomSecret()
		}
		if err != nil {
			return nil, err
		}
		r, err := cashu.RandomBlindingFactor()
		if err != nil {
			return nil, err
		}
		if outs[i], err = blindOutput(keysetID, amt, secret, r); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

func derivedOutputs(d *cashu.Deriver, keysetID string, start uint32, amounts []int64) ([]output, error) {
	outs := make([]output, len(amounts))
	for i, amt := range amounts {
		secret, r, err := d.Derive(keysetID, start+uint32(i))
		if err != nil {
			return nil, err
		}
		if outs[i], err = blindOutput(keysetID, amt, secret, r); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

func blindOutput(keysetID string, amount int64, secret string, r *btcec.PrivateKey) (output, error) {
	b, err := cashu.Blind(secret, r)
	if err != nil {
		return output{}, err
	}
	return output{
		msg:    blindedMessage{Amount: amount, ID: keysetID, B: cashu.PointHex(b)},
		secret: secret,
		r:      r,
	}, nil
}

// unblind turns the mint's signatures into proofs, pairing them with outs
// by position.
func (c *HTTPClient) unblind(ctx context.Context, outs []output, sigs []blindSignature) (models.Proofs, error) {
	if len(outs) != len(sigs) {
		return nil, fmt.Errorf("mint returned %d signatures for %d outputs", len(sigs), len(outs))
	}
	proofs := make(models.Proofs, 0, len(sigs))
	for i, sig := range sigs {
		ks, err := c.keyset(ctx, sig.ID)
		if err != nil {
			return nil, err
		}
		keyHex, ok := ks.Keys[sig.Amount]
		if !ok {
			return nil, fmt.Errorf("keyset %s has no key for amount %d", sig.ID, sig.Amount)
		}
		k, err := cashu.ParsePoint(keyHex)
		if err != nil {
			return nil, fmt.Errorf("bad mint key: %w", err)
		}
		blindSig, err := cashu.ParsePoint(sig.C)
		if err != nil {
			return nil, fmt.Errorf("bad blind signature: %w", err)
		}
		proofs = append(proofs, models.Proof{
			Amount: sig.Amount,
			ID:     sig.ID,
			Secret: outs[i].secret,
			C:      cashu.PointHex(cashu.Unblind(blindSig, outs[i].r, k)),
			Mint:   c.url,
		})
	}
	return proofs, nil
}

// blankAmounts sizes the NUT-08 blank outputs for a possible overpayment.
func blankAmounts(over int64) []int64 {
	n := bits.Len64(uint64(over))
	if n == 0 {
		n = 1
	}
	return restoreAmounts(uint32(n))
}

// restoreAmounts is count placeholder amounts; the mint ignores them when
// signing blank or restore outputs.
func restoreAmounts(count uint32) []int64 {
	out := make([]int64, count)
	for i := range out {
		out[i] = 1
	}
	return out
}
