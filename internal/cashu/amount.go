package cashu

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
)

// SplitAmount decomposes amount into ascending powers of two, the
// denominations mints issue.
func SplitAmount(amount int64) []int64 {
	var out []int64
	for bit := int64(1); amount > 0; bit <<= 1 {
		if amount&bit != 0 {
			out = append(out, bit)
			amount &^= bit
		}
	}
	return out
}

// InputFee is the NUT-02 fee for spending n inputs from a keyset charging
// feePPK parts per thousand per input, rounded up.
func InputFee(n int, feePPK int64) int64 {
	return (int64(n)*feePPK + 999) / 1000
}

// RandomSecret returns a fresh 32-byte hex secret for outputs that must not
// be derived from the seed, such as locked send outputs.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomBlindingFactor returns a random r for non-deterministic outputs.
func RandomBlindingFactor() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}
