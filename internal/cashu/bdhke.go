// Package cashu implements the wallet side of the Cashu blind
// Diffie-Hellman key exchange (NUT-00), deterministic secret derivation
// (NUT-13) and the amount helpers the mint client needs.
package cashu

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

var domainSeparator = []byte("Secp256k1_HashToCurve_Cashu_")

var ErrNoPoint = errors.New("hash_to_curve: no valid point found")

// HashToCurve maps message to a secp256k1 point with an even y coordinate.
func HashToCurve(message []byte) (*btcec.PublicKey, error) {
	pre := make([]byte, 0, len(domainSeparator)+len(message))
	pre = append(pre, domainSeparator...)
	pre = append(pre, message...)
	msgHash := sha256.Sum256(pre)

	buf := make([]byte, 36)
	copy(buf, msgHash[:])
	candidate := make([]byte, 33)
	candidate[0] = 0x02

	for counter := uint32(0); counter < 1<<16; counter++ {
		binary.LittleEndian.PutUint32(buf[32:], counter)
		h := sha256.Sum256(buf)
		copy(candidate[1:], h[:])
		if pk, err := btcec.ParsePubKey(candidate); err == nil {
			return pk, nil
		}
	}
	return nil, ErrNoPoint
}

// SecretPoint is Y = hash_to_curve(secret), the identifier NUT-07 uses for a
// proof, hex encoded in compressed form.
func SecretPoint(secret string) (string, error) {
	y, err := HashToCurve([]byte(secret))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(y.SerializeCompressed()), nil
}

// Blind returns B_ = Y + r*G for the given secret and blinding factor.
func Blind(secret string, r *btcec.PrivateKey) (*btcec.PublicKey, error) {
	y, err := HashToCurve([]byte(secret))
	if err != nil {
		return nil, err
	}

	var yJ, rG, sum btcec.JacobianPoint
	y.AsJacobian(&yJ)
	btcec.ScalarBaseMultNonConst(&r.Key, &rG)
	btcec.AddNonConst(&yJ, &rG, &sum)
	sum.ToAffine()

	return btcec.NewPublicKey(&sum.X, &sum.Y), nil
}

// Unblind returns C = C_ - r*K, where K is the mint key for the amount.
func Unblind(blindSig *btcec.PublicKey, r *btcec.PrivateKey, mintKey *btcec.PublicKey) *btcec.PublicKey {
	var kJ, rK, cJ, out btcec.JacobianPoint
	mintKey.AsJacobian(&kJ)
	btcec.ScalarMultNonConst(&r.Key, &kJ, &rK)
	rK.ToAffine()
	rK.Y.Negate(1)
	rK.Y.Normalize()

	blindSig.AsJacobian(&cJ)
	btcec.AddNonConst(&cJ, &rK, &out)
	out.ToAffine()

	return btcec.NewPublicKey(&out.X, &out.Y)
}

// SignBlinded is the mint's half of the exchange, C_ = k*B_. The wallet
// never calls it; it exists so tests can stand up a fake mint.
func SignBlinded(k *btcec.PrivateKey, blinded *btcec.PublicKey) *btcec.PublicKey {
	var bJ, out btcec.JacobianPoint
	blinded.AsJacobian(&bJ)
	btcec.ScalarMultNonConst(&k.Key, &bJ, &out)
	out.ToAffine()
	return btcec.NewPublicKey(&out.X, &out.Y)
}

// Verify checks C == k*hash_to_curve(secret). Only a holder of k can run it.
func Verify(k *btcec.PrivateKey, secret string, c *btcec.PublicKey) bool {
	y, err := HashToCurve([]byte(secret))
	if err != nil {
		return false
	}
	return SignBlinded(k, y).IsEqual(c)
}

// ParsePoint decodes a hex compressed public key.
func ParsePoint(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid point hex: %w", err)
	}
	return btcec.ParsePubKey(b)
}

// PointHex encodes p in compressed hex form.
func PointHex(p *btcec.PublicKey) string {
	return hex.EncodeToString(p.SerializeCompressed())
}
