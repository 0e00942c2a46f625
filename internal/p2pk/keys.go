package p2pk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

var ErrInvalidKey = errors.New("invalid p2pk key")

// GenerateKey creates a fresh keypair. Public keys use the x-only BIP-340
// form with a "02" prefix, which is what Cashu secrets carry.
func GenerateKey(now time.Time) (models.P2PKKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return models.P2PKKey{}, err
	}
	return keyFromPrivate(priv, now), nil
}

// ImportKey accepts a hex private key or a bech32 nsec.
func ImportKey(s string, now time.Time) (models.P2PKKey, error) {
	s = strings.TrimSpace(s)
	var raw []byte
	if strings.HasPrefix(s, "nsec1") {
		b, err := decodeBech32("nsec", s)
		if err != nil {
			return models.P2PKKey{}, err
		}
		raw = b
	} else {
		b, err := hex.DecodeString(s)
		if err != nil {
			return models.P2PKKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		raw = b
	}
	if len(raw) != 32 {
		return models.P2PKKey{}, fmt.Errorf("%w: private key must be 32 bytes", ErrInvalidKey)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return keyFromPrivate(priv, now), nil
}

func keyFromPrivate(priv *btcec.PrivateKey, now time.Time) models.P2PKKey {
	return models.P2PKKey{
		PublicKey:  "02" + hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		CreatedAt:  now,
	}
}

// NormalizePubkey converts an npub to the "02"-prefixed hex form and checks
// that the result is a 33-byte compressed key.
func NormalizePubkey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "npub1") {
		b, err := decodeBech32("npub", s)
		if err != nil {
			return "", err
		}
		s = "02" + hex.EncodeToString(b)
	}
	if !IsValidPubkey(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return strings.ToLower(s), nil
}

// IsValidPubkey accepts 66 hex characters that parse as a point.
func IsValidPubkey(s string) bool {
	if len(s) != 66 {
		return false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return false
	}
	_, err = btcec.ParsePubKey(b)
	return err == nil
}

func decodeBech32(hrp, s string) ([]byte, error) {
	gotHRP, data, err := bech32.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if gotHRP != hrp {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidKey, hrp, gotHRP)
	}
	b, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: %s payload must be 32 bytes", ErrInvalidKey, hrp)
	}
	return b, nil
}

// EncodeNpub renders a "02"-prefixed x-only public key as an npub.
func EncodeNpub(pubkey string) (string, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(pubkey, "02"))
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, pubkey)
	}
	data, err := bech32.ConvertBits(b, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("npub", data)
}

type witness struct {
	Signatures []string `json:"signatures"`
}

// Sign produces the NUT-11 witness for secret: a BIP-340 signature over
// sha256(secret) by the hex private key.
func Sign(privateKey, secret string) (string, error) {
	raw, err := hex.DecodeString(privateKey)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: bad private key", ErrInvalidKey)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)

	hash := sha256.Sum256([]byte(secret))
	sig, err := schnorr.Sign(priv, hash[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	b, err := json.Marshal(witness{Signatures: []string{hex.EncodeToString(sig.Serialize())}})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyWitness checks a witness produced by Sign against pubkey.
func VerifyWitness(pubkey, secret, w string) bool {
	var wt witness
	if err := json.Unmarshal([]byte(w), &wt); err != nil || len(wt.Signatures) == 0 {
		return false
	}
	pkBytes, err := hex.DecodeString(pubkey)
	if err != nil || len(pkBytes) != 33 {
		return false
	}
	pk, err := schnorr.ParsePubKey(pkBytes[1:])
	if err != nil {
		return false
	}
	hash := sha256.Sum256([]byte(secret))
	for _, s := range wt.Signatures {
		sb, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		sig, err := schnorr.ParseSignature(sb)
		if err != nil {
			continue
		}
		if sig.Verify(hash[:], pk) {
			return true
		}
	}
	return false
}
