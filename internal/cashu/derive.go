package cashu

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

const purpose = 129372

var keysetModulus = big.NewInt(1<<31 - 1)

// KeysetIndex maps a hex keyset id to the hardened path element NUT-13 uses.
func KeysetIndex(keysetID string) (uint32, error) {
	b, err := hex.DecodeString(keysetID)
	if err != nil {
		return 0, fmt.Errorf("keyset id %q is not hex: %w", keysetID, err)
	}
	n := new(big.Int).SetBytes(b)
	return uint32(n.Mod(n, keysetModulus).Uint64()), nil
}

// Deriver produces deterministic secrets and blinding factors from a seed,
// following m/129372'/0'/{keyset}'/{counter}'/{0|1}.
type Deriver struct {
	master *hdkeychain.ExtendedKey
}

func NewDeriver(seed []byte) (*Deriver, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	return &Deriver{master: master}, nil
}

// Derive returns the secret (hex of the derived key) and blinding factor
// for counter within keysetID.
func (d *Deriver) Derive(keysetID string, counter uint32) (string, *btcec.PrivateKey, error) {
	ks, err := KeysetIndex(keysetID)
	if err != nil {
		return "", nil, err
	}

	node := d.master
	for _, step := range []uint32{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart,
		hdkeychain.HardenedKeyStart + ks,
		hdkeychain.HardenedKeyStart + counter,
	} {
		node, err = node.Derive(step)
		if err != nil {
			return "", nil, fmt.Errorf("derive: %w", err)
		}
	}

	secretNode, err := node.Derive(0)
	if err != nil {
		return "", nil, fmt.Errorf("derive secret: %w", err)
	}
	rNode, err := node.Derive(1)
	if err != nil {
		return "", nil, fmt.Errorf("derive r: %w", err)
	}

	secretKey, err := secretNode.ECPrivKey()
	if err != nil {
		return "", nil, err
	}
	r, err := rNode.ECPrivKey()
	if err != nil {
		return "", nil, err
	}

	return hex.EncodeToString(secretKey.Serialize()), r, nil
}
