// Package seed turns a BIP-39 recovery phrase into the material the wallet
// derives everything else from: the 64-byte seed used for deterministic
// secrets and the symmetric key used to seal proofs at rest.
package seed

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/cryptox"
	"github.com/vulpemventures/go-bip39"
)

// Provider is the seed-derived key source consumed by the wallet.
type Provider interface {
	Mnemonic() string
	Seed() []byte
	EncryptionKey() []byte
}

// Normalize lowercases the phrase and collapses all whitespace to single
// spaces, so pasted phrases compare equal.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// Validate accepts 12 or 24 word phrases with a valid BIP-39 checksum.
func Validate(phrase string) error {
	phrase = Normalize(phrase)
	words := len(strings.Fields(phrase))
	if words != 12 && words != 24 {
		return fmt.Errorf("%w: expected 12 or 24 words, got %d", common.ErrInvalidMnemonic, words)
	}
	if !bip39.IsMnemonicValid(phrase) {
		return fmt.Errorf("%w: checksum mismatch or unknown word", common.ErrInvalidMnemonic)
	}
	return nil
}

// NewMnemonic generates a fresh 12-word phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(entropy)
	return bip39.NewMnemonic(entropy)
}

// Keys is the Provider built from a validated phrase.
type Keys struct {
	mnemonic string
	seed     []byte
	encKey   []byte
}

// FromMnemonic validates phrase and derives the seed (empty BIP-39
// passphrase) and the proof encryption key.
func FromMnemonic(phrase string) (*Keys, error) {
	phrase = Normalize(phrase)
	if err := Validate(phrase); err != nil {
		return nil, err
	}

	s := bip39.NewSeed(phrase, "")
	key, err := cryptox.DeriveKey(s, cryptox.PurposeProofs)
	if err != nil {
		return nil, err
	}
	return &Keys{mnemonic: phrase, seed: s, encKey: key}, nil
}

func (k *Keys) Mnemonic() string      { return k.mnemonic }
func (k *Keys) Seed() []byte          { return k.seed }
func (k *Keys) EncryptionKey() []byte { return k.encKey }

// Wipe zeroes the derived material. The Keys value must not be used after.
func (k *Keys) Wipe() {
	common.WipeByteArray(k.seed)
	common.WipeByteArray(k.encKey)
	k.mnemonic = ""
}
