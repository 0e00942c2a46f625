// Package cryptox seals wallet data at rest. Keys are derived from the wallet
// seed with HKDF-SHA256 and used with AES-256-GCM; sealed blobs carry their
// nonce as a prefix so a single []byte can be stored per record.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of every derived key (AES-256).
const KeySize = 32

const hkdfSalt = "nutkeeper/v1"

// Purposes passed as HKDF info so each use of the seed gets its own key.
const (
	PurposeProofs = "proofs"
	PurposeBackup = "backup"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// DeriveKey expands seed into a KeySize key bound to purpose.
func DeriveKey(seed []byte, purpose string) ([]byte, error) {
	if len(seed) == 0 {
		return nil, errors.New("empty seed")
	}
	r := hkdf.New(sha256.New, seed, []byte(hkdfSalt), []byte(purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

// Fingerprint is a short public identifier of key, safe to log or to use as
// an object name. It does not reveal the key.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// Seal marshals v to JSON and encrypts it with AES-GCM under key. The
// returned blob is nonce || ciphertext.
func Seal(v any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aead.NonceSize())
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal, decrypting blob and unmarshalling the JSON into v.
func Open(blob, key []byte, v any) error {
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}
	if len(blob) < aead.NonceSize() {
		return ErrCiphertextTooShort
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
