package models

import "time"

// P2PKKey is a user-held keypair that locked tokens can be sent to.
// Keys are hex encoded; the public key is "02" followed by the x-only key.
type P2PKKey struct {
	PublicKey  string    `json:"publicKey"`
	PrivateKey string    `json:"privateKey"`
	Used       bool      `json:"used"`
	UsedCount  int       `json:"usedCount"`
	CreatedAt  time.Time `json:"createdAt"`
}
