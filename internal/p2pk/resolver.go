package p2pk

import (
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/token"
)

// Lock is the outcome of resolving one secret. An empty Key means the proof
// is not locked. PrivateKey is set when the wallet holds the key for Key.
type Lock struct {
	Key        string
	PrivateKey string
}

func (l Lock) Locked() bool     { return l.Key != "" }
func (l Lock) Unlockable() bool { return l.PrivateKey != "" }

// Resolver answers lock questions against a fixed set of held keys.
type Resolver struct {
	held map[string]string
	now  time.Time
}

// NewResolver indexes keys by public key and evaluates locktimes at now.
func NewResolver(keys []models.P2PKKey, now time.Time) *Resolver {
	held := make(map[string]string, len(keys))
	for _, k := range keys {
		held[k.PublicKey] = k.PrivateKey
	}
	return &Resolver{held: held, now: now}
}

func (r *Resolver) lock(pub string) Lock {
	return Lock{Key: pub, PrivateKey: r.held[pub]}
}

// Resolve works out which key a secret is currently locked to.
//
// While the locktime is in the future (or absent) the primary key owns the
// proof; with multisig tags any single held key from the pubkeys list is
// accepted, without checking n_sigs. Once the locktime has passed the refund
// keys take over, reporting the first refund key when none is held. An
// expired lock without refund keys stays on the primary key.
func (r *Resolver) Resolve(secret string) Lock {
	c, ok := ParseSecret(secret)
	if !ok {
		return Lock{}
	}

	if c.Locktime.IsZero() || c.Locktime.After(r.now) {
		if c.NSigs >= 1 {
			for _, pk := range c.Pubkeys {
				if _, ok := r.held[pk]; ok {
					return r.lock(pk)
				}
			}
		}
		return r.lock(c.Data)
	}

	if len(c.Refund) > 0 {
		for _, pk := range c.Refund {
			if _, ok := r.held[pk]; ok {
				return r.lock(pk)
			}
		}
		return r.lock(c.Refund[0])
	}
	return r.lock(c.Data)
}

// IsLocked reports whether any proof resolves to a lock key.
func (r *Resolver) IsLocked(proofs models.Proofs) bool {
	for _, p := range proofs {
		if r.Resolve(p.Secret).Locked() {
			return true
		}
	}
	return false
}

// IsLockedToUs reports whether any proof is locked to a held key.
func (r *Resolver) IsLockedToUs(proofs models.Proofs) bool {
	for _, p := range proofs {
		if r.Resolve(p.Secret).Unlockable() {
			return true
		}
	}
	return false
}

// Unmatched returns the lock keys of proofs the wallet cannot unlock.
func (r *Resolver) Unmatched(proofs models.Proofs) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, p := range proofs {
		l := r.Resolve(p.Secret)
		if !l.Locked() || l.Unlockable() {
			continue
		}
		if _, ok := seen[l.Key]; ok {
			continue
		}
		seen[l.Key] = struct{}{}
		out = append(out, l.Key)
	}
	return out
}

// KeyFor returns the private key that unlocks tok, if the token is locked
// and the wallet holds a matching key.
func (r *Resolver) KeyFor(tok token.Token) (string, bool) {
	for _, p := range tok.Proofs {
		if l := r.Resolve(p.Secret); l.Unlockable() {
			return l.PrivateKey, true
		}
	}
	return "", false
}
