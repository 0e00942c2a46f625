// Package models defines the wallet's domain records: proofs, balances,
// quotes, pending tokens, transactions and P2PK keys.
package models

// Proof is a single ecash note issued by a mint. Mint is not part of the wire
// form; it is filled in from the storage key or the enclosing token.
type Proof struct {
	Amount  int64  `json:"amount"`
	ID      string `json:"id"`
	Secret  string `json:"secret"`
	C       string `json:"C"`
	Witness string `json:"witness,omitempty"`
	Mint    string `json:"-"`
}

// Valid reports whether the proof carries a usable amount.
func (p Proof) Valid() bool {
	return p.Amount > 0
}

type Proofs []Proof

// Amount sums the proof amounts.
func (ps Proofs) Amount() int64 {
	var total int64
	for _, p := range ps {
		total += p.Amount
	}
	return total
}

// Filter drops proofs without a positive amount.
func (ps Proofs) Filter() Proofs {
	out := make(Proofs, 0, len(ps))
	for _, p := range ps {
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

// Secrets returns the set of secrets in ps.
func (ps Proofs) Secrets() map[string]struct{} {
	set := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		set[p.Secret] = struct{}{}
	}
	return set
}

// Without returns the proofs whose secret is not in exclude.
func (ps Proofs) Without(exclude map[string]struct{}) Proofs {
	out := make(Proofs, 0, len(ps))
	for _, p := range ps {
		if _, ok := exclude[p.Secret]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// Dedup keeps the first proof for each secret.
func (ps Proofs) Dedup() Proofs {
	seen := make(map[string]struct{}, len(ps))
	out := make(Proofs, 0, len(ps))
	for _, p := range ps {
		if _, ok := seen[p.Secret]; ok {
			continue
		}
		seen[p.Secret] = struct{}{}
		out = append(out, p)
	}
	return out
}

// WithMint returns a copy of ps with Mint set on every proof.
func (ps Proofs) WithMint(mint string) Proofs {
	out := make(Proofs, len(ps))
	for i, p := range ps {
		p.Mint = mint
		out[i] = p
	}
	return out
}

// ProofStateKind is the NUT-07 spent state of a proof.
type ProofStateKind string

const (
	ProofUnspent ProofStateKind = "UNSPENT"
	ProofPending ProofStateKind = "PENDING"
	ProofSpent   ProofStateKind = "SPENT"
)

type ProofState struct {
	Y       string         `json:"Y"`
	State   ProofStateKind `json:"state"`
	Witness string         `json:"witness,omitempty"`
}

// AllSpent is true only when every state is SPENT and there is at least one.
func AllSpent(states []ProofState) bool {
	if len(states) == 0 {
		return false
	}
	for _, s := range states {
		if s.State != ProofSpent {
			return false
		}
	}
	return true
}
