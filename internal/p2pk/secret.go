// Package p2pk reads and writes NUT-11 pay-to-public-key spending
// conditions: it parses locked secrets, decides whether the wallet can
// unlock them, builds locked secrets for sends and signs witnesses.
package p2pk

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
)

const Kind = "P2PK"

// Condition is the decoded spending condition of a locked secret.
// A zero Locktime means the lock never expires.
type Condition struct {
	Nonce    string
	Data     string
	Locktime time.Time
	Refund   []string
	Pubkeys  []string
	NSigs    int
}

type secretBody struct {
	Nonce string              `json:"nonce"`
	Data  string              `json:"data"`
	Tags  [][]json.RawMessage `json:"tags,omitempty"`
}

// ParseSecret decodes a P2PK secret. Anything that is not a well-formed
// P2PK secret reports ok=false and is treated as unlocked by callers.
func ParseSecret(secret string) (Condition, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(secret), &parts); err != nil || len(parts) != 2 {
		return Condition{}, false
	}

	var kind string
	if err := json.Unmarshal(parts[0], &kind); err != nil || kind != Kind {
		return Condition{}, false
	}

	var body secretBody
	if err := json.Unmarshal(parts[1], &body); err != nil || body.Data == "" {
		return Condition{}, false
	}

	c := Condition{Nonce: body.Nonce, Data: body.Data}
	// only the first tag of each name counts, even when its value is unusable
	seen := map[string]bool{}
	for _, raw := range body.Tags {
		tag := tagStrings(raw)
		if len(tag) == 0 || seen[tag[0]] {
			continue
		}
		seen[tag[0]] = true
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "locktime":
			if ts, err := strconv.ParseInt(tag[1], 10, 64); err == nil {
				c.Locktime = time.Unix(ts, 0)
			}
		case "refund":
			c.Refund = tag[1:]
		case "pubkeys":
			c.Pubkeys = tag[1:]
		case "n_sigs":
			if n, err := strconv.Atoi(tag[1]); err == nil {
				c.NSigs = n
			}
		}
	}
	return c, true
}

// tagStrings flattens a tag, accepting numbers where strings are expected.
func tagStrings(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, strings.TrimSpace(string(r)))
	}
	return out
}

// NewLockSecret builds a secret locking to pubkey with a random nonce.
func NewLockSecret(pubkey string) (string, error) {
	pubkey, err := NormalizePubkey(pubkey)
	if err != nil {
		return "", err
	}
	nonce, err := common.MakeRandHexString(32)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal([]any{Kind, secretBody{Nonce: nonce, Data: pubkey}})
	if err != nil {
		return "", fmt.Errorf("encode secret: %w", err)
	}
	return string(b), nil
}
