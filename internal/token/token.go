// Package token converts between encoded ecash tokens and the single
// canonical Token value the rest of the wallet works with.
//
// Three JSON shapes are accepted, with or without the cashuA base64 envelope:
//
//	{"token":[{"mint":"..","proofs":[..]}],"unit":"sat","memo":".."}  // v3
//	{"mint":"..","proofs":[..]}                                     // flat
//	[{"amount":1,"id":"..","secret":"..","C":".."}]                 // proofs only
//
// cashuB (v4, CBOR) tokens are decoded as well. Encode produces the v3
// cashuA form and EncodeV4 the cashuB one.
package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

const (
	PrefixV3 = "cashuA"
	PrefixV4 = "cashuB"

	uriScheme = "cashu:"
)

// Token is a bundle of proofs from one mint.
type Token struct {
	Mint   string
	Unit   string
	Memo   string
	Proofs models.Proofs
}

// Amount is the face value of every proof in the token.
func (t Token) Amount() int64 {
	return t.Proofs.Amount()
}

type wireProof struct {
	Amount  json.RawMessage `json:"amount"`
	ID      string          `json:"id"`
	Secret  string          `json:"secret"`
	C       string          `json:"C"`
	Witness json.RawMessage `json:"witness,omitempty"`
}

type wireEntry struct {
	Mint   string      `json:"mint"`
	Proofs []wireProof `json:"proofs"`
}

type wireToken struct {
	Token  []wireEntry `json:"token"`
	Mint   string      `json:"mint"`
	Proofs []wireProof `json:"proofs"`
	Unit   string      `json:"unit"`
	Memo   string      `json:"memo"`
}

// Decode parses s into a Token. Every failure wraps common.ErrDecode.
func Decode(s string) (Token, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, uriScheme)

	var payload []byte
	switch {
	case strings.HasPrefix(s, PrefixV4):
		return decodeV4(s)
	case strings.HasPrefix(s, PrefixV3):
		b, err := decodeBase64(strings.TrimPrefix(s, PrefixV3))
		if err != nil {
			return Token{}, fmt.Errorf("%w: %v", common.ErrDecode, err)
		}
		payload = b
	case strings.HasPrefix(s, "{"), strings.HasPrefix(s, "["):
		payload = []byte(s)
	default:
		return Token{}, fmt.Errorf("%w: unrecognised token format", common.ErrDecode)
	}

	return parseJSON(payload)
}

func parseJSON(payload []byte) (Token, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Token{}, fmt.Errorf("%w: empty token", common.ErrDecode)
	}

	if payload[0] == '[' {
		var wp []wireProof
		if err := json.Unmarshal(payload, &wp); err != nil {
			return Token{}, fmt.Errorf("%w: %v", common.ErrDecode, err)
		}
		proofs, err := convertProofs(wp, "")
		if err != nil {
			return Token{}, err
		}
		return Token{Unit: common.Unit, Proofs: proofs}, nil
	}

	var wt wireToken
	if err := json.Unmarshal(payload, &wt); err != nil {
		return Token{}, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}

	tok := Token{Unit: wt.Unit, Memo: wt.Memo}
	if tok.Unit == "" {
		tok.Unit = common.Unit
	}

	switch {
	case len(wt.Token) > 0:
		for _, e := range wt.Token {
			if tok.Mint != "" && e.Mint != tok.Mint {
				return Token{}, fmt.Errorf("%w: token spans multiple mints", common.ErrDecode)
			}
			tok.Mint = e.Mint
			proofs, err := convertProofs(e.Proofs, e.Mint)
			if err != nil {
				return Token{}, err
			}
			tok.Proofs = append(tok.Proofs, proofs...)
		}
	case len(wt.Proofs) > 0:
		tok.Mint = wt.Mint
		proofs, err := convertProofs(wt.Proofs, wt.Mint)
		if err != nil {
			return Token{}, err
		}
		tok.Proofs = proofs
	default:
		return Token{}, fmt.Errorf("%w: token has no proofs", common.ErrDecode)
	}

	tok.Mint = strings.TrimRight(tok.Mint, "/")
	for i := range tok.Proofs {
		tok.Proofs[i].Mint = tok.Mint
	}
	return tok, nil
}

func convertProofs(in []wireProof, mint string) (models.Proofs, error) {
	out := make(models.Proofs, 0, len(in))
	for i, w := range in {
		if w.Secret == "" || w.C == "" {
			return nil, fmt.Errorf("%w: proof %d is missing secret or signature", common.ErrDecode, i)
		}
		out = append(out, models.Proof{
			Amount:  parseAmount(w.Amount),
			ID:      w.ID,
			Secret:  w.Secret,
			C:       w.C,
			Witness: parseWitness(w.Witness),
			Mint:    mint,
		})
	}
	return out, nil
}

// parseAmount accepts a JSON number or a numeric string. Anything else
// yields 0 so the proof is dropped by models.Proofs.Filter.
func parseAmount(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			return v
		}
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return v
		}
	}
	return 0
}

func parseWitness(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}

// Encode serialises t as a cashuA v3 token.
func Encode(t Token) (string, error) {
	if t.Mint == "" {
		return "", fmt.Errorf("%w: token has no mint", common.ErrDecode)
	}
	unit := t.Unit
	if unit == "" {
		unit = common.Unit
	}

	proofs := make([]models.Proof, len(t.Proofs))
	copy(proofs, t.Proofs)

	doc := struct {
		Token []struct {
			Mint   string         `json:"mint"`
			Proofs []models.Proof `json:"proofs"`
		} `json:"token"`
		Unit string `json:"unit"`
		Memo string `json:"memo,omitempty"`
	}{Unit: unit, Memo: t.Memo}
	doc.Token = append(doc.Token, struct {
		Mint   string         `json:"mint"`
		Proofs []models.Proof `json:"proofs"`
	}{Mint: t.Mint, Proofs: proofs})

	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return PrefixV3 + base64.URLEncoding.EncodeToString(b), nil
}
