package token

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/fxamacker/cbor/v2"
)

// cashuB tokens are CBOR maps with single letter keys. Keyset ids and
// signatures travel as byte strings; DLEQ proofs are ignored.
type v4Token struct {
	Token []v4Entry `cbor:"t"`
	Mint  string    `cbor:"m"`
	Unit  string    `cbor:"u"`
	Memo  string    `cbor:"d,omitempty"`
}

type v4Entry struct {
	ID     []byte    `cbor:"i"`
	Proofs []v4Proof `cbor:"p"`
}

type v4Proof struct {
	Amount  uint64 `cbor:"a"`
	Secret  string `cbor:"s"`
	C       []byte `cbor:"c"`
	Witness string `cbor:"w,omitempty"`
}

func decodeV4(s string) (Token, error) {
	b, err := decodeBase64(strings.TrimPrefix(s, PrefixV4))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}
	var wt v4Token
	if err := cbor.Unmarshal(b, &wt); err != nil {
		return Token{}, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}
	if wt.Mint == "" {
		return Token{}, fmt.Errorf("%w: %s token has no mint", common.ErrDecode, PrefixV4)
	}

	tok := Token{Mint: strings.TrimRight(wt.Mint, "/"), Unit: wt.Unit, Memo: wt.Memo}
	if tok.Unit == "" {
		tok.Unit = common.Unit
	}
	for _, e := range wt.Token {
		id := hex.EncodeToString(e.ID)
		for i, p := range e.Proofs {
			if p.Secret == "" || len(p.C) == 0 {
				return Token{}, fmt.Errorf("%w: proof %d of keyset %s is missing secret or signature", common.ErrDecode, i, id)
			}
			var amount int64
			if p.Amount <= math.MaxInt64 {
				amount = int64(p.Amount)
			}
			tok.Proofs = append(tok.Proofs, models.Proof{
				Amount:  amount,
				ID:      id,
				Secret:  p.Secret,
				C:       hex.EncodeToString(p.C),
				Witness: p.Witness,
				Mint:    tok.Mint,
			})
		}
	}
	if len(tok.Proofs) == 0 {
		return Token{}, fmt.Errorf("%w: token has no proofs", common.ErrDecode)
	}
	return tok, nil
}

// EncodeV4 serialises t as a cashuB token, grouping proofs by keyset in
// first-seen order.
func EncodeV4(t Token) (string, error) {
	if t.Mint == "" {
		return "", fmt.Errorf("%w: token has no mint", common.ErrDecode)
	}
	wt := v4Token{Mint: t.Mint, Unit: t.Unit, Memo: t.Memo}
	if wt.Unit == "" {
		wt.Unit = common.Unit
	}

	index := map[string]int{}
	for _, p := range t.Proofs {
		if p.Amount < 0 {
			return "", fmt.Errorf("%w: negative amount", common.ErrDecode)
		}
		c, err := hex.DecodeString(p.C)
		if err != nil {
			return "", fmt.Errorf("%w: signature is not hex: %v", common.ErrDecode, err)
		}
		i, ok := index[p.ID]
		if !ok {
			id, err := hex.DecodeString(p.ID)
			if err != nil {
				return "", fmt.Errorf("%w: keyset id is not hex: %v", common.ErrDecode, err)
			}
			i = len(wt.Token)
			index[p.ID] = i
			wt.Token = append(wt.Token, v4Entry{ID: id})
		}
		wt.Token[i].Proofs = append(wt.Token[i].Proofs, v4Proof{
			Amount:  uint64(p.Amount),
			Secret:  p.Secret,
			C:       c,
			Witness: p.Witness,
		})
	}

	b, err := cbor.Marshal(wt)
	if err != nil {
		return "", err
	}
	return PrefixV4 + base64.RawURLEncoding.EncodeToString(b), nil
}
