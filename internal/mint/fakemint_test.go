package mint

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dmitrijs2005/nutkeeper/internal/cashu"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/p2pk"
)

const testKeysetID = "009a1f293253e41e"

// fakeMint is an in-memory mint speaking enough of the v1 API for the
// client tests. It signs with real keys, so proofs verify end to end.
type fakeMint struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	keys     map[int64]*btcec.PrivateKey
	feePPK   int64
	spent    map[string]bool
	promises map[string]blindSignature
	quotes   map[string]*mintQuoteResponse
	melts    map[string]*meltQuoteResponse
	nextID   int

	unavailable atomic.Bool
	hits        atomic.Int64
}

func newFakeMint(t *testing.T) *fakeMint {
	t.Helper()
	m := &fakeMint{
		t:        t,
		keys:     map[int64]*btcec.PrivateKey{},
		spent:    map[string]bool{},
		promises: map[string]blindSignature{},
		quotes:   map[string]*mintQuoteResponse{},
		melts:    map[string]*meltQuoteResponse{},
	}
	for amt := int64(1); amt <= 1<<12; amt <<= 1 {
		h := sha256.Sum256([]byte(strconv.FormatInt(amt, 10)))
		m.keys[amt], _ = btcec.PrivKeyFromBytes(h[:])
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *fakeMint) URL() string { return m.srv.URL }

// payQuote simulates the invoice being paid.
func (m *fakeMint) payQuote(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[id].State = models.QuotePaid
}

func (m *fakeMint) fail(w http.ResponseWriter, code int, detail string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(Error{Code: code, Detail: detail})
}

func (m *fakeMint) serve(w http.ResponseWriter, r *http.Request) {
	m.hits.Add(1)
	if m.unavailable.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/v1/info":
		m.reply(w, map[string]any{"name": "fake", "version": "test/0.1", "nuts": map[string]any{"4": map[string]any{"disabled": false}, "7": map[string]any{"supported": true}}})
	case path == "/v1/keysets":
		m.reply(w, keysetsResponse{Keysets: []keysetEntry{{ID: testKeysetID, Unit: "sat", InputFeePPK: m.feePPK}}})
	case strings.HasPrefix(path, "/v1/keys/"):
		keys := map[string]string{}
		for amt, k := range m.keys {
			keys[strconv.FormatInt(amt, 10)] = cashu.PointHex(k.PubKey())
		}
		m.reply(w, keysetsResponse{Keysets: []keysetEntry{{ID: testKeysetID, Unit: "sat", Keys: keys}}})
	case path == "/v1/mint/quote/bolt11":
		var req mintQuoteRequest
		m.decode(r, &req)
		m.nextID++
		q := &mintQuoteResponse{Quote: fmt.Sprintf("q%d", m.nextID), Request: "lnbc" + strconv.FormatInt(req.Amount, 10), State: models.QuoteUnpaid, Amount: req.Amount}
		m.quotes[q.Quote] = q
		m.reply(w, q)
	case strings.HasPrefix(path, "/v1/mint/quote/bolt11/"):
		q, ok := m.quotes[strings.TrimPrefix(path, "/v1/mint/quote/bolt11/")]
		if !ok {
			m.fail(w, 0, "quote not found")
			return
		}
		m.reply(w, q)
	case path == "/v1/mint/bolt11":
		var req mintRequest
		m.decode(r, &req)
		q, ok := m.quotes[req.Quote]
		switch {
		case !ok:
			m.fail(w, 0, "quote not found")
		case q.State == models.QuoteIssued:
			m.fail(w, CodeQuoteIssued, "quote already issued")
		case q.State != models.QuotePaid:
			m.fail(w, 20001, "quote not paid")
		default:
			q.State = models.QuoteIssued
			m.reply(w, signaturesResponse{Signatures: m.sign(req.Outputs)})
		}
	case path == "/v1/swap":
		var req swapRequest
		m.decode(r, &req)
		if err := m.spend(req.Inputs); err != nil {
			m.fail(w, spendCode(err), err.Error())
			return
		}
		m.reply(w, signaturesResponse{Signatures: m.sign(req.Outputs)})
	case path == "/v1/melt/quote/bolt11":
		var req meltQuoteRequest
		m.decode(r, &req)
		m.nextID++
		amt, _ := strconv.ParseInt(strings.TrimPrefix(req.Request, "lnbc"), 10, 64)
		q := &meltQuoteResponse{Quote: fmt.Sprintf("m%d", m.nextID), Amount: amt, FeeReserve: 4, State: models.QuoteUnpaid}
		m.melts[q.Quote] = q
		m.reply(w, q)
	case path == "/v1/melt/bolt11":
		var req meltRequest
		m.decode(r, &req)
		q := m.melts[req.Quote]
		if err := m.spend(req.Inputs); err != nil {
			m.fail(w, spendCode(err), err.Error())
			return
		}
		over := req.Inputs.Amount() - q.Amount
		var change []blindSignature
		for i, amt := range cashu.SplitAmount(over) {
			if i >= len(req.Outputs) {
				break
			}
			out := req.Outputs[i]
			out.Amount = amt
			change = append(change, m.sign([]blindedMessage{out})...)
		}
		pre := "deadbeef"
		resp := *q
		resp.State, resp.Preimage, resp.Change = models.QuotePaid, &pre, change
		m.reply(w, resp)
	case path == "/v1/restore":
		var req restoreRequest
		m.decode(r, &req)
		var resp restoreResponse
		for _, o := range req.Outputs {
			if sig, ok := m.promises[o.B]; ok {
				resp.Outputs = append(resp.Outputs, o)
				resp.Signatures = append(resp.Signatures, sig)
			}
		}
		m.reply(w, resp)
	case path == "/v1/checkstate":
		var req checkStateRequest
		m.decode(r, &req)
		var resp checkStateResponse
		for _, y := range req.Ys {
			st := models.ProofUnspent
			if m.spent[y] {
				st = models.ProofSpent
			}
			resp.States = append(resp.States, proofStateEntry{Y: y, State: st})
		}
		m.reply(w, resp)
	default:
		http.NotFound(w, r)
	}
}

func (m *fakeMint) decode(r *http.Request, v any) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		m.t.Errorf("fake mint: bad request body: %v", err)
	}
}

func (m *fakeMint) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (m *fakeMint) sign(outs []blindedMessage) []blindSignature {
	sigs := make([]blindSignature, 0, len(outs))
	for _, o := range outs {
		b, err := cashu.ParsePoint(o.B)
		if err != nil {
			m.t.Errorf("fake mint: bad B_: %v", err)
			continue
		}
		sig := blindSignature{Amount: o.Amount, ID: o.ID, C: cashu.PointHex(cashu.SignBlinded(m.keys[o.Amount], b))}
		m.promises[o.B] = sig
		sigs = append(sigs, sig)
	}
	return sigs
}

// spend validates and marks inputs spent. Caller holds mu.
func (m *fakeMint) spend(inputs models.Proofs) error {
	ys := make([]string, len(inputs))
	for i, p := range inputs {
		c, err := cashu.ParsePoint(p.C)
		if err != nil || !cashu.Verify(m.keys[p.Amount], p.Secret, c) {
			return fmt.Errorf("invalid proof")
		}
		if cond, ok := p2pk.ParseSecret(p.Secret); ok && !p2pk.VerifyWitness(cond.Data, p.Secret, p.Witness) {
			return errWitness
		}
		ys[i], _ = cashu.SecretPoint(p.Secret)
		if m.spent[ys[i]] {
			return errSpent
		}
	}
	for _, y := range ys {
		m.spent[y] = true
	}
	return nil
}

var (
	errWitness = errors.New("witness missing")
	errSpent   = errors.New("token already spent")
)

func spendCode(err error) int {
	if errors.Is(err, errSpent) {
		return CodeTokenAlreadySpent
	}
	return 10003
}

// memCounters is an in-memory CounterStore.
type memCounters struct {
	mu sync.Mutex
	m  map[string]uint32
}

func newMemCounters() *memCounters { return &memCounters{m: map[string]uint32{}} }

func (c *memCounters) Reserve(_ context.Context, id string, n uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := c.m[id]
	c.m[id] = start + n
	return start, nil
}

func (c *memCounters) Advance(_ context.Context, id string, next uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next > c.m[id] {
		c.m[id] = next
	}
	return nil
}

func (c *memCounters) get(id string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[id]
}
