package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/dbx"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/mint"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/p2pk"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories/sqlrepo"
	"github.com/stretchr/testify/require"
)

const (
	mintA    = "https://a.example.com"
	mintB    = "https://b.example.com"
	keysetID = "009a1f293253e41e"
	phrase   = "half depart obvious quality work element tank gorilla view sugar picture humble"
)

var errOffline = fmt.Errorf("%w: connection refused", common.ErrNetworkUnavailable)

func newTestStore(t *testing.T) repositories.Store {
	t.Helper()
	s, err := sqlrepo.Open(context.Background(), dbx.SQLite, filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func proof(amount int64, secret string) models.Proof {
	return models.Proof{Amount: amount, ID: keysetID, Secret: secret, C: "02c0ffee"}
}

// fakeClient is an in-memory mint. Only the calls the services make are
// implemented; anything else panics through the embedded nil interface.
type fakeClient struct {
	mint.Client
	url string

	mu      sync.Mutex
	seq     int
	quotes  map[string]models.MintQuote
	spent   map[string]bool
	keysets []models.Keyset
	// restorable maps keyset id and derivation index to a proof.
	restorable map[string]map[uint32]models.Proof

	checkQuoteErr error
	mintErr       error
	receiveErr    error
	statesErr     error
	keysetsErr    error
	restoreErr    map[string]error
	meltState     models.QuoteState
	meltAmount    int64

	restoreCalls map[string]int
	statesCalls  int
}

func newFakeClient(url string) *fakeClient {
	return &fakeClient{
		url:          url,
		quotes:       map[string]models.MintQuote{},
		spent:        map[string]bool{},
		keysets:      []models.Keyset{{ID: keysetID, Unit: common.Unit, Active: true}},
		restorable:   map[string]map[uint32]models.Proof{},
		restoreErr:   map[string]error{},
		restoreCalls: map[string]int{},
		meltState:    models.QuotePaid,
	}
}

func (f *fakeClient) URL() string { return f.url }

// issue creates one proof of amount with a unique secret. Callers hold mu.
func (f *fakeClient) issue(amount int64) models.Proof {
	f.seq++
	p := proof(amount, fmt.Sprintf("%s/secret-%d", f.url, f.seq))
	p.Mint = f.url
	return p
}

// fund issues proofs without going through a quote.
func (f *fakeClient) fund(amounts ...int64) models.Proofs {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out models.Proofs
	for _, a := range amounts {
		out = append(out, f.issue(a))
	}
	return out
}

func (f *fakeClient) markSpent(ps models.Proofs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range ps {
		f.spent[p.Secret] = true
	}
}

func (f *fakeClient) setQuoteState(id string, s models.QuoteState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quotes[id]
	q.State = s
	f.quotes[id] = q
}

func (f *fakeClient) GetInfo(ctx context.Context) (models.MintInfo, error) {
	return models.MintInfo{Name: "fake " + f.url}, nil
}

func (f *fakeClient) GetKeysets(ctx context.Context) ([]models.Keyset, error) {
	if f.keysetsErr != nil {
		return nil, f.keysetsErr
	}
	return f.keysets, nil
}

func (f *fakeClient) CreateMintQuote(ctx context.Context, amount int64) (models.MintQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	q := models.MintQuote{
		ID:      fmt.Sprintf("quote-%d", f.seq),
		MintURL: f.url,
		Amount:  amount,
		Request: fmt.Sprintf("lnbc%d", amount),
		State:   models.QuoteUnpaid,
	}
	f.quotes[q.ID] = q
	return q, nil
}

func (f *fakeClient) CheckMintQuote(ctx context.Context, id string) (models.MintQuote, error) {
	if f.checkQuoteErr != nil {
		return models.MintQuote{}, f.checkQuoteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[id]
	if !ok {
		return models.MintQuote{}, &mint.Error{Code: 20001, Detail: "quote not found"}
	}
	return q, nil
}

func (f *fakeClient) MintProofs(ctx context.Context, amount int64, id string) (models.Proofs, error) {
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quotes[id]
	switch q.State {
	case models.QuoteIssued:
		return nil, common.ErrQuoteIssued
	case models.QuotePaid:
	default:
		return nil, &mint.Error{Code: 20001, Detail: "quote not paid"}
	}
	q.State = models.QuoteIssued
	f.quotes[id] = q
	return models.Proofs{f.issue(amount)}, nil
}

// take picks proofs largest first until amount is covered.
func take(proofs models.Proofs, amount int64) (selected, rest models.Proofs) {
	sorted := append(models.Proofs(nil), proofs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	var total int64
	for _, p := range sorted {
		if total < amount {
			selected = append(selected, p)
			total += p.Amount
			continue
		}
		rest = append(rest, p)
	}
	return selected, rest
}

func (f *fakeClient) checkUnspent(ps models.Proofs) error {
	for _, p := range ps {
		if f.spent[p.Secret] {
			return fmt.Errorf("%w: %s", common.ErrAlreadySpent, p.Secret)
		}
	}
	return nil
}

func (f *fakeClient) Send(ctx context.Context, amount int64, proofs models.Proofs, lockTo string) (models.Proofs, models.Proofs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	selected, rest := take(proofs, amount)
	if selected.Amount() < amount {
		return nil, nil, common.ErrInsufficientBalance
	}
	if err := f.checkUnspent(selected); err != nil {
		return nil, nil, err
	}
	for _, p := range selected {
		f.spent[p.Secret] = true
	}

	send := f.issue(amount)
	if lockTo != "" {
		secret, err := p2pk.NewLockSecret(lockTo)
		if err != nil {
			return nil, nil, err
		}
		send.Secret = secret
	}
	keep := rest
	if change := selected.Amount() - amount; change > 0 {
		keep = append(keep, f.issue(change))
	}
	return models.Proofs{send}, keep, nil
}

func (f *fakeClient) Receive(ctx context.Context, proofs models.Proofs) (models.Proofs, error) {
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkUnspent(proofs); err != nil {
		return nil, err
	}
	for _, p := range proofs {
		c, locked := p2pk.ParseSecret(p.Secret)
		if !locked {
			continue
		}
		ok := false
		for _, pk := range append(append([]string{c.Data}, c.Pubkeys...), c.Refund...) {
			if p2pk.VerifyWitness(pk, p.Secret, p.Witness) {
				ok = true
				break
			}
		}
		if !ok {
			return nil, &mint.Error{Code: 10003, Detail: "witness missing or invalid"}
		}
	}
	for _, p := range proofs {
		f.spent[p.Secret] = true
	}
	return models.Proofs{f.issue(proofs.Amount())}, nil
}

func (f *fakeClient) CreateMeltQuote(ctx context.Context, invoice string) (models.MeltQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return models.MeltQuote{
		ID:         fmt.Sprintf("melt-%d", f.seq),
		MintURL:    f.url,
		Request:    invoice,
		Amount:     f.meltAmount,
		FeeReserve: 2,
		State:      models.QuoteUnpaid,
	}, nil
}

// MeltProofs charges a fee of 1 and returns the rest of the reserve.
func (f *fakeClient) MeltProofs(ctx context.Context, q models.MeltQuote, proofs models.Proofs) (mint.MeltResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meltState == models.QuoteUnpaid {
		return mint.MeltResult{State: models.QuoteUnpaid, Keep: proofs}, nil
	}
	selected, rest := take(proofs, q.Total())
	if selected.Amount() < q.Total() {
		return mint.MeltResult{}, common.ErrInsufficientBalance
	}
	if err := f.checkUnspent(selected); err != nil {
		return mint.MeltResult{}, err
	}
	for _, p := range selected {
		f.spent[p.Secret] = true
	}
	res := mint.MeltResult{State: f.meltState, Preimage: "00ff", Keep: rest}
	if over := selected.Amount() - q.Amount - 1; over > 0 {
		res.Change = models.Proofs{f.issue(over)}
	}
	return res, nil
}

func (f *fakeClient) Restore(ctx context.Context, ks string, start, count uint32) (models.Proofs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restoreCalls[ks]++
	if err := f.restoreErr[ks]; err != nil {
		return nil, err
	}
	var out models.Proofs
	for i := start; i < start+count; i++ {
		if p, ok := f.restorable[ks][i]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeClient) CheckProofsStates(ctx context.Context, proofs models.Proofs) ([]models.ProofState, error) {
	if f.statesErr != nil {
		return nil, f.statesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statesCalls++
	out := make([]models.ProofState, len(proofs))
	for i, p := range proofs {
		out[i] = models.ProofState{Y: p.Secret, State: models.ProofUnspent}
		if f.spent[p.Secret] {
			out[i].State = models.ProofSpent
		}
	}
	return out, nil
}

// place makes a proof restorable at index idx of keyset ks.
func (f *fakeClient) place(ks string, idx uint32, amount int64) models.Proof {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restorable[ks] == nil {
		f.restorable[ks] = map[uint32]models.Proof{}
	}
	p := proof(amount, fmt.Sprintf("%s/%s/%d", f.url, ks, idx))
	p.ID = ks
	f.restorable[ks][idx] = p
	return p
}

type fakePool struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	seeds   [][]byte
}

func newFakePool(clients ...*fakeClient) *fakePool {
	p := &fakePool{clients: map[string]*fakeClient{}}
	for _, c := range clients {
		p.clients[c.url] = c
	}
	return p
}

func (p *fakePool) Dial(url string) (mint.Client, error) {
	u, err := mint.NormalizeURL(url)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[u]
	if !ok {
		return nil, errors.New("no such mint")
	}
	return c, nil
}

func (p *fakePool) SetSeed(seed []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeds = append(p.seeds, seed)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Notify(ctx context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) list() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type harness struct {
	w      *Wallet
	store  repositories.Store
	pool   *fakePool
	a      *fakeClient
	b      *fakeClient
	clock  *testClock
	events *eventRecorder
}

func newHarness(t *testing.T, encrypt bool) *harness {
	t.Helper()
	h := &harness{
		store:  newTestStore(t),
		a:      newFakeClient(mintA),
		b:      newFakeClient(mintB),
		clock:  newTestClock(),
		events: &eventRecorder{},
	}
	h.pool = newFakePool(h.a, h.b)
	h.w = NewWallet(Config{
		Store:         h.store,
		Pool:          h.pool,
		Logger:        logging.Discard(),
		Clock:         h.clock.Now,
		Notifier:      h.events,
		EncryptProofs: encrypt,
		Restore:       func(seed []byte) (mint.Dialer, error) { return h.pool, nil },
	})
	return h
}

// withMint registers url and funds it with amounts.
func (h *harness) withMint(t *testing.T, c *fakeClient, amounts ...int64) models.Proofs {
	t.Helper()
	ctx := context.Background()
	_, err := h.w.AddMint(ctx, c.url)
	require.NoError(t, err)
	if len(amounts) == 0 {
		return nil
	}
	ps := c.fund(amounts...)
	require.NoError(t, h.w.proofs.Update(ctx, c.url, func(cur models.Proofs) (models.Proofs, error) {
		return append(cur, ps...), nil
	}))
	return ps
}

func (h *harness) held(t *testing.T, mintURL string) models.Proofs {
	t.Helper()
	ps, err := h.w.proofs.Get(context.Background(), mintURL)
	require.NoError(t, err)
	return ps
}
