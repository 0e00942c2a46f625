package mint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/cashu"
	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/netx"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// Options configure HTTP clients. Zero values pick sensible defaults.
type Options struct {
	HTTP     *http.Client
	Counters CounterStore
	Limiter  *rate.Limiter
	Logger   logging.Logger

	// BreakerFailures consecutive transport failures open the breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	Unit string
}

func (o Options) withDefaults() Options {
	if o.HTTP == nil {
		o.HTTP = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = defaultBreakerFailures
	}
	if o.BreakerTimeout == 0 {
		o.BreakerTimeout = defaultBreakerTimeout
	}
	if o.Unit == "" {
		o.Unit = common.Unit
	}
	return o
}

// HTTPClient implements Client against the v1 REST API.
type HTTPClient struct {
	url     string
	opts    Options
	deriver func() *cashu.Deriver
	cb      *gobreaker.CircuitBreaker

	mu      sync.Mutex
	keysets map[string]models.Keyset
}

// NewHTTPClient builds a client for mintURL. With a nil deriver outputs use
// random secrets and Restore is unavailable.
func NewHTTPClient(mintURL string, deriver *cashu.Deriver, opts Options) *HTTPClient {
	return newHTTPClient(mintURL, func() *cashu.Deriver { return deriver }, opts)
}

func newHTTPClient(mintURL string, deriver func() *cashu.Deriver, opts Options) *HTTPClient {
	opts = opts.withDefaults()
	return &HTTPClient{
		url:     mintURL,
		opts:    opts,
		deriver: deriver,
		cb:      newCircuitBreaker(mintURL, opts),
		keysets: map[string]models.Keyset{},
	}
}

func newCircuitBreaker(name string, opts Options) *gobreaker.CircuitBreaker {
	log := opts.Logger.With("mint", name)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := context.Background()
			if to == gobreaker.StateOpen {
				log.Warn(ctx, "mint seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				log.Info(ctx, "checking mint status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				log.Info(ctx, "mint seems ok, restart allowing requests")
			}
		},
	})
}

func (c *HTTPClient) URL() string { return c.url }

// do runs one request through the limiter and breaker. Only transport
// failures and 5xx responses count against the breaker.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reqErr error
	_, err := c.cb.Execute(func() (interface{}, error) {
		err := netx.DoJSON(ctx, c.opts.HTTP, method, c.url+path, in, out)
		var se *netx.StatusError
		switch {
		case err == nil:
		case errors.As(err, &se) && !se.Temporary(),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			reqErr = err
		default:
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return classify(err)
	}
	return classify(reqErr)
}

func (c *HTTPClient) GetInfo(ctx context.Context) (models.MintInfo, error) {
	var info models.MintInfo
	if err := c.do(ctx, http.MethodGet, "/v1/info", nil, &info); err != nil {
		return models.MintInfo{}, fmt.Errorf("failed to get mint info: %w", err)
	}
	return info, nil
}

func (c *HTTPClient) GetKeysets(ctx context.Context) ([]models.Keyset, error) {
	var resp keysetsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/keysets", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list keysets: %w", err)
	}

	out := make([]models.Keyset, 0, len(resp.Keysets))
	for _, e := range resp.Keysets {
		if e.Unit != c.opts.Unit {
			continue
		}
		listed := e.model()
		ks, err := c.keyset(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		ks.Active = listed.Active
		ks.InputFeePPK = listed.InputFeePPK
		c.remember(ks)
		out = append(out, ks)
	}
	return out, nil
}

func (c *HTTPClient) remember(ks models.Keyset) {
	c.mu.Lock()
	c.keysets[ks.ID] = ks
	c.mu.Unlock()
}

// keyset returns a keyset with its public keys, fetching them once.
func (c *HTTPClient) keyset(ctx context.Context, id string) (models.Keyset, error) {
	c.mu.Lock()
	ks, ok := c.keysets[id]
	c.mu.Unlock()
	if ok && len(ks.Keys) > 0 {
		return ks, nil
	}

	var resp keysetsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/keys/"+id, nil, &resp); err != nil {
		return models.Keyset{}, fmt.Errorf("failed to get keys for %s: %w", id, err)
	}
	for _, e := range resp.Keysets {
		if e.ID == id {
			fetched := e.model()
			if ok {
				fetched.Active = ks.Active
				fetched.InputFeePPK = ks.InputFeePPK
			}
			c.remember(fetched)
			return fetched, nil
		}
	}
	return models.Keyset{}, fmt.Errorf("mint did not return keyset %s", id)
}

// activeKeyset picks the cheapest active keyset for the wallet unit.
func (c *HTTPClient) activeKeyset(ctx context.Context) (models.Keyset, error) {
	all, err := c.GetKeysets(ctx)
	if err != nil {
		return models.Keyset{}, err
	}
	var best *models.Keyset
	for i := range all {
		ks := &all[i]
		if !ks.Active {
			continue
		}
		if best == nil || ks.InputFeePPK < best.InputFeePPK {
			best = ks
		}
	}
	if best == nil {
		return models.Keyset{}, fmt.Errorf("mint %s has no active %s keyset", c.url, c.opts.Unit)
	}
	return *best, nil
}

// inputFee is the NUT-02 fee for spending proofs, summed per keyset.
func (c *HTTPClient) inputFee(proofs models.Proofs) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ppk int64
	for _, p := range proofs {
		ppk += c.keysets[p.ID].InputFeePPK
	}
	return (ppk + 999) / 1000
}

// selectProofs takes the largest proofs first until they cover amount plus
// the fee for spending them.
func (c *HTTPClient) selectProofs(proofs models.Proofs, amount int64) (selected, rest models.Proofs, err error) {
	sorted := append(models.Proofs(nil), proofs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })

	var total int64
	for i, p := range sorted {
		selected = append(selected, p)
		total += p.Amount
		if total >= amount+c.inputFee(selected) {
			return selected, sorted[i+1:], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: need %d, have %d", common.ErrInsufficientBalance, amount+c.inputFee(sorted), total)
}

func (c *HTTPClient) swap(ctx context.Context, inputs models.Proofs, outs []output) ([]blindSignature, error) {
	var resp signaturesResponse
	req := swapRequest{Inputs: inputs, Outputs: messages(outs)}
	if err := c.do(ctx, http.MethodPost, "/v1/swap", req, &resp); err != nil {
		return nil, err
	}
	return resp.Signatures, nil
}

func (c *HTTPClient) CreateMintQuote(ctx context.Context, amount int64) (models.MintQuote, error) {
	var resp mintQuoteResponse
	req := mintQuoteRequest{Amount: amount, Unit: c.opts.Unit}
	if err := c.do(ctx, http.MethodPost, "/v1/mint/quote/bolt11", req, &resp); err != nil {
		return models.MintQuote{}, fmt.Errorf("failed to create mint quote: %w", err)
	}
	q := c.mintQuote(resp)
	q.Amount = amount
	return q, nil
}

func (c *HTTPClient) CheckMintQuote(ctx context.Context, quoteID string) (models.MintQuote, error) {
	var resp mintQuoteResponse
	if err := c.do(ctx, http.MethodGet, "/v1/mint/quote/bolt11/"+quoteID, nil, &resp); err != nil {
		return models.MintQuote{}, fmt.Errorf("failed to check mint quote: %w", err)
	}
	return c.mintQuote(resp), nil
}

func (c *HTTPClient) mintQuote(r mintQuoteResponse) models.MintQuote {
	q := models.MintQuote{
		ID:        r.Quote,
		MintURL:   c.url,
		Amount:    r.Amount,
		Request:   r.Request,
		State:     quoteState(r.State, r.Paid),
		CreatedAt: time.Now(),
	}
	if r.Expiry != nil && *r.Expiry > 0 {
		q.ExpiresAt = time.Unix(*r.Expiry, 0)
	}
	return q
}

func (c *HTTPClient) MintProofs(ctx context.Context, amount int64, quoteID string) (models.Proofs, error) {
	ks, err := c.activeKeyset(ctx)
	if err != nil {
		return nil, err
	}
	outs, err := c.newOutputs(ctx, ks.ID, cashu.SplitAmount(amount), "")
	if err != nil {
		return nil, err
	}

	var resp signaturesResponse
	req := mintRequest{Quote: quoteID, Outputs: messages(outs)}
	if err := c.do(ctx, http.MethodPost, "/v1/mint/bolt11", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to mint: %w", err)
	}
	return c.unblind(ctx, outs, resp.Signatures)
}

func (c *HTTPClient) Send(ctx context.Context, amount int64, proofs models.Proofs, lockTo string) (models.Proofs, models.Proofs, error) {
	if amount <= 0 {
		return nil, nil, fmt.Errorf("amount must be positive")
	}
	ks, err := c.activeKeyset(ctx)
	if err != nil {
		return nil, nil, err
	}
	selected, rest, err := c.selectProofs(proofs, amount)
	if err != nil {
		return nil, nil, err
	}
	change := selected.Amount() - amount - c.inputFee(selected)

	keepOuts, err := c.newOutputs(ctx, ks.ID, cashu.SplitAmount(change), "")
	if err != nil {
		return nil, nil, err
	}
	sendOuts, err := c.newOutputs(ctx, ks.ID, cashu.SplitAmount(amount), lockTo)
	if err != nil {
		return nil, nil, err
	}

	sigs, err := c.swap(ctx, selected, append(append([]output(nil), keepOuts...), sendOuts...))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split proofs: %w", err)
	}
	if len(sigs) != len(keepOuts)+len(sendOuts) {
		return nil, nil, fmt.Errorf("mint returned %d signatures for %d outputs", len(sigs), len(keepOuts)+len(sendOuts))
	}

	keep, err := c.unblind(ctx, keepOuts, sigs[:len(keepOuts)])
	if err != nil {
		return nil, nil, err
	}
	send, err := c.unblind(ctx, sendOuts, sigs[len(keepOuts):])
	if err != nil {
		return nil, nil, err
	}
	return send, append(rest, keep...), nil
}

func (c *HTTPClient) Receive(ctx context.Context, proofs models.Proofs) (models.Proofs, error) {
	ks, err := c.activeKeyset(ctx)
	if err != nil {
		return nil, err
	}
	// input keysets may be inactive ones we have not listed yet
	for _, id := range keysetIDs(proofs) {
		if _, err := c.keyset(ctx, id); err != nil {
			return nil, err
		}
	}

	amount := proofs.Amount() - c.inputFee(proofs)
	if amount <= 0 {
		return nil, fmt.Errorf("token value does not cover the mint fee")
	}
	outs, err := c.newOutputs(ctx, ks.ID, cashu.SplitAmount(amount), "")
	if err != nil {
		return nil, err
	}
	sigs, err := c.swap(ctx, proofs, outs)
	if err != nil {
		return nil, fmt.Errorf("failed to receive token: %w", err)
	}
	return c.unblind(ctx, outs, sigs)
}

func (c *HTTPClient) CreateMeltQuote(ctx context.Context, invoice string) (models.MeltQuote, error) {
	var resp meltQuoteResponse
	req := meltQuoteRequest{Request: invoice, Unit: c.opts.Unit}
	if err := c.do(ctx, http.MethodPost, "/v1/melt/quote/bolt11", req, &resp); err != nil {
		return models.MeltQuote{}, fmt.Errorf("failed to create melt quote: %w", err)
	}
	q := models.MeltQuote{
		ID:         resp.Quote,
		MintURL:    c.url,
		Request:    invoice,
		Amount:     resp.Amount,
		FeeReserve: resp.FeeReserve,
		State:      quoteState(resp.State, resp.Paid),
	}
	if resp.Expiry != nil && *resp.Expiry > 0 {
		q.ExpiresAt = time.Unix(*resp.Expiry, 0)
	}
	return q, nil
}

func (c *HTTPClient) MeltProofs(ctx context.Context, quote models.MeltQuote, proofs models.Proofs) (MeltResult, error) {
	ks, err := c.activeKeyset(ctx)
	if err != nil {
		return MeltResult{}, err
	}
	selected, rest, err := c.selectProofs(proofs, quote.Total())
	if err != nil {
		return MeltResult{}, err
	}

	// NUT-08: blank outputs let the mint return unused fee reserve
	var blanks []output
	if over := selected.Amount() - quote.Amount - c.inputFee(selected); over > 0 {
		blanks, err = c.newOutputs(ctx, ks.ID, blankAmounts(over), "")
		if err != nil {
			return MeltResult{}, err
		}
	}

	var resp meltQuoteResponse
	req := meltRequest{Quote: quote.ID, Inputs: selected, Outputs: messages(blanks)}
	if err := c.do(ctx, http.MethodPost, "/v1/melt/bolt11", req, &resp); err != nil {
		return MeltResult{}, fmt.Errorf("failed to melt: %w", err)
	}

	res := MeltResult{State: quoteState(resp.State, resp.Paid)}
	if resp.Preimage != nil {
		res.Preimage = *resp.Preimage
	}
	if res.State == models.QuoteUnpaid {
		// payment failed, the inputs were not spent
		res.Keep = proofs
		return res, nil
	}
	res.Keep = rest

	if n := len(resp.Change); n > 0 {
		if n > len(blanks) {
			return res, fmt.Errorf("mint returned %d change signatures for %d blank outputs", n, len(blanks))
		}
		change, err := c.unblind(ctx, blanks[:n], resp.Change)
		if err != nil {
			return res, err
		}
		res.Change = change
	}
	return res, nil
}

func (c *HTTPClient) Restore(ctx context.Context, keysetID string, start, count uint32) (models.Proofs, error) {
	d := c.deriver()
	if d == nil {
		return nil, common.ErrNoSeed
	}
	if _, err := c.keyset(ctx, keysetID); err != nil {
		return nil, err
	}

	outs, err := derivedOutputs(d, keysetID, start, restoreAmounts(count))
	if err != nil {
		return nil, err
	}

	var resp restoreResponse
	if err := c.do(ctx, http.MethodPost, "/v1/restore", restoreRequest{Outputs: messages(outs)}, &resp); err != nil {
		return nil, fmt.Errorf("failed to restore: %w", err)
	}
	sigs := resp.Signatures
	if len(sigs) == 0 {
		sigs = resp.Promises
	}
	if len(sigs) != len(resp.Outputs) {
		return nil, fmt.Errorf("restore returned %d outputs and %d signatures", len(resp.Outputs), len(sigs))
	}

	byB := make(map[string]int, len(outs))
	for i, o := range outs {
		byB[o.msg.B] = i
	}

	var (
		matched []output
		signed  []blindSignature
		highest = -1
	)
	for i, m := range resp.Outputs {
		idx, ok := byB[m.B]
		if !ok {
			continue
		}
		matched = append(matched, outs[idx])
		signed = append(signed, sigs[i])
		if idx > highest {
			highest = idx
		}
	}
	if highest < 0 {
		return nil, nil
	}

	proofs, err := c.unblind(ctx, matched, signed)
	if err != nil {
		return nil, err
	}
	if c.opts.Counters != nil {
		if err := c.opts.Counters.Advance(ctx, keysetID, start+uint32(highest)+1); err != nil {
			return nil, fmt.Errorf("failed to advance counter: %w", err)
		}
	}
	return proofs, nil
}

func (c *HTTPClient) CheckProofsStates(ctx context.Context, proofs models.Proofs) ([]models.ProofState, error) {
	ys := make([]string, len(proofs))
	for i, p := range proofs {
		y, err := cashu.SecretPoint(p.Secret)
		if err != nil {
			return nil, err
		}
		ys[i] = y
	}

	var resp checkStateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/checkstate", checkStateRequest{Ys: ys}, &resp); err != nil {
		return nil, fmt.Errorf("failed to check proof states: %w", err)
	}
	if len(resp.States) != len(ys) {
		return nil, fmt.Errorf("mint returned %d states for %d proofs", len(resp.States), len(ys))
	}

	byY := make(map[string]proofStateEntry, len(resp.States))
	for _, s := range resp.States {
		byY[s.Y] = s
	}
	out := make([]models.ProofState, len(ys))
	for i, y := range ys {
		s, ok := byY[y]
		if !ok {
			s = resp.States[i]
		}
		out[i] = models.ProofState{Y: y, State: s.State, Witness: s.Witness}
	}
	return out, nil
}

func keysetIDs(proofs models.Proofs) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, p := range proofs {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
	}
	return ids
}
