package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/p2pk"
	"github.com/dmitrijs2005/nutkeeper/internal/token"
	"github.com/google/uuid"
)

const (
	noteReceived       = "Ecash token received"
	noteReceivedLocked = "P2PK-locked ecash received"
	noteSent           = "Ecash token generated"
	noteInvoice        = "Lightning invoice"
	notePaid           = "Lightning payment"
	noteReclaimed      = "Pending token reclaimed"
)

// RequestMint asks the mint for an invoice and tracks it until paid. A
// pending receive transaction is recorded right away.
func (w *Wallet) RequestMint(ctx context.Context, mintURL string, amount int64) (models.MintQuote, error) {
	if amount <= 0 {
		return models.MintQuote{}, errors.New("amount must be positive")
	}
	c, err := w.client(ctx, mintURL)
	if err != nil {
		return models.MintQuote{}, err
	}
	q, err := c.CreateMintQuote(ctx, amount)
	if err != nil {
		return models.MintQuote{}, err
	}

	q.TxID, err = w.ledger.Append(ctx, models.TxReceive, amount, noteInvoice, c.URL(), models.TxPending)
	if err != nil {
		return models.MintQuote{}, err
	}
	return w.quotes.Track(ctx, q)
}

// unlock signs every proof locked to a held key and returns the public
// keys used. Any lock the wallet cannot open fails with
// common.ErrLockMismatch.
func (w *Wallet) unlock(ctx context.Context, proofs models.Proofs) (models.Proofs, []string, error) {
	r, err := w.keys.Resolver(ctx)
	if err != nil {
		return nil, nil, err
	}
	if missing := r.Unmatched(proofs); len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: locked to %s", common.ErrLockMismatch, missing[0])
	}

	out := make(models.Proofs, len(proofs))
	var used []string
	seen := map[string]struct{}{}
	for i, p := range proofs {
		l := r.Resolve(p.Secret)
		if l.Unlockable() {
			witness, err := p2pk.Sign(l.PrivateKey, p.Secret)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to sign proof: %w", err)
			}
			p.Witness = witness
			if _, ok := seen[l.Key]; !ok {
				seen[l.Key] = struct{}{}
				used = append(used, l.Key)
			}
		}
		out[i] = p
	}
	return out, used, nil
}

// Receive redeems an encoded token at its mint and returns the amount
// credited. Tokens without a mint are redeemed at the default mint; tokens
// in a unit other than sat fail with common.ErrUnsupportedUnit.
func (w *Wallet) Receive(ctx context.Context, encoded string) (int64, error) {
	tok, err := token.Decode(encoded)
	if err != nil {
		return 0, err
	}
	if !strings.EqualFold(tok.Unit, common.Unit) {
		return 0, fmt.Errorf("%w: %q", common.ErrUnsupportedUnit, tok.Unit)
	}
	proofs := tok.Proofs.Filter()
	if len(proofs) == 0 {
		return 0, fmt.Errorf("%w: token carries no proofs", common.ErrDecode)
	}

	c, err := w.client(ctx, tok.Mint)
	if err != nil {
		return 0, err
	}

	signed, used, err := w.unlock(ctx, proofs)
	if err != nil {
		return 0, err
	}

	fresh, err := c.Receive(ctx, signed)
	if err != nil {
		return 0, err
	}
	if err := w.funds.credit(ctx, c.URL(), fresh); err != nil {
		return 0, err
	}

	note := noteReceived
	if len(used) > 0 {
		note = noteReceivedLocked
	}
	if _, err := w.ledger.Append(ctx, models.TxReceive, fresh.Amount(), note, c.URL(), models.TxPaid); err != nil {
		w.log.Error(ctx, "failed to record receive", "error", err)
	}
	for _, pub := range used {
		if err := w.keys.MarkUsed(ctx, pub); err != nil {
			w.log.Warn(ctx, "failed to mark key used", "key", pub, "error", err)
		}
	}
	return fresh.Amount(), nil
}

// Send splits amount off the mint's proofs into a token, optionally locked
// to lockTo (hex or npub). The token stays pending until the recipient
// redeems it.
func (w *Wallet) Send(ctx context.Context, mintURL string, amount int64, lockTo string) (models.PendingToken, error) {
	if amount <= 0 {
		return models.PendingToken{}, errors.New("amount must be positive")
	}
	if lockTo != "" {
		pub, err := p2pk.NormalizePubkey(lockTo)
		if err != nil {
			return models.PendingToken{}, err
		}
		lockTo = pub
	}

	c, err := w.client(ctx, mintURL)
	if err != nil {
		return models.PendingToken{}, err
	}
	held, err := w.proofs.Get(ctx, c.URL())
	if err != nil {
		return models.PendingToken{}, err
	}
	if held.Amount() < amount {
		return models.PendingToken{}, fmt.Errorf("%w: have %d, need %d", common.ErrInsufficientBalance, held.Amount(), amount)
	}

	send, keep, err := c.Send(ctx, amount, held, lockTo)
	if err != nil {
		return models.PendingToken{}, err
	}
	if err := w.funds.replace(ctx, c.URL(), held, keep); err != nil {
		return models.PendingToken{}, err
	}

	encoded, err := token.Encode(token.Token{Mint: c.URL(), Unit: common.Unit, Proofs: send})
	if err != nil {
		return models.PendingToken{}, fmt.Errorf("failed to encode token: %w", err)
	}

	note := noteSent
	if lockTo != "" {
		note = fmt.Sprintf("P2PK-locked ecash generated (%s...)", lockTo[:min(len(lockTo), 16)])
	}
	txID, err := w.ledger.Append(ctx, models.TxSend, amount, note, c.URL(), models.TxPending)
	if err != nil {
		w.log.Error(ctx, "failed to record send", "error", err)
	}

	pt := models.PendingToken{
		ID:        uuid.NewString(),
		Token:     encoded,
		Amount:    send.Amount(),
		MintURL:   c.URL(),
		Proofs:    send.WithMint(c.URL()),
		CreatedAt: w.clock.now(),
		TxID:      txID,
	}
	if err := w.tokens.Track(ctx, pt); err != nil {
		return pt, err
	}
	return pt, nil
}

// PayInvoice melts proofs to pay a bolt11 invoice. The returned quote
// carries the final state and preimage.
func (w *Wallet) PayInvoice(ctx context.Context, mintURL, invoice string) (models.MeltQuote, error) {
	c, err := w.client(ctx, mintURL)
	if err != nil {
		return models.MeltQuote{}, err
	}
	q, err := c.CreateMeltQuote(ctx, invoice)
	if err != nil {
		return models.MeltQuote{}, err
	}

	held, err := w.proofs.Get(ctx, c.URL())
	if err != nil {
		return models.MeltQuote{}, err
	}
	if held.Amount() < q.Total() {
		return q, fmt.Errorf("%w: have %d, need %d", common.ErrInsufficientBalance, held.Amount(), q.Total())
	}

	res, err := c.MeltProofs(ctx, q, held)
	if err != nil {
		return q, err
	}
	q.State = res.State
	q.Preimage = res.Preimage
	if res.State == models.QuoteUnpaid {
		return q, errors.New("lightning payment failed")
	}

	remaining := append(append(models.Proofs{}, res.Keep...), res.Change...)
	if err := w.funds.replace(ctx, c.URL(), held, remaining); err != nil {
		return q, err
	}

	status := models.TxPaid
	if !res.Paid() {
		status = models.TxPending
	}
	spent := held.Amount() - remaining.Amount()
	if _, err := w.ledger.Append(ctx, models.TxSend, spent, notePaid, c.URL(), status); err != nil {
		w.log.Error(ctx, "failed to record payment", "error", err)
	}
	return q, nil
}

// PayAddress pays amount to a Lightning address.
func (w *Wallet) PayAddress(ctx context.Context, mintURL, address string, amount int64) (models.MeltQuote, error) {
	if w.address == nil {
		return models.MeltQuote{}, errors.New("lightning addresses are not supported")
	}
	invoice, err := w.address.Resolve(ctx, address, amount)
	if err != nil {
		return models.MeltQuote{}, err
	}
	return w.PayInvoice(ctx, mintURL, invoice)
}

// Reclaim takes back a sent token the recipient has not redeemed. When the
// recipient was faster the record is settled and
// common.ErrClaimedByRecipient is returned.
func (w *Wallet) Reclaim(ctx context.Context, id string) (int64, error) {
	pt, err := w.tokens.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	c, err := w.pool.Dial(pt.MintURL)
	if err != nil {
		return 0, err
	}

	signed, _, err := w.unlock(ctx, pt.Proofs)
	if err != nil {
		return 0, err
	}

	fresh, err := c.Receive(ctx, signed)
	if errors.Is(err, common.ErrAlreadySpent) {
		if err := w.tokens.Delete(ctx, id); err != nil {
			return 0, err
		}
		if pt.TxID != "" {
			if err := w.ledger.UpdateStatus(ctx, pt.TxID, models.TxPaid); err != nil {
				w.log.Warn(ctx, "failed to mark send paid", "token", id, "error", err)
			}
		}
		return 0, fmt.Errorf("%w: %w", common.ErrClaimedByRecipient, common.ErrAlreadySpent)
	}
	if err != nil {
		return 0, err
	}

	if err := w.funds.credit(ctx, c.URL(), fresh); err != nil {
		return 0, err
	}
	if err := w.tokens.Delete(ctx, id); err != nil {
		return 0, err
	}
	if _, err := w.ledger.Append(ctx, models.TxReceive, fresh.Amount(), noteReclaimed, c.URL(), models.TxPaid); err != nil {
		w.log.Error(ctx, "failed to record reclaim", "error", err)
	}
	return fresh.Amount(), nil
}

// DeletePending forgets a sent token without touching its proofs.
func (w *Wallet) DeletePending(ctx context.Context, id string) error {
	return w.tokens.Delete(ctx, id)
}

// CheckProofs drops held proofs the mint reports as spent and returns the
// amount removed.
func (w *Wallet) CheckProofs(ctx context.Context, mintURL string) (int64, error) {
	c, err := w.client(ctx, mintURL)
	if err != nil {
		return 0, err
	}
	held, err := w.proofs.Get(ctx, c.URL())
	if err != nil || len(held) == 0 {
		return 0, err
	}
	states, err := c.CheckProofsStates(ctx, held)
	if err != nil {
		return 0, err
	}
	if len(states) != len(held) {
		return 0, fmt.Errorf("mint returned %d states for %d proofs", len(states), len(held))
	}

	var spent models.Proofs
	for i, s := range states {
		if s.State == models.ProofSpent {
			spent = append(spent, held[i])
		}
	}
	if len(spent) == 0 {
		return 0, nil
	}
	if err := w.funds.replace(ctx, c.URL(), spent, nil); err != nil {
		return 0, err
	}
	w.log.Info(ctx, "removed spent proofs", "mint", c.URL(), "count", len(spent), "amount", spent.Amount())
	return spent.Amount(), nil
}
