// Package lnaddr resolves Lightning addresses (user@domain) into BOLT11
// invoices through the LNURL-pay flow.
package lnaddr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/netx"
)

var (
	ErrInvalidAddress = errors.New("invalid lightning address")
	ErrAmountRange    = errors.New("amount outside sendable range")
)

// Valid reports whether s looks like user@domain.
func Valid(s string) bool {
	_, _, err := split(s)
	return err == nil
}

func split(s string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(s), "@")
	if len(parts) != 2 || parts[0] == "" || !strings.Contains(parts[1], ".") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return strings.ToLower(parts[0]), strings.ToLower(parts[1]), nil
}

type payParams struct {
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
}

type invoiceResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type Resolver struct {
	client *http.Client
	scheme string
	log    logging.Logger
}

type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithScheme overrides https, for local test servers.
func WithScheme(s string) Option {
	return func(r *Resolver) { r.scheme = s }
}

func WithLogger(l logging.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{scheme: "https"}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = netx.NewClient()
	}
	if r.log == nil {
		r.log = logging.Discard()
	}
	return r
}

// Resolve returns an invoice for amount sats payable to address.
func (r *Resolver) Resolve(ctx context.Context, address string, amount int64) (string, error) {
	user, domain, err := split(address)
	if err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: %d", ErrAmountRange, amount)
	}

	var params payParams
	wellKnown := fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", r.scheme, domain, url.PathEscape(user))
	if err := netx.GetJSON(ctx, r.client, wellKnown, &params); err != nil {
		return "", fmt.Errorf("error fetching lightning address: %w", err)
	}
	if strings.EqualFold(params.Status, "ERROR") {
		return "", fmt.Errorf("lightning address error: %s", params.Reason)
	}
	if params.Tag != "payRequest" || params.Callback == "" {
		return "", fmt.Errorf("%w: unexpected lnurl response", ErrInvalidAddress)
	}

	msat := amount * 1000
	if msat < params.MinSendable || (params.MaxSendable > 0 && msat > params.MaxSendable) {
		return "", fmt.Errorf("%w: %d sat, allowed %d..%d", ErrAmountRange, amount, params.MinSendable/1000, params.MaxSendable/1000)
	}

	cb, err := url.Parse(params.Callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback: %w", err)
	}
	q := cb.Query()
	q.Set("amount", strconv.FormatInt(msat, 10))
	cb.RawQuery = q.Encode()

	var inv invoiceResponse
	if err := netx.GetJSON(ctx, r.client, cb.String(), &inv); err != nil {
		return "", fmt.Errorf("error fetching invoice: %w", err)
	}
	if strings.EqualFold(inv.Status, "ERROR") {
		return "", fmt.Errorf("lightning address error: %s", inv.Reason)
	}
	if inv.PR == "" {
		return "", errors.New("no invoice returned")
	}

	r.log.Debug(ctx, "resolved lightning address", "address", address, "amount", amount)
	return inv.PR, nil
}
