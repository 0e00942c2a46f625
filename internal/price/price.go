// Package price keeps a BTC spot price for one fiat currency so balances can
// be shown alongside their fiat value.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/netx"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL  = "https://api.coinbase.com"
	DefaultCurrency = "USD"
	DefaultInterval = 5 * time.Minute

	settingsPrefix = "price_"
)

var (
	ErrNoPrice  = errors.New("no price available")
	satsPerCoin = decimal.New(1, 8)
)

// Quote is the BTC price in Currency at a point in time.
type Quote struct {
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Convert returns the fiat value of sats, rounded to cents.
func (q Quote) Convert(sats uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(sats)).Mul(q.Amount).Div(satsPerCoin).Round(2)
}

type Service interface {
	// Refresh fetches a fresh quote and stores it.
	Refresh(ctx context.Context) (Quote, error)
	// Latest returns the last known quote, loading it from settings after a
	// restart.
	Latest(ctx context.Context) (Quote, error)
	Currency() string
}

type Options struct {
	BaseURL  string
	Currency string
	Client   *http.Client
	Settings repositories.SettingsRepository
	Logger   logging.Logger
	Clock    func() time.Time
}

type service struct {
	baseURL  string
	currency string
	client   *http.Client
	settings repositories.SettingsRepository
	log      logging.Logger
	clock    func() time.Time

	mu     sync.RWMutex
	latest *Quote
}

func NewService(o Options) Service {
	s := &service{
		baseURL:  strings.TrimRight(o.BaseURL, "/"),
		currency: strings.ToUpper(strings.TrimSpace(o.Currency)),
		client:   o.Client,
		settings: o.Settings,
		log:      o.Logger,
		clock:    o.Clock,
	}
	if s.baseURL == "" {
		s.baseURL = DefaultBaseURL
	}
	if s.currency == "" {
		s.currency = DefaultCurrency
	}
	if s.client == nil {
		s.client = netx.NewClient()
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.log = s.log.With("component", "price", "currency", s.currency)
	return s
}

func (s *service) Currency() string { return s.currency }

type spotResponse struct {
	Data struct {
		Base     string `json:"base"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	} `json:"data"`
}

func (s *service) Refresh(ctx context.Context) (Quote, error) {
	url := fmt.Sprintf("%s/v2/prices/BTC-%s/spot", s.baseURL, s.currency)

	var resp spotResponse
	if err := netx.GetJSON(ctx, s.client, url, &resp); err != nil {
		return Quote{}, fmt.Errorf("error fetching price: %w", err)
	}

	amount, err := decimal.NewFromString(resp.Data.Amount)
	if err != nil {
		return Quote{}, fmt.Errorf("error parsing price %q: %w", resp.Data.Amount, err)
	}
	if !amount.IsPositive() {
		return Quote{}, fmt.Errorf("error parsing price: non-positive amount %s", amount)
	}

	q := Quote{Currency: s.currency, Amount: amount, FetchedAt: s.clock().UTC()}

	s.mu.Lock()
	s.latest = &q
	s.mu.Unlock()

	if s.settings != nil {
		raw, err := json.Marshal(q)
		if err != nil {
			return q, err
		}
		if err := s.settings.Put(ctx, settingsPrefix+s.currency, raw); err != nil {
			s.log.Warn(ctx, "failed to persist price", "error", err)
		}
	}

	s.log.Debug(ctx, "price refreshed", "amount", amount.String())
	return q, nil
}

func (s *service) Latest(ctx context.Context) (Quote, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil {
		return *latest, nil
	}

	if s.settings == nil {
		return Quote{}, ErrNoPrice
	}
	raw, err := s.settings.Get(ctx, settingsPrefix+s.currency)
	if errors.Is(err, common.ErrNotFound) {
		return Quote{}, ErrNoPrice
	}
	if err != nil {
		return Quote{}, fmt.Errorf("error loading price: %w", err)
	}

	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, fmt.Errorf("error decoding price: %w", err)
	}

	s.mu.Lock()
	if s.latest == nil {
		s.latest = &q
	}
	s.mu.Unlock()
	return q, nil
}
