package mint

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/nutkeeper/internal/cashu"
	"golang.org/x/time/rate"
)

// NormalizeURL validates a mint URL and strips the trailing slash, so the
// same mint always maps to the same storage key.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mint url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid mint url %q: want http(s)://host", raw)
	}
	return raw, nil
}

// Pool keeps one HTTPClient per mint so breaker state and keyset caches
// are shared by every caller. The seed can be loaded after the pool is
// built; clients pick it up on their next request.
type Pool struct {
	opts Options

	mu      sync.Mutex
	deriver *cashu.Deriver
	clients map[string]*HTTPClient
}

func NewPool(opts Options) *Pool {
	return &Pool{opts: opts.withDefaults(), clients: map[string]*HTTPClient{}}
}

// SetSeed switches deterministic output derivation to seed. A nil seed
// falls back to random secrets.
func (p *Pool) SetSeed(seed []byte) error {
	var d *cashu.Deriver
	if seed != nil {
		var err error
		if d, err = cashu.NewDeriver(seed); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.deriver = d
	p.mu.Unlock()
	return nil
}

func (p *Pool) currentDeriver() *cashu.Deriver {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deriver
}

func (p *Pool) Dial(mintURL string) (Client, error) {
	u, err := NormalizeURL(mintURL)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[u]
	if !ok {
		c = newHTTPClient(u, p.currentDeriver, p.opts)
		p.clients[u] = c
	}
	return c, nil
}

// ForSeed returns a separate pool deriving from seed, sharing the HTTP
// client and counters. Restore uses it so a scan never touches the
// wallet's own clients. A non-nil limiter throttles every request.
func (p *Pool) ForSeed(seed []byte, limiter *rate.Limiter) (*Pool, error) {
	opts := p.opts
	if limiter != nil {
		opts.Limiter = limiter
	}
	np := NewPool(opts)
	if err := np.SetSeed(seed); err != nil {
		return nil, err
	}
	return np, nil
}
