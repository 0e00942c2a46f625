package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// Counters persists the next NUT-13 derivation index per keyset. It
// implements mint.CounterStore.
type Counters struct {
	settings repositories.SettingsRepository
	mu       sync.Mutex
}

func NewCounters(settings repositories.SettingsRepository) *Counters {
	return &Counters{settings: settings}
}

func (c *Counters) get(ctx context.Context, keysetID string) (uint32, error) {
	var next uint32
	if _, err := getJSON(ctx, c.settings, keyCounterPrefix+keysetID, &next); err != nil {
		return 0, fmt.Errorf("failed to load counter for %s: %w", keysetID, err)
	}
	return next, nil
}

func (c *Counters) Reserve(ctx context.Context, keysetID string, n uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start, err := c.get(ctx, keysetID)
	if err != nil {
		return 0, err
	}
	if err := putJSON(ctx, c.settings, keyCounterPrefix+keysetID, start+n); err != nil {
		return 0, fmt.Errorf("failed to save counter for %s: %w", keysetID, err)
	}
	return start, nil
}

func (c *Counters) Advance(ctx context.Context, keysetID string, next uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.get(ctx, keysetID)
	if err != nil {
		return err
	}
	if cur >= next {
		return nil
	}
	return putJSON(ctx, c.settings, keyCounterPrefix+keysetID, next)
}

// Next returns the index the next output for keysetID will use.
func (c *Counters) Next(ctx context.Context, keysetID string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(ctx, keysetID)
}
