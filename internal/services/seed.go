package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/dmitrijs2005/nutkeeper/internal/seed"
)

// SeedService keeps the wallet mnemonic in settings and the derived keys
// in memory.
type SeedService interface {
	// Load reads the stored phrase. It returns common.ErrNoSeed when the
	// wallet has none yet.
	Load(ctx context.Context) (seed.Provider, error)
	// Set validates and persists phrase, replacing any previous seed.
	Set(ctx context.Context, phrase string) (seed.Provider, error)
	// Current returns the loaded keys without touching storage.
	Current() (seed.Provider, bool)
	// Forget drops the in-memory keys.
	Forget()
}

type seedService struct {
	settings repositories.SettingsRepository

	mu   sync.RWMutex
	keys *seed.Keys
}

func NewSeedService(settings repositories.SettingsRepository) SeedService {
	return &seedService{settings: settings}
}

func (s *seedService) Load(ctx context.Context) (seed.Provider, error) {
	if k, ok := s.Current(); ok {
		return k, nil
	}

	var phrase string
	found, err := getJSON(ctx, s.settings, keySeed, &phrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed: %w", err)
	}
	if !found || phrase == "" {
		return nil, common.ErrNoSeed
	}

	keys, err := seed.FromMnemonic(phrase)
	if err != nil {
		return nil, fmt.Errorf("stored seed is unusable: %w", err)
	}
	s.replace(keys)
	return keys, nil
}

func (s *seedService) Set(ctx context.Context, phrase string) (seed.Provider, error) {
	keys, err := seed.FromMnemonic(phrase)
	if err != nil {
		return nil, err
	}
	if err := putJSON(ctx, s.settings, keySeed, keys.Mnemonic()); err != nil {
		keys.Wipe()
		return nil, fmt.Errorf("failed to save seed: %w", err)
	}
	s.replace(keys)
	return keys, nil
}

func (s *seedService) Current() (seed.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return nil, false
	}
	return s.keys, true
}

func (s *seedService) Forget() {
	s.replace(nil)
}

func (s *seedService) replace(keys *seed.Keys) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}
