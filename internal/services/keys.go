package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/p2pk"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
)

// KeyService manages the P2PK keypairs tokens can be locked to.
type KeyService interface {
	Generate(ctx context.Context) (models.P2PKKey, error)
	// Import accepts a hex or nsec private key. A key already held returns
	// common.ErrKeyExists.
	Import(ctx context.Context, priv string) (models.P2PKKey, error)
	// List returns keys oldest first.
	List(ctx context.Context) ([]models.P2PKKey, error)
	Delete(ctx context.Context, pubkey string) error
	MarkUsed(ctx context.Context, pubkey string) error
	Lookup(ctx context.Context, pubkey string) (models.P2PKKey, error)
	// Resolver builds a lock resolver over the current key set.
	Resolver(ctx context.Context) (*p2pk.Resolver, error)
}

type keyService struct {
	repo  repositories.KeyRepository
	clock Clock
}

func NewKeyService(repo repositories.KeyRepository, clock Clock) KeyService {
	return &keyService{repo: repo, clock: clock}
}

func (s *keyService) Generate(ctx context.Context) (models.P2PKKey, error) {
	k, err := p2pk.GenerateKey(s.clock.now())
	if err != nil {
		return models.P2PKKey{}, fmt.Errorf("error generating key: %w", err)
	}
	if err := s.repo.Insert(ctx, k); err != nil {
		return models.P2PKKey{}, fmt.Errorf("error saving key: %w", err)
	}
	return k, nil
}

func (s *keyService) Import(ctx context.Context, priv string) (models.P2PKKey, error) {
	k, err := p2pk.ImportKey(priv, s.clock.now())
	if err != nil {
		return models.P2PKKey{}, err
	}
	if err := s.repo.Insert(ctx, k); err != nil {
		return models.P2PKKey{}, fmt.Errorf("error saving key: %w", err)
	}
	return k, nil
}

func (s *keyService) List(ctx context.Context) ([]models.P2PKKey, error) {
	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving keys: %w", err)
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].CreatedAt.Before(keys[j].CreatedAt) })
	return keys, nil
}

func (s *keyService) Delete(ctx context.Context, pubkey string) error {
	pub, err := p2pk.NormalizePubkey(pubkey)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, pub); err != nil {
		return fmt.Errorf("error deleting key: %w", err)
	}
	return nil
}

func (s *keyService) MarkUsed(ctx context.Context, pubkey string) error {
	k, err := s.Lookup(ctx, pubkey)
	if err != nil {
		return err
	}
	k.Used = true
	k.UsedCount++
	if err := s.repo.Update(ctx, k); err != nil {
		return fmt.Errorf("error updating key: %w", err)
	}
	return nil
}

func (s *keyService) Lookup(ctx context.Context, pubkey string) (models.P2PKKey, error) {
	pub, err := p2pk.NormalizePubkey(pubkey)
	if err != nil {
		return models.P2PKKey{}, err
	}
	k, err := s.repo.GetByPublicKey(ctx, pub)
	if err != nil {
		return models.P2PKKey{}, fmt.Errorf("error retrieving key: %w", err)
	}
	return k, nil
}

func (s *keyService) Resolver(ctx context.Context) (*p2pk.Resolver, error) {
	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving keys: %w", err)
	}
	return p2pk.NewResolver(keys, s.clock.now()), nil
}
