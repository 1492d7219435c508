package memory

import (
	"context"
	"sort"
	"sync"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// CoinStore is an in-memory implementation of storage.CoinStore.
type CoinStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Coin // keyed by coin_id
}

// NewCoinStore creates a new in-memory coin store.
func NewCoinStore() *CoinStore {
	return &CoinStore{
		data: make(map[string]*domain.Coin),
	}
}

// Insert adds a new coin. Returns ErrDuplicateKey if coin_id exists.
func (s *CoinStore) Insert(_ context.Context, c *domain.Coin) error {
	if c == nil || c.CoinID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.CoinID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	coinCopy := *c
	s.data[c.CoinID] = &coinCopy
	return nil
}

// GetByID retrieves a coin by its ID. Returns ErrNotFound if not exists.
func (s *CoinStore) GetByID(_ context.Context, coinID string) (*domain.Coin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[coinID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	coinCopy := *c
	return &coinCopy, nil
}

// ListActive retrieves all active coins, newest first.
func (s *CoinStore) ListActive(_ context.Context) ([]*domain.Coin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Coin
	for _, c := range s.data {
		if c.IsActive {
			coinCopy := *c
			result = append(result, &coinCopy)
		}
	}

	sortCoinsNewestFirst(result)
	return result, nil
}

// ListByCreator retrieves all coins launched by a user, newest first.
func (s *CoinStore) ListByCreator(_ context.Context, creatorID string) ([]*domain.Coin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Coin
	for _, c := range s.data {
		if c.CreatorID == creatorID {
			coinCopy := *c
			result = append(result, &coinCopy)
		}
	}

	sortCoinsNewestFirst(result)
	return result, nil
}

// Update replaces coin state if the stored version equals expectedVersion.
func (s *CoinStore) Update(_ context.Context, c *domain.Coin, expectedVersion int64) error {
	if c == nil || c.CoinID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.data[c.CoinID]
	if !exists {
		return storage.ErrNotFound
	}
	if current.Version != expectedVersion {
		return storage.ErrVersionConflict
	}

	coinCopy := *c
	s.data[c.CoinID] = &coinCopy
	return nil
}

func sortCoinsNewestFirst(coins []*domain.Coin) {
	sort.Slice(coins, func(i, j int) bool {
		if coins[i].CreatedAt != coins[j].CreatedAt {
			return coins[i].CreatedAt > coins[j].CreatedAt
		}
		return coins[i].CoinID < coins[j].CoinID
	})
}

// Verify interface compliance at compile time.
var _ storage.CoinStore = (*CoinStore)(nil)
