package memory

import (
	"context"
	"sort"
	"sync"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// holderKey identifies one (coin, user) position.
type holderKey struct {
	coinID string
	userID string
}

// HolderStore is an in-memory implementation of storage.HolderStore.
// Put and Delete are exposed for the memory TradeApplier; other callers
// read only.
type HolderStore struct {
	mu   sync.RWMutex
	data map[holderKey]*domain.Holder
}

// NewHolderStore creates a new in-memory holder store.
func NewHolderStore() *HolderStore {
	return &HolderStore{
		data: make(map[holderKey]*domain.Holder),
	}
}

// Get retrieves the holder record for a (coin, user) pair.
func (s *HolderStore) Get(_ context.Context, coinID, userID string) (*domain.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.data[holderKey{coinID, userID}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	holderCopy := *h
	return &holderCopy, nil
}

// ListByCoin retrieves all holders of a coin, largest balance first.
func (s *HolderStore) ListByCoin(_ context.Context, coinID string) ([]*domain.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Holder
	for k, h := range s.data {
		if k.coinID == coinID {
			holderCopy := *h
			result = append(result, &holderCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TokenBalance != result[j].TokenBalance {
			return result[i].TokenBalance > result[j].TokenBalance
		}
		return result[i].UserID < result[j].UserID
	})

	return result, nil
}

// ListByUser retrieves all positions of a user.
func (s *HolderStore) ListByUser(_ context.Context, userID string) ([]*domain.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Holder
	for k, h := range s.data {
		if k.userID == userID {
			holderCopy := *h
			result = append(result, &holderCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CoinID < result[j].CoinID
	})

	return result, nil
}

// Put upserts a holder record. Used by the memory TradeApplier only.
func (s *HolderStore) Put(_ context.Context, h *domain.Holder) error {
	if h == nil || h.CoinID == "" || h.UserID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	holderCopy := *h
	s.data[holderKey{h.CoinID, h.UserID}] = &holderCopy
	return nil
}

// Delete removes a holder record. Used by the memory TradeApplier only.
func (s *HolderStore) Delete(_ context.Context, coinID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := holderKey{coinID, userID}
	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, key)
	return nil
}

// Verify interface compliance at compile time.
var _ storage.HolderStore = (*HolderStore)(nil)
