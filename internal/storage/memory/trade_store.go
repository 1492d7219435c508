package memory

import (
	"context"
	"sort"
	"sync"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by signature
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert appends a trade. Returns ErrDuplicateKey if signature exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	tradeCopy := *t
	s.data[t.Signature] = &tradeCopy
	return nil
}

// GetBySignature retrieves a trade. Returns ErrNotFound if not exists.
func (s *TradeStore) GetBySignature(_ context.Context, signature string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tradeCopy := *t
	return &tradeCopy, nil
}

// ListByCoin retrieves up to limit trades for a coin, newest first.
func (s *TradeStore) ListByCoin(_ context.Context, coinID string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.CoinID == coinID {
			tradeCopy := *t
			result = append(result, &tradeCopy)
		}
	}

	return sortAndLimit(result, limit), nil
}

// ListByUser retrieves up to limit trades for a user, newest first.
func (s *TradeStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.UserID == userID {
			tradeCopy := *t
			result = append(result, &tradeCopy)
		}
	}

	return sortAndLimit(result, limit), nil
}

func sortAndLimit(trades []*domain.Trade, limit int) []*domain.Trade {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].ExecutedAt != trades[j].ExecutedAt {
			return trades[i].ExecutedAt > trades[j].ExecutedAt
		}
		return trades[i].Signature < trades[j].Signature
	})

	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades
}

// Verify interface compliance at compile time.
var _ storage.TradeStore = (*TradeStore)(nil)
