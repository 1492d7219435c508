package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// TradeTickStore is an in-memory implementation of storage.TradeTickStore.
type TradeTickStore struct {
	mu   sync.RWMutex
	data []*domain.TradeTick
}

// NewTradeTickStore creates a new in-memory trade tick store.
func NewTradeTickStore() *TradeTickStore {
	return &TradeTickStore{}
}

// InsertBulk appends multiple ticks.
func (s *TradeTickStore) InsertBulk(_ context.Context, ticks []*domain.TradeTick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tick := range ticks {
		if tick == nil || tick.CoinID == "" {
			return storage.ErrInvalidInput
		}
		tickCopy := *tick
		s.data = append(s.data, &tickCopy)
	}
	return nil
}

// GetByCoinRange retrieves ticks for a coin within [start, end] (inclusive).
func (s *TradeTickStore) GetByCoinRange(_ context.Context, coinID string, start, end int64) ([]*domain.TradeTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeTick
	for _, tick := range s.data {
		if tick.CoinID == coinID && tick.TimestampMs >= start && tick.TimestampMs <= end {
			tickCopy := *tick
			result = append(result, &tickCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// Volume24h returns total quote volume over the 24 hours preceding nowMs.
func (s *TradeTickStore) Volume24h(_ context.Context, coinID string, nowMs int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := nowMs - 24*60*60*1000
	total := decimal.Zero
	for _, tick := range s.data {
		if tick.CoinID == coinID && tick.TimestampMs >= start && tick.TimestampMs <= nowMs {
			total = total.Add(tick.QuoteAmount)
		}
	}

	return total, nil
}

// Verify interface compliance at compile time.
var _ storage.TradeTickStore = (*TradeTickStore)(nil)
