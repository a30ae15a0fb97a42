package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bivunote/billing-gateway/billing"
)

type InMemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*billing.Record
}

func NewInMemory() billing.Store {
	return &InMemoryStore{
		transactions: map[string]*billing.Record{},
	}
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = make(map[string]*billing.Record)
}

func (s *InMemoryStore) RecordTransaction(ctx context.Context, record *billing.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[record.TransactionID]; ok {
		return billing.ErrExists
	}

	s.transactions[record.TransactionID] = record.Clone()

	return nil
}

func (s *InMemoryStore) GetTransaction(ctx context.Context, transactionID string) (*billing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.transactions[transactionID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) ListTransactions(ctx context.Context) ([]*billing.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*billing.Record, 0, len(s.transactions))
	for _, record := range s.transactions {
		records = append(records, record.Clone())
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].PurchaseTime != records[j].PurchaseTime {
			return records[i].PurchaseTime < records[j].PurchaseTime
		}
		return records[i].TransactionID < records[j].TransactionID
	})

	return records, nil
}
