package prevention

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	evaluations map[string][]*Evaluation // wallet → evaluations
}

// NewMemoryStore creates an in-memory evaluation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evaluations: make(map[string][]*Evaluation),
	}
}

func (s *MemoryStore) Record(ctx context.Context, eval *Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *eval
	s.evaluations[eval.Wallet] = append(s.evaluations[eval.Wallet], &e)
	return nil
}

func (s *MemoryStore) ListByWallet(ctx context.Context, wallet string, limit int) ([]*Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.evaluations[wallet]
	if len(all) == 0 {
		return nil, nil
	}

	// Return most recent first, up to limit
	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*Evaluation, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		e := *all[i]
		result = append(result, &e)
	}
	return result, nil
}
