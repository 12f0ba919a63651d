package monitoring

import (
	"context"
	"sync"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// memUsageStore is an in-memory UsageStore for tests.
type memUsageStore struct {
	mu       sync.Mutex
	counters map[string]*model.UsageCounter
	getErr   error
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{counters: make(map[string]*model.UsageCounter)}
}

func (s *memUsageStore) IncrementUsage(_ context.Context, service, day string, requests, tokens int64) (*model.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := service + "/" + day
	c, ok := s.counters[key]
	if !ok {
		c = &model.UsageCounter{Service: service, UsageDate: day}
		s.counters[key] = c
	}
	c.RequestsUsed += requests
	c.TokensUsed += tokens
	cp := *c
	return &cp, nil
}

func (s *memUsageStore) GetUsage(_ context.Context, service, day string) (*model.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if c, ok := s.counters[service+"/"+day]; ok {
		cp := *c
		return &cp, nil
	}
	return &model.UsageCounter{Service: service, UsageDate: day}, nil
}
