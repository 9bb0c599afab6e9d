// Package repository persists the split plan and per-unit results of a run.
package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/domain/resample"
)

// Store holds one run's split plan and unit results.
type Store interface {
	// SavePlan records the split plan every model is evaluated on.
	SavePlan(ctx context.Context, plan *resample.Plan) error
	// LoadPlan returns the stored plan, or ErrNotFound.
	LoadPlan(ctx context.Context) (*resample.Plan, error)

	// PutResult stores r, replacing any earlier result for the same unit.
	PutResult(ctx context.Context, r model.Result) error
	// Results returns every stored result ordered by unit key.
	Results(ctx context.Context) ([]model.Result, error)
	// Completed lists units with a successful result. Failed units are not
	// listed so a resumed run retries them.
	Completed(ctx context.Context) ([]model.Unit, error)

	// Count returns the number of stored results.
	Count(ctx context.Context) int

	Close() error
}

// MemStore keeps everything in memory.
type MemStore struct {
	mu      sync.RWMutex
	plan    *resample.Plan
	results map[string]model.Result
	closed  bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{results: make(map[string]model.Result)}
}

// SavePlan implements Store.
func (s *MemStore) SavePlan(_ context.Context, plan *resample.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.plan = plan
	return nil
}

// LoadPlan implements Store.
func (s *MemStore) LoadPlan(_ context.Context) (*resample.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.plan == nil {
		return nil, ErrNotFound
	}
	return s.plan, nil
}

// PutResult implements Store.
func (s *MemStore) PutResult(_ context.Context, r model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.results[r.Unit.Key()] = r
	return nil
}

// Results implements Store.
func (s *MemStore) Results(_ context.Context) ([]model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sortResults(out)
	return out, nil
}

// Completed implements Store.
func (s *MemStore) Completed(ctx context.Context) ([]model.Unit, error) {
	rs, err := s.Results(ctx)
	if err != nil {
		return nil, err
	}
	return completedUnits(rs), nil
}

// Count implements Store.
func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Close implements Store.
func (s *MemStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortResults(rs []model.Result) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Unit.Key() < rs[j].Unit.Key() })
}

func completedUnits(rs []model.Result) []model.Unit {
	out := make([]model.Unit, 0, len(rs))
	for _, r := range rs {
		if !r.Failed() {
			out = append(out, r.Unit)
		}
	}
	return out
}

var (
	_ Store = (*MemStore)(nil)
	_ Store = (*BadgerStore)(nil)
)
