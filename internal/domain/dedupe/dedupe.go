// Package dedupe tracks which (model, split) units a run has already claimed,
// so resumed runs and duplicate dispatches never evaluate a unit twice.
package dedupe

import (
	"context"
	"sync"

	"github.com/okian/graftloss/internal/domain/model"
)

// Deduper records claimed units.
type Deduper interface {
	// Claim atomically marks u as claimed. It returns false when u was
	// already claimed, in which case the caller must not evaluate it.
	Claim(ctx context.Context, u model.Unit) bool

	// Release drops a claim so the unit can be dispatched again, e.g. when
	// enqueueing it failed.
	Release(ctx context.Context, u model.Unit)

	// Claimed reports whether u is claimed without changing state.
	Claimed(ctx context.Context, u model.Unit) bool

	Size() int
}

type inMemoryDeduper struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewInMemoryDeduper creates a Deduper. WithPreclaimed seeds it with units that
// finished in an earlier run.
func NewInMemoryDeduper(opts ...Option) Deduper {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &inMemoryDeduper{claimed: make(map[string]struct{}, cfg.expected+len(cfg.preclaimed))}
	for _, u := range cfg.preclaimed {
		d.claimed[u.Key()] = struct{}{}
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, u model.Unit) bool {
	k := u.Key()
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.claimed[k]; ok {
		return false
	}
	d.claimed[k] = struct{}{}
	return true
}

func (d *inMemoryDeduper) Release(_ context.Context, u model.Unit) {
	d.mu.Lock()
	delete(d.claimed, u.Key())
	d.mu.Unlock()
}

func (d *inMemoryDeduper) Claimed(_ context.Context, u model.Unit) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.claimed[u.Key()]
	return ok
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claimed)
}
