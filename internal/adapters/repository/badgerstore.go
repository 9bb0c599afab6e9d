package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/domain/resample"
	"github.com/okian/graftloss/pkg/logger"
)

// Key layout.
var (
	planKey      = []byte("plan")
	resultPrefix = []byte("result/")
)

// BadgerStore persists the plan and results so an interrupted run can resume.
type BadgerStore struct {
	db         *badger.DB
	path       string
	inMemory   bool
	syncWrites bool
	logger     logger.Logger
	count      atomic.Int64
}

// OpenBadgerStore opens (or creates) a store at path.
func OpenBadgerStore(path string, opts ...Option) (*BadgerStore, error) {
	s := &BadgerStore{path: path}
	for _, opt := range opts {
		opt(s)
	}

	var bopts badger.Options
	if s.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, errors.New("badger store: path is required unless in memory")
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", path, err)
		}
		bopts = badger.DefaultOptions(path)
	}
	bopts = bopts.WithSyncWrites(s.syncWrites)
	if s.logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{l: s.logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	s.db = db

	n := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: resultPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count stored results: %w", err)
	}
	s.count.Store(int64(n))
	return s, nil
}

// SavePlan implements Store.
func (s *BadgerStore) SavePlan(ctx context.Context, plan *resample.Plan) error {
	b, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(planKey, b)
	})
}

// LoadPlan implements Store.
func (s *BadgerStore) LoadPlan(ctx context.Context) (*resample.Plan, error) {
	var plan resample.Plan
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(planKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &plan)
		})
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// PutResult implements Store.
func (s *BadgerStore) PutResult(ctx context.Context, r model.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.Unit.Key(), err)
	}
	key := append(append([]byte{}, resultPrefix...), r.Unit.Key()...)
	added := false
	err = s.update(ctx, func(txn *badger.Txn) error {
		_, gerr := txn.Get(key)
		switch {
		case errors.Is(gerr, badger.ErrKeyNotFound):
			added = true
		case gerr != nil:
			return gerr
		}
		return txn.Set(key, b)
	})
	if err == nil && added {
		s.count.Add(1)
	}
	return err
}

// Results implements Store. Keys sort by unit key, so iteration order is the result order.
func (s *BadgerStore) Results(ctx context.Context) ([]model.Result, error) {
	var out []model.Result
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: resultPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var r model.Result
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &r) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Completed implements Store.
func (s *BadgerStore) Completed(ctx context.Context) ([]model.Unit, error) {
	rs, err := s.Results(ctx)
	if err != nil {
		return nil, err
	}
	return completedUnits(rs), nil
}

// Count implements Store.
func (s *BadgerStore) Count(_ context.Context) int { return int(s.count.Load()) }

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(fn)
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.View(fn)
}

// badgerLogger adapts logger.Logger to badger's Logger interface.
type badgerLogger struct {
	l logger.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(context.Background(), fmt.Sprintf(format, args...))
}
