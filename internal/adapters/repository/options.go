package repository

import "github.com/okian/graftloss/pkg/logger"

// Option applies a configuration option to the BadgerStore.
type Option func(*BadgerStore)

// WithInMemory keeps the badger database in memory; the path is ignored.
func WithInMemory() Option {
	return func(s *BadgerStore) {
		s.inMemory = true
	}
}

// WithSyncWrites makes every commit durable before it returns.
func WithSyncWrites(sync bool) Option {
	return func(s *BadgerStore) {
		s.syncWrites = sync
	}
}

// WithLogger routes badger's internal logging to l. Without it badger is silent.
func WithLogger(l logger.Logger) Option {
	return func(s *BadgerStore) {
		s.logger = l
	}
}
