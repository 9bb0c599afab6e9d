package service

import (
	"time"

	"github.com/okian/graftloss/internal/adapters/repository"
	"github.com/okian/graftloss/internal/config"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets where the plan and unit results are kept. The default is an
// in-memory store; a persistent store makes runs resumable.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithRepetitions sets the number of MC-CV splits.
func WithRepetitions(n int) Option {
	return func(s *Service) { s.repetitions = n }
}

// WithTrainFraction sets the per-stratum training share.
func WithTrainFraction(f float64) Option {
	return func(s *Service) { s.trainFraction = f }
}

// WithSeed pins split generation to seed, zero included. Without it a seed is
// drawn and recorded in the plan.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
		s.seedPinned = true
	}
}

// WithStratification names the binary column splits are stratified on and the
// status column it defaults to.
func WithStratification(column, statusCol string) Option {
	return func(s *Service) {
		s.stratifyBy = column
		s.statusCol = statusCol
	}
}

// WithHorizon sets the time-dependent concordance horizon.
func WithHorizon(h float64) Option {
	return func(s *Service) { s.horizon = h }
}

// WithFitTimeout bounds fit+predict per unit. Zero disables it.
func WithFitTimeout(d time.Duration) Option {
	return func(s *Service) { s.fitTimeout = d }
}

// WithWorkerCount sets the requested number of workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) { s.workerCount = count }
}

// WithModelThreads sets the per-model internal thread budget.
func WithModelThreads(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.modelThreads = n
		}
	}
}

// WithCores overrides the detected core count used for the thread budget.
func WithCores(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cores = n
		}
	}
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithConcordance configures the exact pairwise cap and the subsample seed.
func WithConcordance(maxPairwise int, subsampleSeed int64) Option {
	return func(s *Service) {
		s.maxPairwise = maxPairwise
		s.subsampleSeed = subsampleSeed
	}
}

// WithMedianImportance combines per-split importance with the median.
func WithMedianImportance(enabled bool) Option {
	return func(s *Service) { s.medianImportance = enabled }
}

// WithSubscriber registers fn to receive every unit result as it lands.
// fn runs on a worker goroutine and must not block.
func WithSubscriber(fn func(model.Result)) Option {
	return func(s *Service) {
		if fn != nil {
			s.subscribers = append(s.subscribers, fn)
		}
	}
}

// FromConfig maps run configuration onto service options.
func FromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithRepetitions(cfg.Repetitions),
		WithTrainFraction(cfg.TrainFraction),
		WithStratification(cfg.StratifyColumn(), cfg.StatusCol),
		WithHorizon(cfg.Horizon),
		WithFitTimeout(cfg.FitTimeout()),
		WithWorkerCount(cfg.WorkerCount),
		WithModelThreads(cfg.ModelThreads),
		WithQueueSize(cfg.QueueSize),
		WithConcordance(cfg.ConcordanceMaxPairwise, cfg.ConcordanceSubsampleSeed),
		WithMedianImportance(cfg.ImportanceMedian),
	}
	if seed, ok := cfg.SplitSeed(); ok {
		opts = append(opts, WithSeed(seed))
	}
	return opts
}
