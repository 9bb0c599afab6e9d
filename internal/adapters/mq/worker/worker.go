// Package worker runs (model, split) units from a queue on a fixed pool of workers.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/okian/graftloss/internal/adapters/mq/queue"
	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/pkg/logger"
	"github.com/okian/graftloss/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Queue defines how workers receive units.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Unit
}

// Handler processes one unit. It owns error handling for the unit: the pool
// only recovers panics that escape it.
type Handler func(ctx context.Context, u model.Unit)

// Pool drains a queue with a fixed number of workers.
type Pool struct {
	queue   Queue
	handler Handler
	size    int
	name    string

	processed atomic.Int64
	abandoned atomic.Int64

	logger logger.Logger
}

// NewPool creates a worker pool. The default size is one worker per CPU.
func NewPool(q Queue, h Handler, opts ...Option) *Pool {
	p := &Pool{
		queue:   q,
		handler: h,
		size:    runtime.NumCPU(),
		name:    "worker-pool",
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(p.name)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Processed returns how many units the handler has run.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Run starts the workers and blocks until the queue is closed and drained or
// ctx is cancelled. After cancellation no new unit is started, while a unit
// already in the handler runs to completion under a context that is detached
// from ctx, so its own timeout still applies.
func (p *Pool) Run(ctx context.Context) error {
	metrics.UpdateWorkerCount(p.size)
	defer metrics.UpdateWorkerCount(0)

	units := p.queue.Dequeue(ctx)
	g := new(errgroup.Group)
	for i := 0; i < p.size; i++ {
		log := p.logger.Named("worker-" + strconv.Itoa(i))
		g.Go(func() error {
			return p.work(ctx, units, log)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		p.logger.Warn(ctx, "pool stopped by cancellation",
			logger.Int("processed", int(p.processed.Load())),
			logger.Int("abandoned", int(p.abandoned.Load())),
		)
	}
	return nil
}

func (p *Pool) work(ctx context.Context, units <-chan queue.Unit, log logger.Logger) error {
	detached := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-units:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				p.abandoned.Add(1)
				return nil
			}
			p.run(detached, u, log)
		}
	}
}

func (p *Pool) run(ctx context.Context, u model.Unit, log logger.Logger) {
	metrics.AddWorkersBusy(1)
	defer metrics.AddWorkersBusy(-1)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "handler_panic")
			log.Error(ctx, "unit handler panicked",
				logger.String("unit", u.Key()),
				logger.Error(fmt.Errorf("%v", r)),
			)
		}
	}()
	p.handler(ctx, u)
	p.processed.Add(1)
}
