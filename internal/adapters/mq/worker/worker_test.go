package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/graftloss/internal/adapters/mq/queue"
	worker "github.com/okian/graftloss/internal/adapters/mq/worker"
	model "github.com/okian/graftloss/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func fill(q *queue.InMemoryQueue, n int) {
	for s := 0; s < n; s++ {
		q.Enqueue(context.Background(), model.Unit{Model: "coxph", Split: s})
	}
}

func TestPool_DrainsQueue(t *testing.T) {
	convey.Convey("Given a queue of units", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		fill(q, 40)
		_ = q.Close()

		var mu sync.Mutex
		seen := make(map[int]int)
		var active, peak atomic.Int64
		h := func(_ context.Context, u model.Unit) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			mu.Lock()
			seen[u.Split]++
			mu.Unlock()
		}

		convey.Convey("When a pool of 4 runs", func() {
			p := worker.NewPool(q, h, worker.WithWorkerCount(4), worker.WithName("test-pool"))
			err := p.Run(context.Background())

			convey.Convey("Then every unit is handled exactly once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.Size(), convey.ShouldEqual, 4)
				convey.So(p.Processed(), convey.ShouldEqual, 40)
				convey.So(len(seen), convey.ShouldEqual, 40)
				for _, c := range seen {
					convey.So(c, convey.ShouldEqual, 1)
				}
			})

			convey.Convey("And concurrency never exceeds the pool size", func() {
				convey.So(peak.Load(), convey.ShouldBeLessThanOrEqualTo, 4)
			})
		})
	})
}

func TestPool_Cancellation(t *testing.T) {
	convey.Convey("Given a pool whose first unit blocks", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		fill(q, 10)

		started := make(chan struct{})
		release := make(chan struct{})
		var inFlightErr atomic.Value
		var handled atomic.Int64
		h := func(ctx context.Context, u model.Unit) {
			if u.Split == 0 {
				close(started)
				<-release
				inFlightErr.Store(ctx.Err() == nil)
			}
			handled.Add(1)
		}

		convey.Convey("When the run is cancelled mid-flight", func() {
			ctx, cancel := context.WithCancel(context.Background())
			p := worker.NewPool(q, h, worker.WithWorkerCount(1))
			done := make(chan error, 1)
			go func() { done <- p.Run(ctx) }()

			<-started
			cancel()
			close(release)
			err := <-done

			convey.Convey("Then the in-flight unit finishes with a live context", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(inFlightErr.Load(), convey.ShouldEqual, true)
			})

			convey.Convey("And no further units are started", func() {
				convey.So(handled.Load(), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestPool_HandlerPanic(t *testing.T) {
	convey.Convey("Given a handler that panics on one unit", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		fill(q, 3)
		_ = q.Close()

		var handled atomic.Int64
		h := func(_ context.Context, u model.Unit) {
			if u.Split == 1 {
				panic("bad unit")
			}
			handled.Add(1)
		}

		convey.Convey("When the pool runs", func() {
			p := worker.NewPool(q, h, worker.WithWorkerCount(2))

			convey.Convey("Then the panic is contained", func() {
				convey.So(func() { _ = p.Run(context.Background()) }, convey.ShouldNotPanic)
				convey.So(handled.Load(), convey.ShouldEqual, 2)
				convey.So(p.Processed(), convey.ShouldEqual, 2)
			})
		})
	})
}
