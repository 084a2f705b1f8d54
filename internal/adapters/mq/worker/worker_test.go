package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/bnstats/internal/adapters/mq/queue"
	"github.com/okian/bnstats/internal/adapters/mq/worker"
	"github.com/okian/bnstats/internal/domain/model"
	logging "github.com/okian/bnstats/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	close(mq.jobs)
	return nil
}

type recordingProcessor struct {
	mu   sync.Mutex
	seen []int64
	fail map[int64]error
}

func (p *recordingProcessor) Process(_ context.Context, j queue.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, j.Moderator.ID)
	if j.Moderator.ID == 99 {
		panic("bad moderator")
	}
	return p.fail[j.Moderator.ID]
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func waitFor(j queue.Job) (queue.Job, <-chan error) {
	res := make(chan error, 1)
	j.Done = func(err error) { res <- err }
	return j, res
}

func TestInMemoryWorker(t *testing.T) {
	_ = logging.InitWithWriter(&discard{})

	convey.Convey("Given a running worker", t, func() {
		mq := newMockQueue()
		proc := &recordingProcessor{fail: map[int64]error{2: errors.New("activity fetch failed")}}
		w := worker.NewInMemoryWorker(mq, proc, worker.WithName("test-worker"), worker.WithLogger(logging.NewNop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job succeeds", func() {
			j, res := waitFor(queue.Job{Moderator: model.User{ID: 1}})
			mq.jobs <- j

			convey.Convey("Then Done receives nil", func() {
				convey.So(<-res, convey.ShouldBeNil)
				convey.So(proc.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a job fails", func() {
			j, res := waitFor(queue.Job{Moderator: model.User{ID: 2}})
			mq.jobs <- j

			convey.Convey("Then Done receives the error and the worker keeps going", func() {
				convey.So(<-res, convey.ShouldNotBeNil)
				next, res2 := waitFor(queue.Job{Moderator: model.User{ID: 3}})
				mq.jobs <- next
				convey.So(<-res2, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a job panics", func() {
			j, res := waitFor(queue.Job{Moderator: model.User{ID: 99}})
			mq.jobs <- j

			convey.Convey("Then the panic is reported as an error", func() {
				err := <-res
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "panic")
			})
		})

		convey.Convey("When shutting down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then it stops gracefully", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over an in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		var processed atomic.Int32
		p := worker.NewPool(4, q, worker.ProcessorFunc(func(context.Context, queue.Job) error {
			processed.Add(1)
			return nil
		}))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)

		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many jobs are enqueued and the pool shuts down", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				ok := q.Enqueue(ctx, queue.Job{Moderator: model.User{ID: int64(i)}, Done: func(error) { wg.Done() }})
				convey.So(ok, convey.ShouldBeTrue)
			}
			wg.Wait()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			err := p.Shutdown(sctx)

			convey.Convey("Then every job was processed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(processed.Load(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool without an explicit size", t, func() {
		p := worker.NewPool(0, newMockQueue(), worker.ProcessorFunc(func(context.Context, queue.Job) error { return nil }))

		convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
