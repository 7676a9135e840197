// Package job provides a fixed worker pool fed by a priority queue. It is an
// asset-loading collaborator: scene loading pushes file reads through it, and
// the hierarchy/transform core never touches it.
package job

import (
	"container/heap"
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// maxWorkers caps the pool regardless of CPU count; file loading is
// IO-bound and does not benefit from more.
const maxWorkers = 8

// Job is a unit of work. Higher Priority values run first.
type Job struct {
	Name     string
	Priority int
	Run      func(ctx context.Context) error
}

// ErrPoolClosed is reported for jobs submitted after Shutdown.
var ErrPoolClosed = errors.New("job: pool closed")

type queued struct {
	job  Job
	ctx  context.Context
	done chan error
	seq  uint64
}

// Pool runs submitted jobs on a fixed set of workers, highest priority
// first, FIFO within a priority.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  jobHeap
	seq    uint64
	closed bool
	wg     sync.WaitGroup
	log    *zap.Logger
}

// NewPool starts a pool with the given worker count; zero or negative
// selects min(GOMAXPROCS, 8).
func NewPool(workers int, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	p := &Pool{log: log}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a job and returns a channel that receives the job's error
// (possibly nil) exactly once and is then closed. ctx is passed through to
// the job's Run; a ctx already canceled by the time the job is dequeued
// short-circuits the run.
func (p *Pool) Submit(ctx context.Context, j Job) <-chan error {
	done := make(chan error, 1)
	if j.Run == nil {
		done <- errors.New("job: nil Run")
		close(done)
		return done
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		done <- ErrPoolClosed
		close(done)
		return done
	}
	p.seq++
	heap.Push(&p.queue, &queued{job: j, ctx: ctx, done: done, seq: p.seq})
	p.mu.Unlock()
	p.cond.Signal()
	return done
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		q := heap.Pop(&p.queue).(*queued)
		p.mu.Unlock()

		err := q.ctx.Err()
		if err == nil {
			err = q.job.Run(q.ctx)
		}
		if err != nil {
			p.log.Warn("job failed",
				zap.String("job", q.job.Name),
				zap.Int("priority", q.job.Priority),
				zap.Error(err))
		}
		q.done <- err
		close(q.done)
	}
}

// Shutdown stops accepting jobs and waits for the queue to drain and all
// workers to exit, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	waited := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobHeap orders by descending priority, then submission order.
type jobHeap []*queued

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*queued)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
