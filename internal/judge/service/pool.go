package service

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"
)

// Judger runs one submission to completion.
type Judger interface {
	Judge(ctx context.Context, req model.SubmissionRequest) (model.Submission, error)
}

// Outcome is what a pool worker hands back for one job.
type Outcome struct {
	Submission model.Submission
	Err        error
}

const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	ctx   context.Context
	req   model.SubmissionRequest
	done  chan Outcome
	state *atomic.Int32
}

// Pool is a fixed set of workers fed from one FIFO queue. Each worker judges
// one submission at a time, so at most size submissions are in the sandbox
// at once. Submit blocks while the queue is full; it never turns a
// submission away for capacity.
type Pool struct {
	judge Judger
	size  int
	jobs  chan job
	quit  chan struct{}
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	started bool

	busy atomic.Int64
}

// NewPool creates a pool with size workers and a queue of queueSize waiting jobs.
func NewPool(judge Judger, size, queueSize int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		judge: judge,
		size:  size,
		jobs:  make(chan job, queueSize),
		quit:  make(chan struct{}),
	}
}

// Start launches the workers. Calling it again has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			p.run(id, j)
		}
	}
}

func (p *Pool) run(id int, j job) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(j.ctx, "judge worker panic", zap.Int("worker", id), zap.Any("panic", r))
			j.done <- Outcome{Err: appErr.Newf(appErr.JudgeSystemError, "judge worker panic: %v", r)}
		}
	}()
	if !j.state.CompareAndSwap(jobQueued, jobRunning) {
		return
	}
	if err := j.ctx.Err(); err != nil {
		j.done <- Outcome{Err: err}
		return
	}
	sub, err := p.judge.Judge(j.ctx, j.req)
	j.done <- Outcome{Submission: sub, Err: err}
}

// Submit queues req and returns a channel that receives its outcome once.
// It blocks while the queue is full, until ctx ends or the pool stops.
func (p *Pool) Submit(ctx context.Context, req model.SubmissionRequest) (<-chan Outcome, error) {
	j, err := p.enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	return j.done, nil
}

func (p *Pool) enqueue(ctx context.Context, req model.SubmissionRequest) (job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return job{}, appErr.New(appErr.JudgePoolShutdown)
	}
	j := job{ctx: ctx, req: req, done: make(chan Outcome, 1), state: new(atomic.Int32)}
	select {
	case p.jobs <- j:
		return j, nil
	case <-ctx.Done():
		return job{}, ctx.Err()
	}
}

// Judge queues req and waits for its outcome. When ctx ends while the job
// is still queued, the job is abandoned and ctx's error returned. Once a
// worker has started it, Judge waits for the worker: the pipeline honours
// ctx, and an interrupted submission must reach the caller.
func (p *Pool) Judge(ctx context.Context, req model.SubmissionRequest) (model.Submission, error) {
	j, err := p.enqueue(ctx, req)
	if err != nil {
		return model.Submission{}, err
	}
	select {
	case out := <-j.done:
		return out.Submission, out.Err
	case <-ctx.Done():
	}
	if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
		return model.Submission{}, ctx.Err()
	}
	out := <-j.done
	return out.Submission, out.Err
}

// Stop lets running jobs finish, then fails every job still queued.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
	for {
		select {
		case j := <-p.jobs:
			j.done <- Outcome{Err: appErr.New(appErr.JudgePoolShutdown)}
		default:
			return
		}
	}
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// Busy is the number of workers currently judging.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Queued is the number of jobs waiting for a worker.
func (p *Pool) Queued() int { return len(p.jobs) }
