package task

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// HandlerFunc processes one task id taken from the queue.
type HandlerFunc func(workerID int, id string)

// WorkerPool manages a pool of worker goroutines that read task ids
// from a channel. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// ids is the channel of task ids to be processed
	ids <-chan string

	// workerCount is the number of concurrent workers to start
	workerCount int

	// handler is called for every id a worker receives
	handler HandlerFunc

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// alive counts workers that are currently running
	alive atomic.Int32

	// ctx is cancelled to stop workers taking new ids
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// NewWorkerPool creates a new worker pool reading from ids.
func NewWorkerPool(ids <-chan string, config WorkerPoolConfig, handler HandlerFunc, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		ids:         ids,
		workerCount: workerCount,
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker_pool"),
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		p.alive.Add(1)
		go p.worker(i)
	}
}

// Stop signals workers to stop taking ids and returns a channel that is
// closed once every worker has returned. Ids already handed to a worker are
// processed to completion.
func (p *WorkerPool) Stop() <-chan struct{} {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	return done
}

// Alive returns the number of running workers.
func (p *WorkerPool) Alive() int {
	return int(p.alive.Load())
}

// Size returns the configured worker count.
func (p *WorkerPool) Size() int {
	return p.workerCount
}

func (p *WorkerPool) worker(id int) {
	defer func() {
		p.alive.Add(-1)
		p.wg.Done()
	}()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		// Checked first so a closed pool never picks up buffered ids.
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return
		default:
		}

		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return
		case taskID, ok := <-p.ids:
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			p.handler(id, taskID)
		}
	}
}
