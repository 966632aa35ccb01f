package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/chunker"
	"github.com/dgallion1/doctrans/internal/config"
)

// OptionsFromConfig builds translator options from loaded configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Model:              cfg.Model,
		ChapterConcurrency: cfg.ChapterConcurrency,
		Lookahead:          cfg.Lookahead,
		Chunker:            chunker.Config{MaxChars: cfg.MaxChars},
		Retry: RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
	}
}

// ErrQueueFull is returned by Submit when no queue slot is free.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("orchestrator stopped")

// Orchestrator runs queued translation jobs for the HTTP server.
type Orchestrator struct {
	jobs    *JobStore
	backend backend.Backend
	log     *slog.Logger
	cfg     config.Config
	opts    Options

	mu      sync.RWMutex // guards queue against send after close
	queue   chan *Job
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the job queue. Call Start to run workers.
func NewOrchestrator(cfg config.Config, b backend.Backend, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, max(cfg.MaxQueueSize, 1)),
		backend: b,
		log:     log,
		cfg:     cfg,
		opts:    OptionsFromConfig(cfg),
	}
}

// Start launches the workers and the expired-job sweeper.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	for id := range max(o.cfg.WorkerCount, 1) {
		w := NewWorker(o.backend, o.opts, o.cfg.WorkDir, o.log.With("worker", id))
		o.wg.Go(func() {
			for job := range o.queue {
				if ctx.Err() != nil {
					job.SetStatus(StatusFailed, "cancelled")
					continue
				}
				w.Process(ctx, job)
			}
		})
	}

	o.wg.Go(func() {
		ticker := time.NewTicker(sweepInterval(o.cfg.JobTTL))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.sweep()
			}
		}
	})
	o.log.Info("orchestrator started", "workers", max(o.cfg.WorkerCount, 1), "queue_size", cap(o.queue))
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return min(max(ttl/4, time.Second), 5*time.Minute)
}

// sweep forgets expired jobs and removes their work directories.
func (o *Orchestrator) sweep() {
	for _, id := range o.jobs.Cleanup() {
		if err := os.RemoveAll(filepath.Join(o.cfg.WorkDir, id)); err != nil {
			o.log.Warn("remove job dir failed", "job_id", id, "error", err)
			continue
		}
		o.log.Debug("job expired", "job_id", id)
	}
}

// Stop cancels running jobs, fails the queued ones and waits for the
// workers to exit. It is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit registers job and queues it without blocking.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		return ErrStopped
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d jobs)", ErrQueueFull, cap(o.queue))
	}
}

// GetJob returns a job by ID, or nil.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns the number of jobs waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
