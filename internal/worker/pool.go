package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	tasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "worker",
		Name:      "tasks_enqueued_total",
		Help:      "Number of background tasks accepted into the queue.",
	})
	tasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "worker",
		Name:      "tasks_rejected_total",
		Help:      "Number of background tasks rejected because the queue was full or the pool closed.",
	})
	tasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "worker",
		Name:      "tasks_completed_total",
		Help:      "Number of background tasks finished, by outcome.",
	}, []string{"outcome"})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aula",
		Subsystem: "worker",
		Name:      "queue_depth",
		Help:      "Current number of tasks waiting in the queue.",
	})
)

var (
	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolClosed is returned when the pool is shutting down.
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Task is a unit of background work. Panics inside the task are recovered by
// the pool so a bad task cannot take a worker down.
type Task func(ctx context.Context)

// PoolConfig controls concurrency and backlog of the pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
	Logger    zerolog.Logger
}

// Pool runs tasks on a fixed set of goroutines with a bounded queue. Enqueue
// never blocks the caller.
type Pool struct {
	queue  chan Task
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool

	wg sync.WaitGroup
}

// NewPool creates and starts the pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	p := &Pool{
		queue:  make(chan Task, cfg.QueueSize),
		logger: cfg.Logger.With().Str("component", "worker_pool").Logger(),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}

	p.logger.Info().Int("workers", cfg.Workers).Int("queue_size", cfg.QueueSize).Msg("worker pool started")
	return p
}

// Enqueue submits a task for asynchronous execution.
func (p *Pool) Enqueue(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		tasksRejected.Inc()
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		tasksEnqueued.Inc()
		queueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		tasksRejected.Inc()
		return ErrQueueFull
	}
}

// Shutdown stops accepting new tasks and waits for queued ones to drain, up
// to the context deadline. Tasks still running when the deadline fires are
// abandoned to their own context handling.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		p.logger.Warn().Msg("worker pool shutdown deadline reached before drain")
		return ctx.Err()
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for task := range p.queue {
		queueDepth.Set(float64(len(p.queue)))
		p.execute(id, task)
	}
}

func (p *Pool) execute(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			tasksCompleted.WithLabelValues("panic").Inc()
			p.logger.Error().Int("worker", id).Interface("panic", r).Msg("background task panicked")
		}
	}()

	task(context.Background())
	tasksCompleted.WithLabelValues("ok").Inc()
}
