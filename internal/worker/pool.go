// Package worker provides the bounded dispatcher that event consumers hand
// their message handling off to. Each inbound source gets its own
// dispatcher so a slow stream never starves the others.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by Submit when the task queue has no room.
var ErrQueueFull = errors.New("worker: task queue full")

// Task is a unit of work pulled off a message stream.
type Task interface {
	Run(ctx context.Context) error
	ID() string
}

// worker pulls tasks from its own channel, re-registering that channel
// with the shared pool after every task.
type worker struct {
	id    int
	pool  chan chan Task
	tasks chan Task
	log   *logrus.Logger
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.pool <- w.tasks:
			case <-ctx.Done():
				return
			}

			select {
			case task := <-w.tasks:
				entry := w.log.WithFields(logrus.Fields{
					"worker": w.id,
					"task":   task.ID(),
				})
				if err := task.Run(ctx); err != nil {
					entry.WithError(err).Error("task failed")
				} else {
					entry.Debug("task finished")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Dispatcher fans queued tasks out to a fixed set of workers.
type Dispatcher struct {
	maxWorkers int
	pool       chan chan Task
	queue      chan Task
	log        *logrus.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewDispatcher sizes the pool. maxWorkers bounds concurrency, queueSize
// bounds how far the consumer may run ahead of the workers.
func NewDispatcher(maxWorkers, queueSize int, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		maxWorkers: maxWorkers,
		pool:       make(chan chan Task, maxWorkers),
		queue:      make(chan Task, queueSize),
		log:        log,
	}
}

// Run starts the workers and the dispatch loop. It returns immediately;
// the dispatcher runs until ctx is cancelled or Stop is called.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	for i := 1; i <= d.maxWorkers; i++ {
		w := &worker{id: i, pool: d.pool, tasks: make(chan Task), log: d.log}
		w.start(ctx, &d.wg)
	}

	d.wg.Add(1)
	go d.dispatch(ctx)
	d.log.WithField("workers", d.maxWorkers).Info("dispatcher running")
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case task := <-d.queue:
			select {
			case tasks := <-d.pool:
				// The worker that parked this channel may have exited on
				// cancellation; the handoff must not outlive the context.
				select {
				case tasks <- task:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Submit queues a task without blocking. A full queue is the caller's
// signal to slow the upstream read, not a reason to drop silently.
func (d *Dispatcher) Submit(task Task) error {
	select {
	case d.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels the workers and waits for in-flight tasks to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		d.log.Info("dispatcher stopped")
	})
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

func (t TaskFunc) ID() string { return t.Name }
