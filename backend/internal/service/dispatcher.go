package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/itchan-dev/itforum/shared/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatcherTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itforum",
			Subsystem: "dispatcher",
			Name:      "tasks_total",
			Help:      "Total number of background tasks by outcome",
		},
		[]string{"task", "result"},
	)

	dispatcherTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "itforum",
			Subsystem: "dispatcher",
			Name:      "task_duration_seconds",
			Help:      "Background task duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"task"},
	)
)

// Task is a side effect that runs after the primary operation committed.
type Task func(ctx context.Context) error

// Dispatcher runs tasks off the request path. Tasks with the same routing key
// run in submission order; failures are logged and counted, never returned.
type Dispatcher interface {
	Dispatch(routingKey, name string, task Task)
	Shutdown()
}

type taskMsg struct {
	id   uuid.UUID
	name string
	task Task
}

// runTask executes one task under a timeout and records the outcome.
func runTask(msg *taskMsg, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return msg.task(ctx)
	}()
	dispatcherTaskDuration.WithLabelValues(msg.name).Observe(time.Since(start).Seconds())

	if err != nil {
		dispatcherTasksTotal.WithLabelValues(msg.name, "error").Inc()
		logger.Log.Error("background task failed", "task", msg.name, "task_id", msg.id, "error", err)
		return
	}
	dispatcherTasksTotal.WithLabelValues(msg.name, "ok").Inc()
}

type worker struct {
	timeout time.Duration
}

func (w *worker) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *taskMsg:
		runTask(msg, w.timeout)
	}
}

// ActorDispatcher spreads tasks over a fixed pool of actors. The worker is
// chosen by hashing the routing key, so one user's tasks never reorder.
type ActorDispatcher struct {
	system  *actor.ActorSystem
	workers []*actor.PID
	closed  atomic.Bool
}

func NewActorDispatcher(workers int, timeout time.Duration) *ActorDispatcher {
	if workers < 1 {
		workers = 1
	}
	system := actor.NewActorSystem()
	d := &ActorDispatcher{system: system, workers: make([]*actor.PID, workers)}
	for i := range d.workers {
		props := actor.PropsFromProducer(func() actor.Actor {
			return &worker{timeout: timeout}
		})
		d.workers[i] = system.Root.Spawn(props)
	}
	logger.Log.Info("started dispatcher", "workers", workers, "task_timeout", timeout)
	return d
}

func (d *ActorDispatcher) Dispatch(routingKey, name string, task Task) {
	if d.closed.Load() {
		dispatcherTasksTotal.WithLabelValues(name, "dropped").Inc()
		logger.Log.Warn("dispatcher is shut down, task dropped", "task", name)
		return
	}
	pid := d.workers[xxhash.Sum64String(routingKey)%uint64(len(d.workers))]
	d.system.Root.Send(pid, &taskMsg{id: uuid.New(), name: name, task: task})
}

// Shutdown stops accepting tasks and waits until queued ones have run.
func (d *ActorDispatcher) Shutdown() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	for _, pid := range d.workers {
		// the poison pill queues behind pending tasks
		if err := d.system.Root.PoisonFuture(pid).Wait(); err != nil {
			logger.Log.Warn("dispatcher worker did not stop cleanly", "pid", pid.String(), "error", err)
		}
	}
	logger.Log.Info("dispatcher stopped")
}

// InlineDispatcher runs tasks synchronously on the caller's goroutine.
// Used by tests and one-shot CLI commands.
type InlineDispatcher struct {
	Timeout time.Duration
}

func (d InlineDispatcher) Dispatch(routingKey, name string, task Task) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	runTask(&taskMsg{id: uuid.New(), name: name, task: task}, timeout)
}

func (d InlineDispatcher) Shutdown() {}
