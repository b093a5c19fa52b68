// Package worker runs tasks one at a time on a dedicated goroutine, in the
// order they were submitted.
package worker

import (
	"sync"
)

type Task interface{}

type taskStop struct{}

type TaskHandler interface {
	Handle(t Task)
}

// Starter is implemented by handlers that need to run something on the
// worker goroutine before the first task.
type Starter interface {
	Start()
}

type Worker struct {
	name  string
	tasks chan Task
	wg    *sync.WaitGroup

	// mu orders sends on tasks with the stop marker, so nothing is queued
	// behind it.
	mu      sync.Mutex
	stopped bool
}

const defaultWorkerCapacity = 128

// NewWorker creates a worker whose goroutine is tracked by wg. A capacity of
// zero or less uses the default queue size.
func NewWorker(name string, capacity int, wg *sync.WaitGroup) *Worker {
	if capacity <= 0 {
		capacity = defaultWorkerCapacity
	}
	return &Worker{
		name:  name,
		tasks: make(chan Task, capacity),
		wg:    wg,
	}
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) Start(handler TaskHandler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if s, ok := handler.(Starter); ok {
			s.Start()
		}
		for t := range w.tasks {
			if _, ok := t.(taskStop); ok {
				return
			}
			handler.Handle(t)
		}
	}()
}

// Submit queues t. It blocks while the queue is full and returns false once
// the worker has been stopped.
func (w *Worker) Submit(t Task) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.tasks <- t
	return true
}

// Stop lets the worker finish the tasks queued so far and exit. Later calls
// are no-ops.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.tasks <- taskStop{}
}
