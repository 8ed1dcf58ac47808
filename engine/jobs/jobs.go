package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

var (
	ErrNoWorkers           = errors.New("attempting to create worker pool with less than 1 worker")
	ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
	ErrShutdown            = errors.New("job system is shut down")
)

// Task is a unit of work. OnStart receives the index of the worker running
// it, which stays stable for the life of the system. Exactly one of
// OnComplete and OnFailure is called, then OnCompletionCallback.
type Task struct {
	Name                 string
	OnStart              func(worker int) error
	OnComplete           func()
	OnFailure            func(err error)
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan Task
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Task, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) NumWorkers() int {
	return js.numWorkers
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func(worker int) {
			defer js.wg.Done()
			for task := range js.jobQueue {
				js.run(worker, task)
			}
		}(i)
	}
}

func (js *JobSystem) run(worker int, task Task) {
	err := runRecovered(worker, task)
	if err != nil {
		core.LogError("job %q failed on worker %d: %v", task.Name, worker, err)
		if task.OnFailure != nil {
			task.OnFailure(err)
		}
	} else if task.OnComplete != nil {
		task.OnComplete()
	}

	if task.OnCompletionCallback != nil {
		task.OnCompletionCallback()
	}
}

// runRecovered turns a panicking task into a failed one so a worker never dies.
func runRecovered(worker int, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if task.OnStart == nil {
		return nil
	}
	return task.OnStart(worker)
}

// Submit queues a task, blocking while the queue is full.
func (js *JobSystem) Submit(task Task) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrShutdown
	}
	js.jobQueue <- task
	return nil
}

// Shutdown drains the queue and waits for the workers to exit.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}
