package common

import (
	"sync"

	"github.com/hashicorp/go-hclog"
)

type Job struct {
	Name    string
	Execute func() error
}

// JobQueue executes jobs one at a time in the order they were added.
// Add never blocks, failed jobs are logged and dropped.
type JobQueue struct {
	queue    CircularQueue[Job]
	mutex    sync.Mutex
	notEmpty *sync.Cond
	running  bool
	started  bool
	closed   bool
	doneCh   chan struct{}
	logger   hclog.Logger
}

func NewJobQueue(logger hclog.Logger) *JobQueue {
	jq := &JobQueue{
		queue:  NewCircularQueue[Job](16),
		doneCh: make(chan struct{}),
		logger: logger,
	}

	jq.notEmpty = sync.NewCond(&jq.mutex)

	return jq
}

// Start runs the worker. Calling it more than once has no effect.
func (jq *JobQueue) Start() {
	jq.mutex.Lock()
	defer jq.mutex.Unlock()

	if jq.started || jq.closed {
		return
	}

	jq.started = true

	go jq.runWorker()
}

// Add appends a job and returns false if the queue is closed
func (jq *JobQueue) Add(name string, job func() error) bool {
	jq.mutex.Lock()
	defer jq.mutex.Unlock()

	if jq.closed {
		return false
	}

	jq.queue.Push(Job{Name: name, Execute: job})
	jq.notEmpty.Signal()

	return true
}

// Clear drops pending jobs, the running one is not affected
func (jq *JobQueue) Clear() {
	jq.mutex.Lock()
	defer jq.mutex.Unlock()

	jq.queue.Clear()
}

// Close drops pending jobs and stops the worker once the current job is done
func (jq *JobQueue) Close() error {
	jq.mutex.Lock()
	defer jq.mutex.Unlock()

	if !jq.closed {
		jq.closed = true
		jq.queue.Clear()
		jq.notEmpty.Broadcast()

		if !jq.started {
			close(jq.doneCh)
		}
	}

	return nil
}

// Done is closed when the worker has stopped
func (jq *JobQueue) Done() <-chan struct{} {
	return jq.doneCh
}

// IsIdle returns true if there is no pending or running job
func (jq *JobQueue) IsIdle() bool {
	jq.mutex.Lock()
	defer jq.mutex.Unlock()

	return !jq.running && jq.queue.Len() == 0
}

func (jq *JobQueue) Len() int {
	jq.mutex.Lock()
	defer jq.mutex.Unlock()

	return jq.queue.Len()
}

func (jq *JobQueue) runWorker() {
	defer close(jq.doneCh)

	for {
		job, ok := jq.next()
		if !ok {
			return
		}

		if err := job.Execute(); err != nil {
			jq.logger.Error("Job failed", "name", job.Name, "err", err)
		}

		jq.mutex.Lock()
		jq.running = false
		jq.mutex.Unlock()
	}
}

func (jq *JobQueue) next() (Job, bool) {
	jq.mutex.Lock()
	defer jq.mutex.Unlock()

	for jq.queue.Len() == 0 && !jq.closed {
		jq.notEmpty.Wait()
	}

	if jq.closed {
		return Job{}, false
	}

	job, _ := jq.queue.Pop()
	jq.running = true

	return job, true
}
