package queue

import (
	"github.com/example/musicdaemon/internal/apierr"
)

// Handler runs the actual back-end inference for job, threading progress
// updates through job.SetTotalSteps/job.Advance and checking job.Cancelled()
// at each safe checkpoint. A non-nil return is only ever treated as a
// genuine failure if the job was not itself cancelled; a handler that
// unwinds in response to cancellation should simply return nil (or the
// context's cancellation error, which the worker ignores in that case).
type Handler func(job *Job) error

// Notifier receives the three possible terminal events for a job, matching
// spec §4.2's worker boundary: exactly one of these fires per job.
type Notifier struct {
	OnComplete  func(job *Job)
	OnError     func(job *Job, apiErr *apierr.Error)
	OnCancelled func(job *Job, atStep int)
}

// Worker pops jobs from a Queue strictly serially and runs Handler on each,
// guaranteeing spec invariant (b): at most one job is ever in the
// generating state. A failed job never crashes the daemon — the worker
// catches the handler's error at this boundary and continues to the next
// job, per spec §4.2's failure policy.
type Worker struct {
	queue    *Queue
	handler  Handler
	notifier Notifier
}

// NewWorker constructs a worker bound to queue, handler, and notifier.
func NewWorker(queue *Queue, handler Handler, notifier Notifier) *Worker {
	return &Worker{queue: queue, handler: handler, notifier: notifier}
}

// Run pops and processes jobs until the queue is closed and drained. Meant
// to run in its own goroutine for the lifetime of the daemon process.
func (w *Worker) Run() {
	for {
		job, ok := w.queue.Pop()
		if !ok {
			return
		}

		w.process(job)
	}
}

func (w *Worker) process(job *Job) {
	defer w.queue.Finish(job)

	err := w.handler(job)

	if job.Cancelled() {
		current, _, _ := job.Progress()
		job.markCancelled(current)

		if w.notifier.OnCancelled != nil {
			w.notifier.OnCancelled(job, current)
		}

		return
	}

	if err != nil {
		apiErr := apierr.As(err)
		job.markFailed(string(apiErr.Kind), apiErr.Message)

		if w.notifier.OnError != nil {
			w.notifier.OnError(job, apiErr)
		}

		return
	}

	job.markComplete()

	if w.notifier.OnComplete != nil {
		w.notifier.OnComplete(job)
	}
}
