// Package queue implements the bounded single-worker priority FIFO that
// sits between RPC request handling and the two inference back-ends: a
// generate request that misses the cache is appended here, and exactly one
// worker goroutine pops and processes jobs strictly serially.
package queue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Priority controls FIFO insertion order: a high-priority job is inserted
// ahead of every normal-priority job already queued, while jobs of the same
// priority stay in submission order.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// ErrQueueFull is returned by Enqueue when the admission bound is already
// reached.
var ErrQueueFull = fmt.Errorf("queue: admission bound reached")

// Request is the back-end-agnostic, already-validated payload a job
// carries. Back-end-specific settings are plain fields filled in by the
// caller (internal/rpc), which keeps this package free of a dependency on
// either inference engine.
type Request struct {
	Prompt      string
	DurationSec int
	Seed        uint64
	Backend     string
	Priority    Priority

	// Diffusion-only; ignored by the AR back-end.
	InferenceSteps int
	Scheduler      string
	GuidanceScale  float64
}

// Job tracks one generation request end to end. CurrentStep/TotalStep/
// Percent are updated by the active engine as it runs; Cancelled is
// observed cooperatively by the engine between decode/diffusion steps.
type Job struct {
	JobID   string
	TrackID string
	Request Request

	mu             sync.Mutex
	status         Status
	queuePosition  int
	currentStep    int
	totalSteps     int
	percent        int
	errorKind      string
	errorMessage   string
	submittedAt    time.Time
	startedAt      time.Time
	endedAt        time.Time
	cancelledAtStep int

	cancelled atomic.Bool
}

func newJob(req Request, trackID string) *Job {
	return &Job{
		JobID:       uuid.New().String(),
		TrackID:     trackID,
		Request:     req,
		status:      StatusQueued,
		submittedAt: time.Now(),
	}
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.status
}

// Progress returns the current step counters and percent, matching the
// generation_progress notification fields.
func (j *Job) Progress() (current, total, percent int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.currentStep, j.totalSteps, j.percent
}

// SetTotalSteps records the total step count once the engine knows it
// (N for AR, S for diffusion).
func (j *Job) SetTotalSteps(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.totalSteps = total
}

// Advance records progress at step current out of the total set by
// SetTotalSteps. Percent is clamped to 99 until the job reaches a terminal
// state, per spec invariant (d).
func (j *Job) Advance(current int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.currentStep = current

	if j.totalSteps <= 0 {
		return
	}

	pct := 99 * current / j.totalSteps
	if pct > 99 {
		pct = 99
	}

	if pct > j.percent {
		j.percent = pct
	}
}

// Cancel flips the cooperative cancellation flag. Safe to call from any
// goroutine; the active engine observes it at the next step boundary.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called for this job.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// markGenerating transitions a queued job to generating and records the
// start time.
func (j *Job) markGenerating() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusGenerating
	j.startedAt = time.Now()
}

// markComplete transitions a job to its complete terminal state.
func (j *Job) markComplete() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusComplete
	j.percent = 100
	j.endedAt = time.Now()
}

// markFailed transitions a job to failed with the given stable error kind
// and a human message.
func (j *Job) markFailed(kind, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusFailed
	j.errorKind = kind
	j.errorMessage = message
	j.endedAt = time.Now()
}

// markCancelled transitions a job to cancelled, recording the step at which
// the engine stopped.
func (j *Job) markCancelled(atStep int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusCancelled
	j.cancelledAtStep = atStep
	j.endedAt = time.Now()
}

// CancelledAtStep returns the step recorded by markCancelled.
func (j *Job) CancelledAtStep() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.cancelledAtStep
}

// Error returns the stable error kind and human message recorded by
// markFailed.
func (j *Job) Error() (kind, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.errorKind, j.errorMessage
}

// Timestamps returns the submission/start/end times; zero values mean the
// job has not reached that stage yet.
func (j *Job) Timestamps() (submitted, started, ended time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.submittedAt, j.startedAt, j.endedAt
}

func (j *Job) setQueuePosition(pos int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.queuePosition = pos
}

// QueuePosition returns the job's 1-based position among still-queued jobs.
// Positions are renumbered whenever a job is enqueued, popped, or cancelled
// out of the waiting list.
func (j *Job) QueuePosition() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.queuePosition
}

// Queue is a bounded priority FIFO guarded by a mutex and condition
// variable: high-priority jobs are inserted ahead of every normal-priority
// job already waiting, preserving FIFO order within each priority class.
type Queue struct {
	admissionBound int

	mu      sync.Mutex
	cond    *sync.Cond
	waiting []*Job
	active  *Job
	byID    map[string]*Job // jobID -> job, covers queued/active/terminal for Cancel/lookup
	closed  bool
}

// NewQueue constructs a queue with the given admission bound (maximum
// number of jobs waiting, not counting the active job).
func NewQueue(admissionBound int) *Queue {
	q := &Queue{
		admissionBound: admissionBound,
		byID:           make(map[string]*Job),
	}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// Len returns the number of jobs currently waiting (excludes the active job).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.waiting)
}

// Enqueue admits a new job for trackID if the admission bound allows it and
// returns the job; its 1-based queue position is available from
// job.QueuePosition(). Returns ErrQueueFull
// once len(waiting) == admissionBound, per spec invariant (e).
func (q *Queue) Enqueue(req Request, trackID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.admissionBound > 0 && len(q.waiting) >= q.admissionBound {
		return nil, ErrQueueFull
	}

	job := newJob(req, trackID)

	if req.Priority == PriorityHigh {
		insertAt := 0
		for insertAt < len(q.waiting) && q.waiting[insertAt].Request.Priority == PriorityHigh {
			insertAt++
		}

		q.waiting = append(q.waiting, nil)
		copy(q.waiting[insertAt+1:], q.waiting[insertAt:])
		q.waiting[insertAt] = job
	} else {
		q.waiting = append(q.waiting, job)
	}

	q.renumber()
	q.byID[job.JobID] = job

	q.cond.Signal()

	return job, nil
}

// Lookup returns a job by id regardless of its current state (queued,
// active, or terminal), used by cancel and status RPC handlers.
func (q *Queue) Lookup(jobID string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.byID[jobID]

	return j, ok
}

// LookupByTrack returns the most recently submitted job for trackID, used
// because cancel() in the RPC surface is keyed by track_id rather than
// job_id.
func (q *Queue) LookupByTrack(trackID string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var found *Job

	for _, j := range q.byID {
		if j.TrackID != trackID {
			continue
		}

		if found == nil || j.submittedAt.After(found.submittedAt) {
			found = j
		}
	}

	return found, found != nil
}

// CancelByTrack cancels the job matching trackID. If the job is still
// queued it is marked cancelled, removed immediately and reported as
// not-generating; sending the generation_cancelled notification is left to
// the caller. If it is the active job,
// the cooperative flag is flipped and the active engine is responsible for
// reaching a checkpoint and finishing the cancellation.
func (q *Queue) CancelByTrack(trackID string) (cancelled, wasGenerating bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active != nil && q.active.TrackID == trackID {
		q.active.Cancel()
		return true, true
	}

	for i, j := range q.waiting {
		if j.TrackID != trackID {
			continue
		}

		j.Cancel()
		j.markCancelled(0)
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
		q.renumber()

		return true, false
	}

	return false, false
}

func (q *Queue) renumber() {
	for i, j := range q.waiting {
		j.setQueuePosition(i + 1)
	}
}

// Pop blocks until a job is available, marks it active and generating, and
// returns it. Returns (nil, false) if Close was called and no job remains.
func (q *Queue) Pop() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.waiting) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.waiting) == 0 {
		return nil, false
	}

	job := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.renumber()
	q.active = job

	job.markGenerating()

	return job, true
}

// Finish clears the active job slot. Called by the worker after a job
// reaches any terminal state.
func (q *Queue) Finish(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == job {
		q.active = nil
	}
}

// Close unblocks any goroutine parked in Pop, used during daemon shutdown
// once the queue should stop accepting new work to process.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()
}

// ActiveJob returns the job currently being processed, if any. Used to
// enforce spec invariant (b): at most one job in the generating state.
func (q *Queue) ActiveJob() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.active, q.active != nil
}
