package broadcast

import (
	"sync"
	"time"
)

// Registry is the in-memory table of broadcast jobs. One mutex serializes
// status/progress writes from concurrently running scheduler goroutines;
// reads return value copies so callers never hold live references.
//
// Read paths never fail on a missing id: callers get ok=false and are
// expected to treat a vanished job as "already gone, stop silently" (a
// long-running run can race a sweep).
type Registry struct {
	mu   sync.Mutex
	jobs map[int]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[int]*Job{}}
}

// NextID returns max key + 1 (1 when empty). Callers holding the launch path
// serialize creation; there is no reservation.
func (r *Registry) NextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextIDLocked()
}

func (r *Registry) nextIDLocked() int {
	next := 1
	for id := range r.jobs {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// Create inserts a job under the given id. No overwrite protection; the
// caller must have produced a fresh id.
func (r *Registry) Create(id int, job Job) {
	job.ID = id
	r.mu.Lock()
	r.jobs[id] = &job
	r.mu.Unlock()
}

func (r *Registry) Get(id int) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil {
		return Job{}, false
	}
	return *j, true
}

// StatusOf is a cheap status probe for the scheduler's per-send check.
func (r *Registry) StatusOf(id int) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil {
		return "", false
	}
	return j.Status, true
}

// ListForUser returns the user's jobs, optionally filtered by status.
func (r *Registry) ListForUser(userID int64, statuses ...Status) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, j := range r.jobs {
		if j.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !statusIn(j.Status, statuses) {
			continue
		}
		out = append(out, *j)
	}
	return out
}

// ListGroup returns the user's jobs sharing a group id.
func (r *Registry) ListGroup(userID int64, groupID int) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, j := range r.jobs {
		if j.UserID == userID && j.GroupID == groupID && groupID != 0 {
			out = append(out, *j)
		}
	}
	return out
}

func statusIn(s Status, set []Status) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

// SetStatus applies a status transition. Transitions are monotonic toward a
// terminal state: running and paused toggle freely, cancelled may still move
// to stopped (the scheduler's acknowledgement), every other terminal state is
// sticky. Returns false when the job is missing or the transition is refused.
func (r *Registry) SetStatus(id int, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil {
		return false
	}
	if !transitionAllowed(j.Status, status) {
		return false
	}
	j.Status = status
	return true
}

func transitionAllowed(from, to Status) bool {
	switch from {
	case StatusCompleted, StatusStopped, StatusError:
		return false
	case StatusCancelled:
		return to == StatusStopped
	default:
		return true
	}
}

// UpdateProgress records sent-chat progress. Progress is monotonic: it never
// decreases and never exceeds the planned count.
func (r *Registry) UpdateProgress(id int, sent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil {
		return
	}
	if sent > j.SentChats {
		j.SentChats = sent
	}
	if j.PlannedCount > 0 && j.SentChats > j.PlannedCount {
		j.SentChats = j.PlannedCount
	}
}

// SetPlanned adjusts the planned total (used when an operator edits the
// message count of an in-flight job).
func (r *Registry) SetPlanned(id int, planned int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil || planned < 0 {
		return
	}
	j.PlannedCount = planned
}

// MarkError puts the job into the error state with a captured message/kind.
func (r *Registry) MarkError(id int, message, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil || !transitionAllowed(j.Status, StatusError) {
		return
	}
	j.Status = StatusError
	j.ErrorMessage = message
	j.ErrorKind = kind
}

// Sweep deletes terminal jobs older than maxAge. Jobs without a recorded
// start time are unrecoverable garbage and go unconditionally. Returns the
// number of jobs removed; the sweep is lazy so "view last result" keeps
// working for a while after completion.
func (r *Registry) Sweep(maxAge time.Duration) int {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		if !j.Status.Terminal() {
			continue
		}
		if j.StartTime.IsZero() || now.Sub(j.StartTime) > maxAge {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}
