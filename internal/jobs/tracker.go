package jobs

import (
	"sync"
	"time"

	"github.com/straye-as/device-importer/internal/domain"
)

// Tracker remembers the jobs submitted by this process and their last known status.
// It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.TrackedJob
	order []string
	now   func() time.Time
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]*domain.TrackedJob),
		now:  time.Now,
	}
}

// Track records a newly submitted job. Tracking a known job is a no-op.
func (t *Tracker) Track(jobID string, devices int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[jobID]; ok {
		return
	}
	t.jobs[jobID] = &domain.TrackedJob{
		JobID:       jobID,
		Devices:     devices,
		Status:      domain.JobStatusEnqueued,
		SubmittedAt: t.now().UTC(),
	}
	t.order = append(t.order, jobID)
}

// Update stores the status of job and returns the previously stored status.
// ok is false when the job is not tracked.
func (t *Tracker) Update(job *domain.JobProperties) (previous domain.JobStatus, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tracked, ok := t.jobs[job.JobID]
	if !ok {
		return "", false
	}
	previous = tracked.Status
	tracked.Status = job.Status
	tracked.Progress = job.Progress
	tracked.RefreshedAt = t.now().UTC()
	return previous, true
}

// Get returns a copy of a tracked job
func (t *Tracker) Get(jobID string) (domain.TrackedJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracked, ok := t.jobs[jobID]
	if !ok {
		return domain.TrackedJob{}, false
	}
	return *tracked, true
}

// List returns copies of all tracked jobs in submission order
func (t *Tracker) List() []domain.TrackedJob {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.TrackedJob, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.jobs[id])
	}
	return out
}

// Pending returns the ids of tracked jobs that have not reached a terminal status
func (t *Tracker) Pending() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for _, id := range t.order {
		if !t.jobs[id].Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}
