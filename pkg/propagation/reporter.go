package propagation

import "sync"

// Reporter collects the terminal outcome of every task in one propagation
// round. Workers report concurrently; the caller reads Statuses after the
// round completes.
type Reporter struct {
	mu       sync.Mutex
	statuses []Status
	seen     map[string]struct{}
}

// NewReporter creates an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{seen: make(map[string]struct{})}
}

// Succeeded records a successful task.
func (r *Reporter) Succeeded(task *Task) {
	r.report(task, Status{
		Resource:         task.Resource,
		Status:           StatusSuccess,
		ConnObjectKey:    task.ConnObjectKey,
		OldConnObjectKey: task.OldConnObjectKey,
	})
}

// Failed records a failed task.
func (r *Reporter) Failed(task *Task, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	r.report(task, Status{
		Resource:         task.Resource,
		Status:           StatusFailure,
		FailureReason:    reason,
		ConnObjectKey:    task.ConnObjectKey,
		OldConnObjectKey: task.OldConnObjectKey,
	})
}

// NotAttempted records a task that was never dispatched.
func (r *Reporter) NotAttempted(task *Task, reason string) {
	r.report(task, Status{
		Resource:         task.Resource,
		Status:           StatusNotAttempted,
		FailureReason:    reason,
		ConnObjectKey:    task.ConnObjectKey,
		OldConnObjectKey: task.OldConnObjectKey,
	})
}

// OnPrimaryResourceFailure marks every still-unreported task as not
// attempted. Called when a primary resource fails and the round aborts.
func (r *Reporter) OnPrimaryResourceFailure(tasks []*Task, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range tasks {
		if _, ok := r.seen[task.ID]; ok {
			continue
		}
		r.seen[task.ID] = struct{}{}
		r.statuses = append(r.statuses, Status{
			Resource:         task.Resource,
			Status:           StatusNotAttempted,
			FailureReason:    reason,
			ConnObjectKey:    task.ConnObjectKey,
			OldConnObjectKey: task.OldConnObjectKey,
		})
	}
}

// Statuses returns every recorded outcome, one per task.
func (r *Reporter) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *Reporter) report(task *Task, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[task.ID]; ok {
		return
	}
	r.seen[task.ID] = struct{}{}
	r.statuses = append(r.statuses, status)
}
