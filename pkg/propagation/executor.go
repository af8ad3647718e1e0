package propagation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/mapping"
	"github.com/idforge/idforge/pkg/telemetry"
)

// AuditSink records task outcomes durably. Recording failures are logged,
// never propagated: the audit trail must not break propagation.
type AuditSink interface {
	Record(ctx context.Context, task *Task, status Status) error
}

// ExecutorOptions tunes the executor.
type ExecutorOptions struct {
	// MaxParallel bounds the worker pool for unordered tasks.
	MaxParallel int

	// MaxRetries bounds retry attempts for retryable connector failures.
	MaxRetries int

	// Timeout bounds each connector call.
	Timeout time.Duration
}

// Executor dispatches propagation tasks to connectors. Prioritized tasks
// run sequentially in ascending priority order; the rest share a bounded
// worker pool. A failing primary task aborts every undispatched task.
type Executor struct {
	connectors *connector.Registry
	opts       ExecutorOptions
	audit      AuditSink
	metrics    *telemetry.Metrics
	log        *telemetry.Logger
}

// NewExecutor creates an executor. A nil audit sink disables the audit
// trail.
func NewExecutor(
	connectors *connector.Registry,
	opts ExecutorOptions,
	audit AuditSink,
	metrics *telemetry.Metrics,
	log *telemetry.Logger,
) *Executor {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Executor{
		connectors: connectors,
		opts:       opts,
		audit:      audit,
		metrics:    metrics,
		log:        log.NewComponentLogger("executor"),
	}
}

// Execute runs every task and reports each outcome exactly once through
// the reporter. The returned error is non-nil only when a primary task
// failed and aborted the round.
func (e *Executor) Execute(ctx context.Context, tasks []*Task, reporter *Reporter) error {
	ordered, unordered := splitByPriority(tasks)

	for i, task := range ordered {
		err := e.executeTask(ctx, task)
		if err == nil {
			reporter.Succeeded(task)
			e.record(ctx, task, StatusSuccess, "")
			continue
		}

		reporter.Failed(task, err)
		e.record(ctx, task, StatusFailure, err.Error())

		if task.Primary {
			reason := fmt.Sprintf("primary resource %s failed", task.Resource)
			remaining := append(append([]*Task(nil), ordered[i+1:]...), unordered...)
			for _, t := range remaining {
				e.record(ctx, t, StatusNotAttempted, reason)
			}
			reporter.OnPrimaryResourceFailure(remaining, reason)
			return NewPermanentError(reason, err).
				WithResource(task.Resource).
				WithOperation(string(task.Operation)).
				WithCode(ErrCodePrimaryFailed)
		}
	}

	if len(unordered) == 0 {
		return nil
	}

	workerCount := e.opts.MaxParallel
	if len(unordered) < workerCount {
		workerCount = len(unordered)
	}

	workQueue := make(chan *Task, len(unordered))
	for _, task := range unordered {
		workQueue <- task
	}
	close(workQueue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range workQueue {
				select {
				case <-ctx.Done():
					reporter.NotAttempted(task, "execution cancelled")
					e.record(ctx, task, StatusNotAttempted, "execution cancelled")
					continue
				default:
				}
				if err := e.executeTask(ctx, task); err != nil {
					reporter.Failed(task, err)
					e.record(ctx, task, StatusFailure, err.Error())
				} else {
					reporter.Succeeded(task)
					e.record(ctx, task, StatusSuccess, "")
				}
			}
		}()
	}
	wg.Wait()

	return nil
}

// executeTask runs one task with retry on retryable failures.
func (e *Executor) executeTask(ctx context.Context, task *Task) error {
	log := e.log.WithTaskID(task.ID).WithResource(task.Resource)

	conn, err := e.connectors.Resolve(task.Connector)
	if err != nil {
		return NewPermanentError("connector not registered", err).
			WithResource(task.Resource).
			WithOperation(string(task.Operation)).
			WithCode(ErrCodeUnknownConnector)
	}

	e.metrics.TaskDispatched(task.Resource, string(task.Operation))
	start := time.Now()

	for attempt := 0; ; attempt++ {
		err = e.dispatch(ctx, conn, task)
		if err == nil || !IsRetryable(err) || attempt >= e.opts.MaxRetries {
			break
		}
		log.Warnf("retrying %s after failure (attempt %d/%d): %v",
			task.Operation, attempt+1, e.opts.MaxRetries, err)
		select {
		case <-time.After(e.backoff(attempt)):
		case <-ctx.Done():
			err = NewTransientError("execution cancelled", ctx.Err())
		}
		if ctx.Err() != nil {
			break
		}
	}

	duration := time.Since(start)
	if err != nil {
		e.metrics.TaskCompleted(task.Resource, string(StatusFailure), duration)
		if task.TraceLevel != mapping.TraceNone {
			log.WithError(err).Errorf("%s of %s failed", task.Operation, task.ConnObjectKey)
		}
		return err
	}

	e.metrics.TaskCompleted(task.Resource, string(StatusSuccess), duration)
	switch task.TraceLevel {
	case mapping.TraceSummary:
		log.Infof("%s of %s succeeded", task.Operation, task.ConnObjectKey)
	case mapping.TraceAll:
		log.Infof("%s of %s succeeded with %d attributes in %s",
			task.Operation, task.ConnObjectKey, len(task.Attributes), duration)
	}
	return nil
}

// dispatch performs the single connector call for a task.
func (e *Executor) dispatch(ctx context.Context, conn connector.Connector, task *Task) error {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var err error
	switch task.Operation {
	case OpCreate:
		_, err = conn.Create(callCtx, task.ObjectClass, task.Attributes)
	case OpUpdate:
		uid := task.ConnObjectKey
		if task.OldConnObjectKey != "" {
			uid = task.OldConnObjectKey
		}
		_, err = conn.Update(callCtx, task.ObjectClass, uid, task.Attributes)
	case OpDelete:
		err = conn.Delete(callCtx, task.ObjectClass, task.ConnObjectKey)
	default:
		return NewPermanentError(fmt.Sprintf("unknown operation %q", task.Operation), nil)
	}

	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return NewTransientError("connector call failed", err).
		WithResource(task.Resource).
		WithOperation(string(task.Operation)).
		WithCode(ErrCodeConnector)
}

// backoff computes exponential backoff capped at one minute.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := time.Second * time.Duration(math.Pow(2, float64(attempt)))
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}

// record writes one outcome to the audit sink.
func (e *Executor) record(ctx context.Context, task *Task, status ExecStatus, reason string) {
	if e.audit == nil {
		return
	}
	err := e.audit.Record(ctx, task, Status{
		Resource:         task.Resource,
		Status:           status,
		FailureReason:    reason,
		ConnObjectKey:    task.ConnObjectKey,
		OldConnObjectKey: task.OldConnObjectKey,
	})
	if err != nil {
		e.log.WithError(err).WithTaskID(task.ID).Warn("audit record failed")
	}
}

// splitByPriority separates sequential tasks, sorted ascending with ties
// broken by resource name, from unordered ones. Primary tasks are always
// sequential and run before every other ordered task, even without an
// explicit priority: their failure must abort undispatched work.
func splitByPriority(tasks []*Task) (ordered, unordered []*Task) {
	for _, task := range tasks {
		if task.Priority != nil || task.Primary {
			ordered = append(ordered, task)
		} else {
			unordered = append(unordered, task)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Primary != ordered[j].Primary {
			return ordered[i].Primary
		}
		ri, rj := priorityRank(ordered[i]), priorityRank(ordered[j])
		if ri != rj {
			return ri < rj
		}
		return ordered[i].Resource < ordered[j].Resource
	})
	return ordered, unordered
}

// priorityRank places tasks without an explicit priority before every
// prioritized one.
func priorityRank(t *Task) int {
	if t.Priority == nil {
		return math.MinInt
	}
	return *t.Priority
}
