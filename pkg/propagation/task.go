package propagation

import (
	"github.com/google/uuid"

	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
)

// Operation is the kind of change a propagation task applies on a resource.
type Operation string

const (
	// OpCreate creates the external object.
	OpCreate Operation = "CREATE"

	// OpUpdate updates the external object, renaming it when the identity
	// link changed.
	OpUpdate Operation = "UPDATE"

	// OpDelete removes the external object.
	OpDelete Operation = "DELETE"
)

// Task is one fully resolved unit of outbound work: everything the
// executor needs without consulting canonical storage again.
type Task struct {
	// ID identifies the task across logs, metrics and the audit trail.
	ID string

	// Operation is the change to apply.
	Operation Operation

	// Resource is the target resource name.
	Resource string

	// Connector is the connector registry identifier.
	Connector string

	// ObjectClass is the connector object class.
	ObjectClass string

	// AnyKind is the canonical entity kind.
	AnyKind identity.Kind

	// AnyKey is the canonical entity key.
	AnyKey string

	// ConnObjectKey locates the object on the resource: the evaluated
	// identity link when the provision declares one, the raw connObjectKey
	// otherwise.
	ConnObjectKey string

	// OldConnObjectKey is the previous locator when the identity changed;
	// empty otherwise. Updates address the object under this value so a
	// rename can reach it.
	OldConnObjectKey string

	// Attributes is the assembled native attribute set.
	Attributes []connector.Attr

	// Priority orders the task relative to other resources' tasks; nil
	// means unordered.
	Priority *int

	// Primary marks a task whose failure aborts undispatched ordered tasks.
	Primary bool

	// TraceLevel gates logging detail for this task.
	TraceLevel mapping.TraceLevel

	// Diagnostics carries per-item assembly failures for the audit trail.
	Diagnostics []mapping.Diagnostic
}

// NewTask creates a task with a fresh identifier.
func NewTask(op Operation, res *mapping.Resource, prov *mapping.Provision, anyKind identity.Kind, anyKey string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Operation:   op,
		Resource:    res.Name,
		Connector:   res.Connector,
		ObjectClass: prov.ObjectClass,
		AnyKind:     anyKind,
		AnyKey:      anyKey,
		Priority:    res.PropagationPriority,
		Primary:     res.PropagationPrimary,
		TraceLevel:  res.TraceLevel,
	}
}

// ExecStatus is the terminal outcome of one task.
type ExecStatus string

const (
	// StatusSuccess means the connector call completed.
	StatusSuccess ExecStatus = "SUCCESS"

	// StatusFailure means the connector call failed.
	StatusFailure ExecStatus = "FAILURE"

	// StatusNotAttempted means the task was never dispatched, typically
	// because a primary resource failed first.
	StatusNotAttempted ExecStatus = "NOT_ATTEMPTED"
)

// Status is the reported outcome of one task, keyed by resource.
type Status struct {
	// Resource is the target resource name.
	Resource string

	// Status is the terminal outcome.
	Status ExecStatus

	// FailureReason describes the failure, empty on success.
	FailureReason string

	// ConnObjectKey is the identity value used on the resource.
	ConnObjectKey string

	// OldConnObjectKey is the previous identity value when the task
	// carried a rename; empty otherwise.
	OldConnObjectKey string
}
