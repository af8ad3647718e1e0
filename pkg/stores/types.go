package stores

import "time"

// AuditRecord is one stored propagation task outcome.
type AuditRecord struct {
	// ID is the record identifier.
	ID string

	// TaskID is the propagation task identifier.
	TaskID string

	// Operation is the task operation.
	Operation string

	// Resource is the target resource name.
	Resource string

	// AnyKind is the canonical entity kind.
	AnyKind string

	// AnyKey is the canonical entity key.
	AnyKey string

	// ObjectClass is the connector object class.
	ObjectClass string

	// ConnObjectKey is the identity value used on the resource.
	ConnObjectKey string

	// OldConnObjectKey is the previous identity value on renames.
	OldConnObjectKey string

	// Status is the terminal outcome.
	Status string

	// FailureReason describes the failure, empty otherwise.
	FailureReason string

	// Attributes is the assembled attribute set, JSON-encoded.
	Attributes string

	// Diagnostics is the per-item failure list, JSON-encoded.
	Diagnostics string

	// CreatedAt is the record timestamp.
	CreatedAt time.Time
}
