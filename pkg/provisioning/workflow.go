// Package provisioning orchestrates entity lifecycle operations: it runs
// the workflow step, derives propagation tasks from its outcome and
// executes them, returning per-resource statuses.
package provisioning

import (
	"context"

	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/propagation"
)

// WorkflowResult is the outcome of one workflow step: the entity state
// after the step plus the per-resource operations the step derived.
type WorkflowResult struct {
	// Entity is the entity after the step.
	Entity identity.Any

	// PropByRes carries the derived per-resource operations.
	PropByRes *propagation.ByResource

	// MembershipsChanged marks steps that touched group memberships.
	MembershipsChanged bool

	// ClearPassword is the clear-text password carried by the step, if any.
	ClearPassword string
}

// LinkResolver resolves the external locator an entity currently has on a
// resource, applying the provision's identity link. The workflow records
// it as the old connObjectKey before a rename so the executor can still
// address the object.
type LinkResolver interface {
	ConnObjectKeyValue(entity identity.Any, resource string) (string, bool)
}

// Workflow applies lifecycle steps to canonical storage. Propagation is
// never its concern; it only reports what changed.
type Workflow interface {
	// Create stores a new entity, encoding the clear-text password when
	// the entity is a user.
	Create(ctx context.Context, entity identity.Any, clearPassword string) (*WorkflowResult, error)

	// Update applies a patch to an existing entity.
	Update(ctx context.Context, patch *identity.AnyPatch) (*WorkflowResult, error)

	// Delete removes an entity from canonical storage.
	Delete(ctx context.Context, kind identity.Kind, key string) error

	// Status applies a status transition to a user.
	Status(ctx context.Context, patch *identity.StatusPatch) (*WorkflowResult, error)
}
