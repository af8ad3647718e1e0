package identity

// PatchOperation is the kind of change a patch item applies.
type PatchOperation string

const (
	// PatchAddReplace adds the given values, replacing existing ones.
	PatchAddReplace PatchOperation = "ADD_REPLACE"

	// PatchDelete removes the referenced values or association.
	PatchDelete PatchOperation = "DELETE"
)

// AttrPatch changes a plain or virtual attribute.
type AttrPatch struct {
	// Operation selects add-replace or delete.
	Operation PatchOperation

	// Schema is the attribute schema name.
	Schema string

	// Values are the new values for add-replace operations.
	Values []string
}

// MembershipPatch adds or removes a group membership.
type MembershipPatch struct {
	// Operation selects add-replace or delete.
	Operation PatchOperation

	// GroupKey is the canonical key of the group.
	GroupKey string
}

// ResourcePatch assigns or unassigns an external resource.
type ResourcePatch struct {
	// Operation selects add-replace or delete.
	Operation PatchOperation

	// Resource is the external resource name.
	Resource string
}

// PasswordPatch carries a clear-text password change.
type PasswordPatch struct {
	// Value is the new clear-text password.
	Value string

	// OnResources limits the resources the new password is propagated to;
	// empty means all.
	OnResources []string
}

// AnyPatch is the aggregate change applied to one entity by the workflow.
type AnyPatch struct {
	// Key is the canonical key of the patched entity.
	Key string

	// Kind is the entity kind.
	Kind Kind

	// Name, when set, renames the entity (username for users, group name
	// for groups).
	Name *string

	// PlainAttrs are plain attribute changes.
	PlainAttrs []AttrPatch

	// VirAttrs are pending virtual attribute changes; these are consumed
	// during attribute assembly, not stored canonically.
	VirAttrs []AttrPatch

	// Memberships are group membership changes.
	Memberships []MembershipPatch

	// Resources are resource assignment changes.
	Resources []ResourcePatch

	// Password is the password change, if any.
	Password *PasswordPatch
}

// VirAttrPatches returns the pending virtual attribute changes keyed by
// schema name, the shape consumed by attribute assembly.
func (p *AnyPatch) VirAttrPatches() map[string]AttrPatch {
	if p == nil || len(p.VirAttrs) == 0 {
		return nil
	}
	out := make(map[string]AttrPatch, len(p.VirAttrs))
	for _, vp := range p.VirAttrs {
		out[vp.Schema] = vp
	}
	return out
}

// StatusType is the requested status transition.
type StatusType string

const (
	// StatusActivate activates a created entity.
	StatusActivate StatusType = "ACTIVATE"

	// StatusReactivate lifts a suspension.
	StatusReactivate StatusType = "REACTIVATE"

	// StatusSuspend suspends an active entity.
	StatusSuspend StatusType = "SUSPEND"
)

// StatusPatch requests a status transition for a user.
type StatusPatch struct {
	// Key is the canonical key of the user.
	Key string

	// Type is the requested transition.
	Type StatusType

	// OnCanonical reports whether the transition also applies to the
	// canonical store, not only to external resources.
	OnCanonical bool

	// Resources limits which external resources receive the status change;
	// empty means all currently assigned resources.
	Resources []string
}

// Enable reports the enable flag value this transition propagates.
func (p *StatusPatch) Enable() bool {
	return p.Type != StatusSuspend
}
