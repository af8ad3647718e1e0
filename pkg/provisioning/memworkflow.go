package provisioning

import (
	"context"
	"fmt"

	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/password"
	"github.com/idforge/idforge/pkg/propagation"
)

// MemWorkflow is the in-memory Workflow used by the CLI and tests. It
// persists entities in a MemDirectory and encodes passwords with the
// configured cipher.
type MemWorkflow struct {
	dir       *identity.MemDirectory
	encryptor *password.Encryptor
	cipher    password.CipherAlgorithm
	links     LinkResolver
}

// NewMemWorkflow creates an in-memory workflow.
func NewMemWorkflow(dir *identity.MemDirectory, encryptor *password.Encryptor, cipher password.CipherAlgorithm) *MemWorkflow {
	return &MemWorkflow{dir: dir, encryptor: encryptor, cipher: cipher}
}

// SetLinkResolver wires the resolver used to capture an entity's current
// external locator before a rename. Without one the entity's name stands
// in, which only holds for provisions without an identity link.
func (w *MemWorkflow) SetLinkResolver(links LinkResolver) {
	w.links = links
}

// Create implements Workflow.
func (w *MemWorkflow) Create(ctx context.Context, entity identity.Any, clearPassword string) (*WorkflowResult, error) {
	byRes := propagation.NewByResource()

	switch e := entity.(type) {
	case *identity.User:
		if clearPassword != "" {
			encoded, err := w.encryptor.Encode(clearPassword, w.cipher)
			if err != nil {
				return nil, fmt.Errorf("encoding password: %w", err)
			}
			e.Password = encoded
			e.CipherAlgorithm = string(w.cipher)
		}
		w.dir.PutUser(e)
		byRes.AddAll(propagation.OpCreate, w.effectiveResources(e))
	case *identity.Group:
		w.dir.PutGroup(e)
		byRes.AddAll(propagation.OpCreate, e.Resources())
	case *identity.AnyObject:
		w.dir.PutAnyObject(e)
		byRes.AddAll(propagation.OpCreate, e.Resources())
	default:
		return nil, fmt.Errorf("unsupported entity type %T", entity)
	}

	return &WorkflowResult{
		Entity:        entity,
		PropByRes:     byRes,
		ClearPassword: clearPassword,
	}, nil
}

// Update implements Workflow.
func (w *MemWorkflow) Update(ctx context.Context, patch *identity.AnyPatch) (*WorkflowResult, error) {
	entity, ok := w.dir.Find(patch.Kind, patch.Key)
	if !ok {
		return nil, fmt.Errorf("%s %q not found", patch.Kind, patch.Key)
	}

	result := &WorkflowResult{
		Entity:             entity,
		PropByRes:          propagation.NewByResource(),
		MembershipsChanged: len(patch.Memberships) > 0,
	}

	user, isUser := entity.(*identity.User)

	if patch.Name != nil && *patch.Name != entity.Name() {
		// The locator is captured per resource before the rename takes
		// effect: an identity link evaluates against the old name here.
		for _, res := range w.resourcesOf(entity) {
			result.PropByRes.Add(propagation.OpUpdate, res)
			result.PropByRes.SetOldConnObjectKey(res, w.locator(entity, res))
		}
		w.rename(entity, *patch.Name)
	}

	for _, ap := range patch.PlainAttrs {
		w.applyAttrPatch(entity, ap)
		result.PropByRes.AddAll(propagation.OpUpdate, w.resourcesOf(entity))
	}
	if len(patch.VirAttrs) > 0 {
		// Virtual values are not stored; they reach the resource through
		// attribute assembly.
		result.PropByRes.AddAll(propagation.OpUpdate, w.resourcesOf(entity))
	}

	for _, rp := range patch.Resources {
		switch rp.Operation {
		case identity.PatchAddReplace:
			w.assign(entity, rp.Resource)
			result.PropByRes.Add(propagation.OpCreate, rp.Resource)
		case identity.PatchDelete:
			w.unassign(entity, rp.Resource)
			if isUser && w.stillReachable(user, rp.Resource) {
				result.PropByRes.Add(propagation.OpUpdate, rp.Resource)
			} else {
				result.PropByRes.Add(propagation.OpDelete, rp.Resource)
			}
		}
	}

	if isUser {
		w.applyMemberships(user, patch.Memberships, result.PropByRes)
	}

	if patch.Password != nil && isUser {
		encoded, err := w.encryptor.Encode(patch.Password.Value, w.cipher)
		if err != nil {
			return nil, fmt.Errorf("encoding password: %w", err)
		}
		user.Password = encoded
		user.CipherAlgorithm = string(w.cipher)
		result.ClearPassword = patch.Password.Value

		targets := patch.Password.OnResources
		if len(targets) == 0 {
			targets = w.resourcesOf(entity)
		}
		result.PropByRes.AddAll(propagation.OpUpdate, targets)
	}

	return result, nil
}

// Delete implements Workflow.
func (w *MemWorkflow) Delete(ctx context.Context, kind identity.Kind, key string) error {
	if _, ok := w.dir.Find(kind, key); !ok {
		return fmt.Errorf("%s %q not found", kind, key)
	}
	w.dir.Remove(kind, key)
	return nil
}

// Status implements Workflow.
func (w *MemWorkflow) Status(ctx context.Context, patch *identity.StatusPatch) (*WorkflowResult, error) {
	entity, ok := w.dir.Find(identity.KindUser, patch.Key)
	if !ok {
		return nil, fmt.Errorf("user %q not found", patch.Key)
	}
	user := entity.(*identity.User)

	if patch.OnCanonical {
		suspended := patch.Type == identity.StatusSuspend
		user.Suspended = &suspended
	}

	byRes := propagation.NewByResource()
	targets := patch.Resources
	if len(targets) == 0 {
		targets = w.effectiveResources(user)
	}
	byRes.AddAll(propagation.OpUpdate, targets)

	return &WorkflowResult{Entity: user, PropByRes: byRes}, nil
}

// applyMemberships applies membership patches and derives the resource
// operations they imply: a new group's resources become reachable, and a
// removed group's resources are deprovisioned only when the user reached
// them exclusively through that group.
func (w *MemWorkflow) applyMemberships(user *identity.User, patches []identity.MembershipPatch, byRes *propagation.ByResource) {
	for _, mp := range patches {
		switch mp.Operation {
		case identity.PatchAddReplace:
			if !contains(user.Memberships, mp.GroupKey) {
				user.Memberships = append(user.Memberships, mp.GroupKey)
			}
			// Newly reachable resources get an update, not a create:
			// connectors apply updates as create-or-update.
			if group, ok := w.dir.Find(identity.KindGroup, mp.GroupKey); ok {
				byRes.AddAll(propagation.OpUpdate, group.Resources())
			}
		case identity.PatchDelete:
			group, hasGroup := w.dir.Find(identity.KindGroup, mp.GroupKey)
			if hasGroup {
				for _, res := range group.Resources() {
					if w.dir.MembersOnlyVia(user.Key(), res, mp.GroupKey) {
						byRes.Add(propagation.OpDelete, res)
					} else {
						byRes.Add(propagation.OpUpdate, res)
					}
				}
			}
			for i, gk := range user.Memberships {
				if gk == mp.GroupKey {
					user.Memberships = append(user.Memberships[:i], user.Memberships[i+1:]...)
					break
				}
			}
		}
	}
}

// locator resolves the external identity the entity currently has on a
// resource, falling back to its name.
func (w *MemWorkflow) locator(entity identity.Any, res string) string {
	if w.links != nil {
		if value, ok := w.links.ConnObjectKeyValue(entity, res); ok && value != "" {
			return value
		}
	}
	return entity.Name()
}

func (w *MemWorkflow) applyAttrPatch(entity identity.Any, ap identity.AttrPatch) {
	switch e := entity.(type) {
	case *identity.User:
		w.applyAttrPatchBase(ap, e.SetPlainAttr, e.RemovePlainAttr)
	case *identity.Group:
		w.applyAttrPatchBase(ap, e.SetPlainAttr, e.RemovePlainAttr)
	case *identity.AnyObject:
		w.applyAttrPatchBase(ap, e.SetPlainAttr, e.RemovePlainAttr)
	}
}

func (w *MemWorkflow) applyAttrPatchBase(ap identity.AttrPatch, set func(string, []string), remove func(string)) {
	switch ap.Operation {
	case identity.PatchAddReplace:
		set(ap.Schema, ap.Values)
	case identity.PatchDelete:
		remove(ap.Schema)
	}
}

func (w *MemWorkflow) rename(entity identity.Any, name string) {
	switch e := entity.(type) {
	case *identity.User:
		e.Rename(name)
	case *identity.Group:
		e.Rename(name)
	case *identity.AnyObject:
		e.Rename(name)
	}
}

func (w *MemWorkflow) assign(entity identity.Any, res string) {
	switch e := entity.(type) {
	case *identity.User:
		e.AssignResource(res)
	case *identity.Group:
		e.AssignResource(res)
	case *identity.AnyObject:
		e.AssignResource(res)
	}
}

func (w *MemWorkflow) unassign(entity identity.Any, res string) {
	switch e := entity.(type) {
	case *identity.User:
		e.UnassignResource(res)
	case *identity.Group:
		e.UnassignResource(res)
	case *identity.AnyObject:
		e.UnassignResource(res)
	}
}

// effectiveResources returns a user's resources, direct and via groups.
func (w *MemWorkflow) effectiveResources(user *identity.User) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(res string) {
		if _, ok := seen[res]; !ok {
			seen[res] = struct{}{}
			out = append(out, res)
		}
	}
	for _, res := range user.Resources() {
		add(res)
	}
	for _, group := range w.dir.GroupsOf(user.Key()) {
		for _, res := range group.Resources() {
			add(res)
		}
	}
	return out
}

// resourcesOf returns the propagation targets for any entity kind.
func (w *MemWorkflow) resourcesOf(entity identity.Any) []string {
	if user, ok := entity.(*identity.User); ok {
		return w.effectiveResources(user)
	}
	return entity.Resources()
}

// stillReachable reports whether a user still reaches a resource through
// any group after a direct unassignment.
func (w *MemWorkflow) stillReachable(user *identity.User, res string) bool {
	for _, group := range w.dir.GroupsOf(user.Key()) {
		if contains(group.Resources(), res) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
