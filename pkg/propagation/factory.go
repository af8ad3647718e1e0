package propagation

import (
	"fmt"

	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
	"github.com/idforge/idforge/pkg/telemetry"
)

// Policy tunes task derivation.
type Policy struct {
	// RefreshOnMembershipChange re-propagates a user to resources whose
	// assignment did not change when a membership change may have altered
	// group-sourced attribute values.
	RefreshOnMembershipChange bool
}

// DefaultPolicy returns the default task derivation policy.
func DefaultPolicy() Policy {
	return Policy{RefreshOnMembershipChange: true}
}

// Factory derives propagation tasks from entity changes. It resolves each
// task's attribute set eagerly so the executor never consults canonical
// storage.
type Factory struct {
	catalog   *mapping.Catalog
	assembler *mapping.Assembler
	policy    Policy
	log       *telemetry.Logger
}

// NewFactory creates a task factory.
func NewFactory(catalog *mapping.Catalog, assembler *mapping.Assembler, policy Policy, log *telemetry.Logger) *Factory {
	return &Factory{
		catalog:   catalog,
		assembler: assembler,
		policy:    policy,
		log:       log.NewComponentLogger("task-factory"),
	}
}

// CreateRequest describes a freshly created entity to propagate.
type CreateRequest struct {
	// Entity is the created entity.
	Entity identity.Any

	// Password is the clear-text password supplied at creation, if any.
	Password string

	// Enable, when set, propagates the enable operational attribute.
	Enable *bool

	// VirPatches are pending virtual attribute values.
	VirPatches map[string]identity.AttrPatch

	// PropByRes selects the resources to create on. Nil means every
	// resource assigned to the entity.
	PropByRes *ByResource

	// ExcludedResources are skipped entirely.
	ExcludedResources []string
}

// UpdateRequest describes an updated entity to propagate.
type UpdateRequest struct {
	// Entity is the entity after the update.
	Entity identity.Any

	// Password is the new clear-text password, if changed.
	Password string

	// ChangePwd reports whether a password attribute may be emitted.
	ChangePwd bool

	// Enable, when set, propagates the enable operational attribute.
	Enable *bool

	// VirPatches are pending virtual attribute changes.
	VirPatches map[string]identity.AttrPatch

	// PropByRes carries the per-resource operations the workflow derived,
	// including remembered old identity values. Nil means update all
	// assigned resources.
	PropByRes *ByResource

	// MembershipsChanged marks updates that touched group memberships.
	MembershipsChanged bool

	// ExcludedResources are skipped entirely.
	ExcludedResources []string
}

// DeleteRequest describes an entity deletion to propagate. The entity is
// the pre-removal state: derivation must run before canonical storage
// forgets it.
type DeleteRequest struct {
	// Entity is the entity as it was before deletion.
	Entity identity.Any

	// PropByRes selects the resources to delete from. Nil means every
	// resource assigned to the entity.
	PropByRes *ByResource

	// ExcludedResources are skipped entirely.
	ExcludedResources []string
}

// StatusRequest describes a status transition to propagate.
type StatusRequest struct {
	// User is the affected user.
	User *identity.User

	// Enable is the flag value to propagate.
	Enable bool

	// Resources limits the targets; empty means all assigned resources.
	Resources []string
}

// CreateTasks derives the tasks propagating an entity creation. On a
// derivation failure the tasks built so far are returned with the error so
// the caller can still execute them.
func (f *Factory) CreateTasks(req CreateRequest) ([]*Task, error) {
	resources := f.targets(req.Entity, req.PropByRes, OpCreate)
	excluded := toSet(req.ExcludedResources)

	var tasks []*Task
	for _, name := range resources {
		if _, skip := excluded[name]; skip {
			continue
		}
		task, err := f.buildTask(OpCreate, name, req.Entity, mapping.AssembleInput{
			Entity:     req.Entity,
			Password:   req.Password,
			ChangePwd:  true,
			VirPatches: req.VirPatches,
			Enable:     req.Enable,
		})
		if err != nil {
			return tasks, err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// UpdateTasks derives the tasks propagating an entity update. Beyond the
// explicitly recorded operations, a membership change re-propagates the
// user to every other assigned resource when the policy asks for it:
// group-sourced attribute values may have changed there too.
func (f *Factory) UpdateTasks(req UpdateRequest) ([]*Task, error) {
	byRes := req.PropByRes
	if byRes == nil {
		byRes = NewByResource()
		byRes.AddAll(OpUpdate, req.Entity.Resources())
	}
	byRes.Purge()

	if req.MembershipsChanged && f.policy.RefreshOnMembershipChange {
		for _, name := range req.Entity.Resources() {
			if !byRes.Contains(OpCreate, name) && !byRes.Contains(OpDelete, name) {
				byRes.Add(OpUpdate, name)
			}
		}
	}

	excluded := toSet(req.ExcludedResources)
	in := mapping.AssembleInput{
		Entity:     req.Entity,
		Password:   req.Password,
		ChangePwd:  req.ChangePwd,
		VirPatches: req.VirPatches,
		Enable:     req.Enable,
	}

	var tasks []*Task
	for _, op := range []Operation{OpCreate, OpUpdate, OpDelete} {
		for _, name := range byRes.Get(op) {
			if _, skip := excluded[name]; skip {
				continue
			}
			var task *Task
			var err error
			if op == OpDelete {
				task, err = f.buildDeleteTask(name, req.Entity)
			} else {
				task, err = f.buildTask(op, name, req.Entity, in)
			}
			if err != nil {
				return tasks, err
			}
			if task == nil {
				continue
			}
			if old, ok := byRes.OldConnObjectKey(name); ok && old != task.ConnObjectKey {
				task.OldConnObjectKey = old
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// DeleteTasks derives the tasks propagating an entity deletion.
func (f *Factory) DeleteTasks(req DeleteRequest) ([]*Task, error) {
	resources := f.targets(req.Entity, req.PropByRes, OpDelete)
	excluded := toSet(req.ExcludedResources)

	var tasks []*Task
	for _, name := range resources {
		if _, skip := excluded[name]; skip {
			continue
		}
		task, err := f.buildDeleteTask(name, req.Entity)
		if err != nil {
			return tasks, err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// StatusTasks derives the update tasks propagating a suspend, reactivate
// or activate transition. Only the identity link and the enable attribute
// travel; passwords never do.
func (f *Factory) StatusTasks(req StatusRequest) ([]*Task, error) {
	resources := req.Resources
	if len(resources) == 0 {
		resources = req.User.Resources()
	}

	enable := req.Enable
	var tasks []*Task
	for _, name := range resources {
		task, err := f.buildTask(OpUpdate, name, req.User, mapping.AssembleInput{
			Entity: req.User,
			Enable: &enable,
		})
		if err != nil {
			return tasks, err
		}
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// buildTask assembles the attribute set for one (operation, resource) pair.
// A resource without a provision for the entity's kind yields no task.
func (f *Factory) buildTask(op Operation, resource string, entity identity.Any, in mapping.AssembleInput) (*Task, error) {
	res, ok := f.catalog.Resource(resource)
	if !ok {
		return nil, NewPermanentError(fmt.Sprintf("resource %q not configured", resource), nil).
			WithResource(resource).WithCode(ErrCodeUnknownResource)
	}
	prov, ok := res.Provision(entity.Kind())
	if !ok {
		f.log.WithResource(resource).
			Debugf("no provision for kind %s, skipping", entity.Kind())
		return nil, nil
	}

	prepared, err := f.assembler.Prepare(res, prov, in)
	if err != nil {
		return nil, NewPermanentError("attribute assembly failed", err).
			WithResource(resource).WithOperation(string(op)).WithCode(ErrCodeAssembly)
	}

	task := NewTask(op, res, prov, entity.Kind(), entity.Key())
	task.ConnObjectKey = prepared.Name
	task.Attributes = prepared.Attrs
	task.Diagnostics = prepared.Diagnostics
	return task, nil
}

// ConnObjectKeyValue resolves the external locator an entity currently has
// on a resource: the provision's identity link when declared, the raw
// connObjectKey otherwise. The second return is false when the resource or
// a provision for the entity's kind is not configured.
func (f *Factory) ConnObjectKeyValue(entity identity.Any, resource string) (string, bool) {
	res, ok := f.catalog.Resource(resource)
	if !ok {
		return "", false
	}
	prov, ok := res.Provision(entity.Kind())
	if !ok {
		return "", false
	}
	key, err := f.assembler.ConnObjectKeyValue(entity, prov)
	if err != nil {
		f.log.WithError(err).WithResource(resource).
			Warnf("could not resolve connObjectKey for %s %q", entity.Kind(), entity.Key())
		return "", false
	}
	return f.assembler.EvaluateLink(entity, prov, key), true
}

// buildDeleteTask resolves only the identity values a deletion needs.
func (f *Factory) buildDeleteTask(resource string, entity identity.Any) (*Task, error) {
	res, ok := f.catalog.Resource(resource)
	if !ok {
		return nil, NewPermanentError(fmt.Sprintf("resource %q not configured", resource), nil).
			WithResource(resource).WithCode(ErrCodeUnknownResource)
	}
	prov, ok := res.Provision(entity.Kind())
	if !ok {
		return nil, nil
	}

	key, err := f.assembler.ConnObjectKeyValue(entity, prov)
	if err != nil {
		return nil, NewPermanentError("connObjectKey resolution failed", err).
			WithResource(resource).WithOperation(string(OpDelete)).WithCode(ErrCodeAssembly)
	}

	task := NewTask(OpDelete, res, prov, entity.Kind(), entity.Key())
	task.ConnObjectKey = f.assembler.EvaluateLink(entity, prov, key)
	return task, nil
}

// targets resolves the resource list for a create or delete derivation.
func (f *Factory) targets(entity identity.Any, byRes *ByResource, op Operation) []string {
	if byRes == nil {
		return entity.Resources()
	}
	byRes.Purge()
	return byRes.Get(op)
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
