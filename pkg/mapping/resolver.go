package mapping

import (
	"fmt"

	"github.com/idforge/idforge/pkg/expr"
	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/telemetry"
)

// Resolver extracts the raw values for one mapping item from one or more
// canonical entities. The entity list has more than one element when a
// user item sources its values from the user's groups.
type Resolver struct {
	schemas      *identity.SchemaRegistry
	transformers *TransformerRegistry
	eval         *expr.Evaluator
	virCache     *VirAttrCache
	log          *telemetry.Logger

	// ownerValue resolves a group owner's identity link on the same
	// resource. Wired by the Assembler to avoid a cycle between value
	// resolution and link computation.
	ownerValue func(prov *Provision, owner identity.Any) (string, error)

	// dirLookup finds an entity by kind and key. Wired by the Assembler
	// together with ownerValue.
	dirLookup func(kind identity.Kind, key string) (identity.Any, bool)
}

// NewResolver creates a resolver.
func NewResolver(
	schemas *identity.SchemaRegistry,
	transformers *TransformerRegistry,
	eval *expr.Evaluator,
	virCache *VirAttrCache,
	log *telemetry.Logger,
) *Resolver {
	return &Resolver{
		schemas:      schemas,
		transformers: transformers,
		eval:         eval,
		virCache:     virCache,
		log:          log.NewComponentLogger("resolver"),
	}
}

// Values resolves the ordered value list for a mapping item. A missing
// attribute yields an empty list, not an error. Resolved values pass
// through the item's transformer chain unless the item is virtual.
func (r *Resolver) Values(
	prov *Provision,
	item Item,
	entities []identity.Any,
	vPatches map[string]identity.AttrPatch,
) ([]string, error) {
	values := []string{}
	transform := true

	switch item.Kind {
	case KindPlain:
		for _, entity := range entities {
			attr, ok := entity.PlainAttr(item.IntAttrName)
			if !ok {
				continue
			}
			if attr.Unique != nil {
				values = append(values, *attr.Unique)
			} else {
				// Cloned so transforms never alias canonical storage.
				values = append(values, append([]string(nil), attr.Values...)...)
			}
		}

	case KindVirtual:
		// Virtual values are never transformed.
		transform = false
		for _, entity := range entities {
			values = append(values, r.virtualValues(entity, item, vPatches)...)
		}

	case KindDerived:
		schema, ok := r.schemas.Der(item.IntAttrName)
		if !ok {
			return nil, fmt.Errorf("derived schema %q not found", item.IntAttrName)
		}
		for _, entity := range entities {
			value, err := r.eval.Evaluate(schema.Expression, r.ExprContext(entity, false))
			if err != nil {
				return nil, fmt.Errorf("deriving %q: %w", item.IntAttrName, err)
			}
			values = append(values, value)
		}

	case KindKey:
		for _, entity := range entities {
			values = append(values, entity.Key())
		}

	case KindUsername:
		for _, entity := range entities {
			if entity.Kind() == identity.KindUser {
				values = append(values, entity.Name())
			}
		}

	case KindGroupName:
		for _, entity := range entities {
			if entity.Kind() == identity.KindGroup {
				values = append(values, entity.Name())
			}
		}

	case KindGroupOwner:
		owners, err := r.groupOwnerValues(prov, entities)
		if err != nil {
			return nil, err
		}
		values = append(values, owners...)

	case KindPassword:
		// Password values are produced by the assembler's precedence
		// chain, never read here.

	default:
		return nil, fmt.Errorf("unknown mapping item kind %q", item.Kind)
	}

	if transform {
		values = r.transformers.BeforePropagation(item, values, r.log)
	}
	return values, nil
}

// virtualValues reads an entity's virtual attribute, overriding stored
// values with a pending patch for the same schema, and keeps the cache
// coherent: the caller has already expired the touched entry.
func (r *Resolver) virtualValues(entity identity.Any, item Item, vPatches map[string]identity.AttrPatch) []string {
	if patch, ok := vPatches[item.IntAttrName]; ok {
		r.virCache.Put(entity.Kind(), entity.Key(), item.IntAttrName, patch.Values)
		return append([]string(nil), patch.Values...)
	}
	if cached, ok := r.virCache.Get(entity.Kind(), entity.Key(), item.IntAttrName); ok {
		return cached
	}
	attr, ok := entity.VirAttr(item.IntAttrName)
	if !ok {
		return nil
	}
	values := append([]string(nil), attr.Values...)
	r.virCache.Put(entity.Kind(), entity.Key(), item.IntAttrName, values)
	return values
}

// groupOwnerValues resolves the owning user or group of each group entity
// through that owner's own provision on the same resource. Groups whose
// owner has no provision there yield nothing.
func (r *Resolver) groupOwnerValues(prov *Provision, entities []identity.Any) ([]string, error) {
	if r.ownerValue == nil {
		return nil, fmt.Errorf("group owner resolution not wired")
	}
	var values []string
	for _, entity := range entities {
		group, ok := entity.(*identity.Group)
		if !ok {
			continue
		}
		owner, ok := r.findOwner(group)
		if !ok {
			continue
		}
		value, err := r.ownerValue(prov, owner)
		if err != nil {
			return nil, fmt.Errorf("resolving owner of group %q: %w", group.Key(), err)
		}
		if value != "" {
			values = append(values, value)
		}
	}
	return values, nil
}

// findOwner is set-owner lookup: a group is owned by a user or by another
// group, whichever is set.
func (r *Resolver) findOwner(group *identity.Group) (identity.Any, bool) {
	if r.dirLookup == nil {
		return nil, false
	}
	if group.OwnerUser != "" {
		return r.dirLookup(identity.KindUser, group.OwnerUser)
	}
	if group.OwnerGroup != "" {
		return r.dirLookup(identity.KindGroup, group.OwnerGroup)
	}
	return nil, false
}

// ExprContext builds the read-only expression context for an entity:
// fields, plain attributes and (optionally) derived attributes.
func (r *Resolver) ExprContext(entity identity.Any, withDerived bool) expr.Context {
	plain := make(map[string][]string)
	for _, attr := range entity.PlainAttrs() {
		if attr.Unique != nil {
			plain[attr.Schema] = []string{*attr.Unique}
		} else {
			plain[attr.Schema] = append([]string(nil), attr.Values...)
		}
	}

	ctx := expr.Context{
		Fields:     entity.Fields(),
		PlainAttrs: plain,
	}

	if withDerived {
		ders := make(map[string]string)
		base := expr.Context{Fields: ctx.Fields, PlainAttrs: plain}
		for _, schema := range r.schemas.Ders() {
			value, err := r.eval.Evaluate(schema.Expression, base)
			if err != nil {
				r.log.Warnf("skipping derived attribute %q in expression context: %v", schema.Name, err)
				continue
			}
			ders[schema.Name] = value
		}
		ctx.DerAttrs = ders
	}

	return ctx
}
