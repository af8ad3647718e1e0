package mapping

import (
	"fmt"

	"github.com/idforge/idforge/pkg/identity"
)

// EvaluateLink computes the external identity name for an entity. When the
// provision declares a connObjectLink expression, its result wins; a blank
// result, a failed evaluation or an absent link all fall back to the
// connObjectKey. A blank connObjectKey is logged as an error and still
// returned as-is: attribute assembly never aborts over it.
func (a *Assembler) EvaluateLink(entity identity.Any, prov *Provision, connObjectKey string) string {
	if connObjectKey == "" {
		a.log.WithEntity(string(entity.Kind()), entity.Key()).
			Error("connObjectKey resolved to a blank value")
	}

	link := prov.Mapping.ConnObjectLink
	if link == "" {
		return connObjectKey
	}

	result, err := a.eval.Evaluate(link, a.resolver.ExprContext(entity, true))
	if err != nil {
		a.log.WithError(err).
			WithEntity(string(entity.Kind()), entity.Key()).
			Warnf("connObjectLink did not evaluate, falling back to connObjectKey")
		return connObjectKey
	}
	if result == "" {
		return connObjectKey
	}
	return result
}

// groupOwnerLink resolves a group owner's external identity name on the
// same provision. It is the resolver's ownerValue callback.
func (a *Assembler) groupOwnerLink(prov *Provision, owner identity.Any) (string, error) {
	ckItem, ok := prov.Mapping.ConnObjectKeyItem()
	if !ok {
		return "", ErrNoConnObjectKeyItem
	}
	values, err := a.resolver.Values(prov, ckItem, []identity.Any{owner}, nil)
	if err != nil {
		return "", fmt.Errorf("resolving connObjectKey of owner %q: %w", owner.Key(), err)
	}
	if len(values) > 0 {
		return a.EvaluateLink(owner, prov, values[0]), nil
	}
	// The provision's key item may not apply to the owner's kind (a group
	// key item facing a user owner); the owner's name field stands in.
	if owner.Name() != "" {
		return a.EvaluateLink(owner, prov, owner.Name()), nil
	}
	return "", nil
}
