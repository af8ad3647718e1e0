package mapping

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/expr"
	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/password"
	"github.com/idforge/idforge/pkg/telemetry"
)

// ErrNoConnObjectKeyItem reports a provision without a connObjectKey
// mapping item. This is a resource configuration error; configuration
// validation catches it before the engine ever runs.
var ErrNoConnObjectKeyItem = errors.New("provision has no connObjectKey mapping item")

// Diagnostic records one per-item resolution failure. Failing items are
// skipped, never fatal: propagation is best-effort per attribute.
type Diagnostic struct {
	// IntAttrName is the canonical attribute of the failed item.
	IntAttrName string

	// ExtAttrName is the native attribute of the failed item.
	ExtAttrName string

	// Err is the resolution error.
	Err error
}

// AssembleInput carries the per-call state attribute assembly works from.
type AssembleInput struct {
	// Entity is the canonical entity being propagated.
	Entity identity.Any

	// Password is the explicitly supplied clear-text password, if any.
	Password string

	// ChangePwd controls whether a password attribute may be emitted.
	ChangePwd bool

	// VirPatches are pending virtual attribute changes keyed by schema.
	VirPatches map[string]identity.AttrPatch

	// Enable, when set, appends the enable/disable operational attribute.
	Enable *bool
}

// Prepared is the assembly result for one (entity, provision) pair.
type Prepared struct {
	// ConnObjectKey is the resolved identity key.
	ConnObjectKey string

	// Name is the external locator: the evaluated identity link when the
	// provision declares one, the connObjectKey otherwise.
	Name string

	// Attrs is the native attribute set, in deterministic order.
	Attrs []connector.Attr

	// Diagnostics lists the mapping items skipped due to resolution errors.
	Diagnostics []Diagnostic
}

// Assembler combines all mapping items of a provision into one
// deduplicated native attribute set.
type Assembler struct {
	dir       identity.Directory
	schemas   *identity.SchemaRegistry
	resolver  *Resolver
	eval      *expr.Evaluator
	encryptor *password.Encryptor
	generator *password.Generator
	virCache  *VirAttrCache
	metrics   *telemetry.Metrics
	log       *telemetry.Logger
}

// NewAssembler creates an assembler and wires the resolver's owner-link
// callbacks to it.
func NewAssembler(
	dir identity.Directory,
	schemas *identity.SchemaRegistry,
	resolver *Resolver,
	eval *expr.Evaluator,
	encryptor *password.Encryptor,
	generator *password.Generator,
	virCache *VirAttrCache,
	metrics *telemetry.Metrics,
	log *telemetry.Logger,
) *Assembler {
	a := &Assembler{
		dir:       dir,
		schemas:   schemas,
		resolver:  resolver,
		eval:      eval,
		encryptor: encryptor,
		generator: generator,
		virCache:  virCache,
		metrics:   metrics,
		log:       log.NewComponentLogger("assembler"),
	}
	resolver.ownerValue = a.groupOwnerLink
	resolver.dirLookup = dir.Find
	return a
}

// Prepare builds the full native attribute set plus the resolved
// connObjectKey for one entity and provision. Per-item failures are
// collected as diagnostics; only a structurally broken provision (no
// connObjectKey item) returns an error.
func (a *Assembler) Prepare(res *Resource, prov *Provision, in AssembleInput) (*Prepared, error) {
	ckItem, ok := prov.Mapping.ConnObjectKeyItem()
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", res.Name, ErrNoConnObjectKeyItem)
	}

	log := a.log.WithResource(res.Name).WithEntity(string(in.Entity.Kind()), in.Entity.Key())

	attrs := connector.NewAttrSet()
	var diagnostics []Diagnostic
	connObjectKey := ""

	for _, item := range prov.Mapping.PropagationItems() {
		key, attr, err := a.prepareItem(res, prov, item, in)
		if err != nil {
			diagnostics = append(diagnostics, Diagnostic{
				IntAttrName: item.IntAttrName,
				ExtAttrName: item.ExtAttrName,
				Err:         err,
			})
			a.metrics.ResolutionError(res.Name)
			log.WithError(err).Debugf("skipping mapping item %q", item.IntAttrName)
			continue
		}
		if key != "" {
			connObjectKey = key
		}
		if attr != nil {
			attrs.Merge(attr.Name, attr.Values)
		}
	}

	// Two items may target the connObjectKey's native name; whatever they
	// resolved to is overwritten with the identity key itself.
	if _, present := attrs.Get(ckItem.ExtAttrName); present {
		attrs.Set(ckItem.ExtAttrName, []string{connObjectKey})
	}

	name := a.EvaluateLink(in.Entity, prov, connObjectKey)
	attrs.Set(connector.NameAttr, []string{name})

	if in.Enable != nil {
		attrs.Set(connector.EnableAttr, []string{strconv.FormatBool(*in.Enable)})
	}
	if !in.ChangePwd {
		attrs.Remove(connector.PasswordAttr)
	}

	if res.EnforceMandatoryCondition {
		diagnostics = append(diagnostics, a.checkMandatory(prov, in.Entity, attrs)...)
	}

	a.metrics.AttributesAssembled(res.Name)
	if res.TraceLevel == TraceAll {
		log.Debugf("assembled %d attributes, connObjectKey=%q", attrs.Len(), connObjectKey)
	}

	return &Prepared{
		ConnObjectKey: connObjectKey,
		Name:          name,
		Attrs:         attrs.List(),
		Diagnostics:   diagnostics,
	}, nil
}

// prepareItem resolves one mapping item into either the connObjectKey
// (first return) or a native attribute (second return).
func (a *Assembler) prepareItem(res *Resource, prov *Provision, item Item, in AssembleInput) (string, *connector.Attr, error) {
	entities := a.entitiesFor(item, in.Entity)

	// Touched virtual cache entries are expired before the read so this
	// cycle never serves a stale value.
	if item.Kind == KindVirtual {
		for _, entity := range entities {
			a.virCache.Expire(entity.Kind(), entity.Key(), item.IntAttrName)
		}
		if schema, ok := a.schemas.Vir(item.IntAttrName); ok && schema.ReadOnly {
			return "", nil, nil
		}
	}

	values, err := a.resolver.Values(prov, item, entities, in.VirPatches)
	if err != nil {
		return "", nil, err
	}

	if item.ConnObjectKey {
		if len(values) == 0 {
			return "", nil, fmt.Errorf("no value resolved for connObjectKey item %q", item.IntAttrName)
		}
		return values[0], nil, nil
	}

	if item.IsPassword() {
		user, ok := in.Entity.(*identity.User)
		if !ok {
			return "", nil, nil
		}
		value, ok := a.passwordValue(res, user, in.Password)
		if !ok {
			return "", nil, nil
		}
		return "", &connector.Attr{Name: connector.PasswordAttr, Values: []string{value}}, nil
	}

	multivalue := a.multivalued(item) || item.SourceKind != in.Entity.Kind()
	if multivalue {
		return "", &connector.Attr{Name: item.ExtAttrName, Values: values}, nil
	}
	if len(values) == 0 {
		// Empty-valued marker: the attribute exists but carries no value.
		return "", &connector.Attr{Name: item.ExtAttrName, Values: []string{}}, nil
	}
	return "", &connector.Attr{Name: item.ExtAttrName, Values: values[:1:1]}, nil
}

// passwordValue applies the password precedence: explicit clear-text, then
// stored password when its cipher is reversible, then a generated random
// password when the resource allows it. No candidate means the password
// attribute is omitted entirely.
func (a *Assembler) passwordValue(res *Resource, user *identity.User, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	alg := password.CipherAlgorithm(user.CipherAlgorithm)
	if user.Password != "" && password.Reversible(alg) {
		decoded, err := a.encryptor.Decode(user.Password, alg)
		if err != nil {
			a.log.WithError(err).Errorf("could not decode stored password for user %q", user.Key())
		} else {
			return decoded, true
		}
	}
	if res.RandomPwdIfNotProvided {
		generated, err := a.generator.Generate()
		if err != nil {
			a.log.WithError(err).Errorf("could not generate random password for user %q", user.Key())
			return "", false
		}
		return generated, true
	}
	return "", false
}

// entitiesFor selects the entities a mapping item reads from. A user item
// sourced from groups reads every group the user belongs to.
func (a *Assembler) entitiesFor(item Item, entity identity.Any) []identity.Any {
	switch item.SourceKind {
	case identity.KindUser:
		if entity.Kind() == identity.KindUser {
			return []identity.Any{entity}
		}
	case identity.KindGroup:
		if entity.Kind() == identity.KindUser {
			groups := a.dir.GroupsOf(entity.Key())
			out := make([]identity.Any, 0, len(groups))
			for _, g := range groups {
				out = append(out, g)
			}
			return out
		}
		if entity.Kind() == identity.KindGroup {
			return []identity.Any{entity}
		}
	case identity.KindAnyObject:
		if entity.Kind() == identity.KindAnyObject {
			return []identity.Any{entity}
		}
	}
	return nil
}

// multivalued reports whether the item's source schema is declared
// multivalued. Virtual schemas are always treated as multivalued.
func (a *Assembler) multivalued(item Item) bool {
	switch item.Kind {
	case KindPlain:
		if schema, ok := a.schemas.Plain(item.IntAttrName); ok {
			return schema.Multivalued
		}
	case KindVirtual:
		return true
	}
	return false
}

// ConnObjectKeyValue resolves just the connObjectKey internal value for an
// entity and provision, without assembling the full attribute set.
func (a *Assembler) ConnObjectKeyValue(entity identity.Any, prov *Provision) (string, error) {
	ckItem, ok := prov.Mapping.ConnObjectKeyItem()
	if !ok {
		return "", ErrNoConnObjectKeyItem
	}
	values, err := a.resolver.Values(prov, ckItem, []identity.Any{entity}, nil)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

// checkMandatory evaluates each propagation item's mandatory condition and
// reports items whose condition holds but whose native attribute carries
// no value.
func (a *Assembler) checkMandatory(prov *Provision, entity identity.Any, attrs *connector.AttrSet) []Diagnostic {
	var diagnostics []Diagnostic
	for _, item := range prov.Mapping.PropagationItems() {
		if item.MandatoryCondition == "" || item.ConnObjectKey || item.IsPassword() {
			continue
		}
		result, err := a.eval.Evaluate(item.MandatoryCondition, a.resolver.ExprContext(entity, false))
		if err != nil {
			a.log.WithError(err).Warnf("mandatory condition of %q did not evaluate", item.IntAttrName)
			continue
		}
		if result != "true" {
			continue
		}
		if attr, ok := attrs.Get(item.ExtAttrName); !ok || len(attr.Values) == 0 {
			diagnostics = append(diagnostics, Diagnostic{
				IntAttrName: item.IntAttrName,
				ExtAttrName: item.ExtAttrName,
				Err:         fmt.Errorf("mandatory attribute %q has no value", item.ExtAttrName),
			})
		}
	}
	return diagnostics
}
