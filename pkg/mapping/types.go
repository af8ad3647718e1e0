package mapping

import (
	"fmt"

	"github.com/idforge/idforge/pkg/identity"
)

// Purpose restricts a mapping item to one or both propagation directions.
type Purpose string

const (
	// PurposePropagation items only flow outward to resources.
	PurposePropagation Purpose = "PROPAGATION"

	// PurposeSynchronization items only flow inward from resources.
	PurposeSynchronization Purpose = "SYNCHRONIZATION"

	// PurposeBoth items flow in both directions.
	PurposeBoth Purpose = "BOTH"

	// PurposeNone disables the item entirely.
	PurposeNone Purpose = "NONE"
)

// ForPropagation reports whether an item with this purpose participates in
// propagation.
func (p Purpose) ForPropagation() bool {
	return p == PurposePropagation || p == PurposeBoth
}

// ForSync reports whether an item with this purpose participates in
// synchronization.
func (p Purpose) ForSync() bool {
	return p == PurposeSynchronization || p == PurposeBoth
}

// ItemKind is the canonical side of a mapping item: which source the value
// is read from.
type ItemKind string

const (
	// KindPlain reads a stored plain attribute.
	KindPlain ItemKind = "PlainSchema"

	// KindDerived evaluates a derivation expression over plain attributes.
	KindDerived ItemKind = "DerivedSchema"

	// KindVirtual reads a virtual attribute.
	KindVirtual ItemKind = "VirtualSchema"

	// KindKey reads the canonical identifier.
	KindKey ItemKind = "Key"

	// KindUsername reads the username; valid only for user entities.
	KindUsername ItemKind = "Username"

	// KindGroupName reads the group name; valid only for group entities.
	KindGroupName ItemKind = "GroupName"

	// KindGroupOwner resolves the owning user's or group's identity link on
	// the same resource.
	KindGroupOwner ItemKind = "GroupOwnerSchema"

	// KindPassword maps the password.
	KindPassword ItemKind = "Password"
)

// Item is one rule translating a canonical attribute to a native one.
type Item struct {
	// IntAttrName is the canonical attribute identifier (schema name, or
	// empty for Key/Username/GroupName/Password kinds).
	IntAttrName string

	// Kind selects the canonical value source.
	Kind ItemKind

	// SourceKind is the any-type-kind the value is read from. A user item
	// with SourceKind group pulls values from all the user's groups.
	SourceKind identity.Kind

	// ExtAttrName is the native attribute name on the resource.
	ExtAttrName string

	// Purpose restricts the item to propagation, synchronization, both or
	// neither.
	Purpose Purpose

	// ConnObjectKey marks the item whose resolved value locates the entity
	// on the resource. Exactly one item per provision carries it.
	ConnObjectKey bool

	// Password marks the password item. At most one per provision.
	Password bool

	// MandatoryCondition is a boolean expression deciding whether a value
	// is required at propagation time.
	MandatoryCondition string

	// Transformers is the ordered list of transformer identifiers applied
	// to resolved values.
	Transformers []string
}

// IsPassword reports whether the item maps the password.
func (i Item) IsPassword() bool {
	return i.Password || i.Kind == KindPassword
}

// Mapping is the ordered list of items binding one any-type to a resource.
type Mapping struct {
	// ConnObjectLink is the optional expression computing the resource
	// identity link (__NAME__) from entity fields and attributes.
	ConnObjectLink string

	// Items are the mapping rules, in configuration order.
	Items []Item
}

// ConnObjectKeyItem returns the item flagged as connObjectKey.
func (m *Mapping) ConnObjectKeyItem() (Item, bool) {
	for _, item := range m.Items {
		if item.ConnObjectKey {
			return item, true
		}
	}
	return Item{}, false
}

// PropagationItems returns the items participating in propagation.
func (m *Mapping) PropagationItems() []Item {
	out := make([]Item, 0, len(m.Items))
	for _, item := range m.Items {
		if item.Purpose.ForPropagation() {
			out = append(out, item)
		}
	}
	return out
}

// SyncItems returns the items participating in synchronization.
func (m *Mapping) SyncItems() []Item {
	out := make([]Item, 0, len(m.Items))
	for _, item := range m.Items {
		if item.Purpose.ForSync() {
			out = append(out, item)
		}
	}
	return out
}

// Provision binds one any-type to one external resource through a mapping.
type Provision struct {
	// AnyKind is the entity kind this provision applies to.
	AnyKind identity.Kind

	// ObjectClass is the connector object class (at most one per provision).
	ObjectClass string

	// Mapping holds the mapping rules.
	Mapping Mapping
}

// TraceLevel gates how much propagation detail a resource logs.
type TraceLevel string

const (
	// TraceNone logs nothing beyond errors.
	TraceNone TraceLevel = "NONE"

	// TraceFailures logs failed propagations only.
	TraceFailures TraceLevel = "FAILURES"

	// TraceSummary logs one line per propagation.
	TraceSummary TraceLevel = "SUMMARY"

	// TraceAll logs full attribute detail.
	TraceAll TraceLevel = "ALL"
)

// Resource is an external system reachable through a connector, with its
// propagation policies and per-any-type provisions.
type Resource struct {
	// Name is the resource identifier.
	Name string

	// Connector is the connector registry identifier.
	Connector string

	// Provisions holds at most one provision per any-type.
	Provisions []Provision

	// RandomPwdIfNotProvided generates a policy-compliant random password
	// when no clear-text password is available for propagation.
	RandomPwdIfNotProvided bool

	// EnforceMandatoryCondition rejects propagation of entities missing
	// mandatory mapped values.
	EnforceMandatoryCondition bool

	// TraceLevel gates propagation logging detail.
	TraceLevel TraceLevel

	// PropagationPriority orders this resource's tasks relative to other
	// resources; nil means unordered.
	PropagationPriority *int

	// PropagationPrimary marks the resource whose failure aborts dispatch
	// of subsequent ordered tasks.
	PropagationPrimary bool
}

// Provision returns the provision for the given any-type kind.
func (r *Resource) Provision(kind identity.Kind) (*Provision, bool) {
	for i := range r.Provisions {
		if r.Provisions[i].AnyKind == kind {
			return &r.Provisions[i], true
		}
	}
	return nil, false
}

// Catalog is the lookup of configured resources by name.
type Catalog struct {
	resources map[string]*Resource
	order     []string
}

// NewCatalog creates a catalog from the given resources.
func NewCatalog(resources ...*Resource) (*Catalog, error) {
	c := &Catalog{resources: make(map[string]*Resource, len(resources))}
	for _, r := range resources {
		if _, dup := c.resources[r.Name]; dup {
			return nil, fmt.Errorf("duplicate resource %q", r.Name)
		}
		c.resources[r.Name] = r
		c.order = append(c.order, r.Name)
	}
	return c, nil
}

// Resource looks up a resource by name.
func (c *Catalog) Resource(name string) (*Resource, bool) {
	r, ok := c.resources[name]
	return r, ok
}

// Names returns the resource names in registration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}
