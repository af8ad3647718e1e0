package identity

import "sync"

// AttrType is the declared value type of a plain schema.
type AttrType string

const (
	// TypeString is the default attribute type.
	TypeString AttrType = "String"

	// TypeLong is a 64-bit integer attribute type.
	TypeLong AttrType = "Long"

	// TypeBoolean is a boolean attribute type.
	TypeBoolean AttrType = "Boolean"

	// TypeDate is a timestamp attribute type.
	TypeDate AttrType = "Date"

	// TypeBinary is an opaque binary attribute type.
	TypeBinary AttrType = "Binary"
)

// PlainSchema describes a stored attribute.
type PlainSchema struct {
	// Name is the schema identifier.
	Name string

	// Type is the declared value type.
	Type AttrType

	// Multivalued reports whether the attribute may carry several values.
	Multivalued bool

	// Unique reports whether the attribute is unique-valued across entities.
	Unique bool

	// MandatoryCondition is a boolean expression deciding whether the
	// attribute is mandatory. Empty means optional.
	MandatoryCondition string
}

// DerSchema describes a derived attribute: its value is computed from an
// expression over the entity's plain attributes.
type DerSchema struct {
	// Name is the schema identifier.
	Name string

	// Expression is the derivation expression.
	Expression string
}

// VirSchema describes a virtual attribute: values live on external
// resources and are only cached canonically.
type VirSchema struct {
	// Name is the schema identifier.
	Name string

	// ReadOnly virtual schemas are never propagated.
	ReadOnly bool
}

// SchemaRegistry is the in-memory catalog of attribute schemas consulted
// during mapping resolution. Schemas are long-lived configuration, mutated
// only through administrative operations.
type SchemaRegistry struct {
	mu    sync.RWMutex
	plain map[string]PlainSchema
	der   map[string]DerSchema
	vir   map[string]VirSchema
}

// NewSchemaRegistry creates an empty schema registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		plain: make(map[string]PlainSchema),
		der:   make(map[string]DerSchema),
		vir:   make(map[string]VirSchema),
	}
}

// RegisterPlain adds or replaces a plain schema.
func (r *SchemaRegistry) RegisterPlain(s PlainSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Type == "" {
		s.Type = TypeString
	}
	r.plain[s.Name] = s
}

// RegisterDer adds or replaces a derived schema.
func (r *SchemaRegistry) RegisterDer(s DerSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.der[s.Name] = s
}

// RegisterVir adds or replaces a virtual schema.
func (r *SchemaRegistry) RegisterVir(s VirSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vir[s.Name] = s
}

// Plain looks up a plain schema by name.
func (r *SchemaRegistry) Plain(name string) (PlainSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.plain[name]
	return s, ok
}

// Der looks up a derived schema by name.
func (r *SchemaRegistry) Der(name string) (DerSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.der[name]
	return s, ok
}

// Ders returns all registered derived schemas.
func (r *SchemaRegistry) Ders() []DerSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DerSchema, 0, len(r.der))
	for _, s := range r.der {
		out = append(out, s)
	}
	return out
}

// Vir looks up a virtual schema by name.
func (r *SchemaRegistry) Vir(name string) (VirSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.vir[name]
	return s, ok
}
