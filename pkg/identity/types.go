package identity

// Kind discriminates the three canonical entity families.
type Kind string

const (
	// KindUser identifies user entities.
	KindUser Kind = "USER"

	// KindGroup identifies group entities.
	KindGroup Kind = "GROUP"

	// KindAnyObject identifies generic any-object entities.
	KindAnyObject Kind = "ANY_OBJECT"
)

// PlainAttr is a stored attribute: a schema reference plus its values.
// Unique-valued schemas keep their single value in Unique; all other
// schemas accumulate in Values.
type PlainAttr struct {
	// Schema is the plain schema name this attribute instantiates.
	Schema string

	// Values holds the attribute values, stringified.
	Values []string

	// Unique holds the single value for unique-valued schemas.
	Unique *string
}

// VirAttr is a virtual attribute: values are not stored canonically but
// fetched (and cached) from external resources.
type VirAttr struct {
	// Schema is the virtual schema name.
	Schema string

	// Values holds the current virtual values.
	Values []string
}

// Any is the read-only view of a canonical entity consumed by the mapping
// and propagation layers.
type Any interface {
	// Key returns the canonical identifier.
	Key() string

	// Kind returns the entity kind.
	Kind() Kind

	// Name returns the entity's name field: the username for users, the
	// group name for groups, the object name for any objects.
	Name() string

	// PlainAttr looks up a stored attribute by schema name.
	PlainAttr(schema string) (*PlainAttr, bool)

	// PlainAttrs returns all stored attributes.
	PlainAttrs() []PlainAttr

	// VirAttr looks up a virtual attribute by schema name.
	VirAttr(schema string) (*VirAttr, bool)

	// Resources returns the names of the external resources currently
	// assigned to this entity.
	Resources() []string

	// Fields returns the entity's scalar fields as a read-only dictionary
	// for expression evaluation.
	Fields() map[string]string
}

// base carries the state shared by all entity kinds.
type base struct {
	key        string
	name       string
	plainAttrs []PlainAttr
	virAttrs   []VirAttr
	resources  []string
}

func (b *base) Key() string  { return b.key }
func (b *base) Name() string { return b.name }

func (b *base) PlainAttr(schema string) (*PlainAttr, bool) {
	for i := range b.plainAttrs {
		if b.plainAttrs[i].Schema == schema {
			return &b.plainAttrs[i], true
		}
	}
	return nil, false
}

func (b *base) PlainAttrs() []PlainAttr {
	return b.plainAttrs
}

func (b *base) VirAttr(schema string) (*VirAttr, bool) {
	for i := range b.virAttrs {
		if b.virAttrs[i].Schema == schema {
			return &b.virAttrs[i], true
		}
	}
	return nil, false
}

func (b *base) Resources() []string {
	return b.resources
}

// User is a canonical user entity.
type User struct {
	base

	// Password is the stored password, encoded with CipherAlgorithm.
	Password string

	// CipherAlgorithm names the cipher the stored password is encoded with.
	CipherAlgorithm string

	// Suspended reports the suspension state; nil means never activated.
	Suspended *bool

	// Memberships lists the keys of the groups this user belongs to.
	Memberships []string
}

// NewUser creates a user entity.
func NewUser(key, username string, opts ...EntityOption) *User {
	u := &User{base: base{key: key, name: username}}
	for _, opt := range opts {
		opt(&u.base)
	}
	return u
}

// Kind implements Any.
func (u *User) Kind() Kind { return KindUser }

// Username returns the user's login name.
func (u *User) Username() string { return u.name }

// Fields implements Any.
func (u *User) Fields() map[string]string {
	return map[string]string{
		"key":      u.key,
		"username": u.name,
		"name":     u.name,
	}
}

// Group is a canonical group entity.
type Group struct {
	base

	// OwnerUser is the key of the owning user, if any.
	OwnerUser string

	// OwnerGroup is the key of the owning group, if any.
	OwnerGroup string
}

// NewGroup creates a group entity.
func NewGroup(key, name string, opts ...EntityOption) *Group {
	g := &Group{base: base{key: key, name: name}}
	for _, opt := range opts {
		opt(&g.base)
	}
	return g
}

// Kind implements Any.
func (g *Group) Kind() Kind { return KindGroup }

// Fields implements Any.
func (g *Group) Fields() map[string]string {
	return map[string]string{
		"key":  g.key,
		"name": g.name,
	}
}

// AnyObject is a canonical generic entity.
type AnyObject struct {
	base

	// Type is the any-object type name (e.g. "PRINTER").
	Type string
}

// NewAnyObject creates a generic any-object entity.
func NewAnyObject(key, name, typ string, opts ...EntityOption) *AnyObject {
	a := &AnyObject{base: base{key: key, name: name}, Type: typ}
	for _, opt := range opts {
		opt(&a.base)
	}
	return a
}

// Kind implements Any.
func (a *AnyObject) Kind() Kind { return KindAnyObject }

// Fields implements Any.
func (a *AnyObject) Fields() map[string]string {
	return map[string]string{
		"key":  a.key,
		"name": a.name,
		"type": a.Type,
	}
}

// EntityOption configures an entity at construction time.
type EntityOption func(*base)

// WithPlainAttr adds a stored attribute.
func WithPlainAttr(schema string, values ...string) EntityOption {
	return func(b *base) {
		b.plainAttrs = append(b.plainAttrs, PlainAttr{Schema: schema, Values: values})
	}
}

// WithUniquePlainAttr adds a unique-valued stored attribute.
func WithUniquePlainAttr(schema, value string) EntityOption {
	return func(b *base) {
		v := value
		b.plainAttrs = append(b.plainAttrs, PlainAttr{Schema: schema, Unique: &v})
	}
}

// WithVirAttr adds a virtual attribute.
func WithVirAttr(schema string, values ...string) EntityOption {
	return func(b *base) {
		b.virAttrs = append(b.virAttrs, VirAttr{Schema: schema, Values: values})
	}
}

// WithResources assigns external resources.
func WithResources(resources ...string) EntityOption {
	return func(b *base) {
		b.resources = append(b.resources, resources...)
	}
}
