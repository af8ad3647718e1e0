// Package connector defines the uniform contract through which the engine
// reaches external systems, the native attribute representation exchanged
// over it, and the registry of named connector instances.
//
// Wire-level protocol implementations (LDAP, JDBC, SCIM) live behind the
// Connector interface and are external collaborators; the in-memory
// connector in this package exists for tests and local runs.
package connector

import "context"

// Reserved identity and operational attribute names.
const (
	// NameAttr is the resource-native identity attribute.
	NameAttr = "__NAME__"

	// UIDAttr is the native unique identifier attribute.
	UIDAttr = "__UID__"

	// PasswordAttr carries the clear-text password to set on the resource.
	PasswordAttr = "__PASSWORD__"

	// EnableAttr carries the enable/disable flag.
	EnableAttr = "__ENABLE__"
)

// Connector is the operation contract an external system driver implements.
// Each operation works on a set of (name, values) pairs where the reserved
// names above denote identity and operational attributes.
type Connector interface {
	// Create provisions a new object and returns its native identifier.
	Create(ctx context.Context, objectClass string, attrs []Attr) (string, error)

	// Update modifies the object with the given native identifier and
	// returns the (possibly changed) identifier. Drivers apply it as
	// create-or-update: an unknown identifier provisions the object.
	Update(ctx context.Context, objectClass, uid string, attrs []Attr) (string, error)

	// Delete removes an object.
	Delete(ctx context.Context, objectClass, uid string) error
}

// Attr is one native attribute: a name and its opaque values.
type Attr struct {
	// Name is the native attribute name, either reserved or free-form.
	Name string `json:"name"`

	// Values are the attribute values, stringified.
	Values []string `json:"values"`
}

// FirstValue returns the first value, or the empty string.
func (a Attr) FirstValue() string {
	if len(a.Values) == 0 {
		return ""
	}
	return a.Values[0]
}

// Find returns the attribute with the given name from a slice.
func Find(name string, attrs []Attr) (Attr, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}
