// Package identity defines the canonical entity model of the provisioning
// engine: users, groups and generic any objects, their plain, derived and
// virtual attributes, the schema catalog describing those attributes, and
// the patch types carried by workflow results.
//
// Entities here are the engine-internal view of an identity. How they are
// persisted or searched is out of scope; the Directory interface is the
// narrow contract through which the mapping and propagation layers look up
// related entities (e.g. the groups a user belongs to).
package identity
