package identity

import "sync"

// Directory is the narrow lookup contract the mapping and propagation
// layers use to reach related entities. The canonical persistence layer
// implements it; MemDirectory is the in-memory implementation used by the
// CLI and tests.
type Directory interface {
	// Find looks up an entity by kind and canonical key.
	Find(kind Kind, key string) (Any, bool)

	// GroupsOf returns the groups the given user belongs to.
	GroupsOf(userKey string) []*Group

	// MembersOnlyVia reports whether the given user is associated with the
	// named resource exclusively through the given group.
	MembersOnlyVia(userKey, resource, groupKey string) bool
}

// MemDirectory is a mutex-guarded in-memory Directory.
type MemDirectory struct {
	mu      sync.RWMutex
	users   map[string]*User
	groups  map[string]*Group
	objects map[string]*AnyObject
}

// NewMemDirectory creates an empty in-memory directory.
func NewMemDirectory() *MemDirectory {
	return &MemDirectory{
		users:   make(map[string]*User),
		groups:  make(map[string]*Group),
		objects: make(map[string]*AnyObject),
	}
}

// PutUser stores a user.
func (d *MemDirectory) PutUser(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.Key()] = u
}

// PutGroup stores a group.
func (d *MemDirectory) PutGroup(g *Group) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.Key()] = g
}

// PutAnyObject stores an any object.
func (d *MemDirectory) PutAnyObject(a *AnyObject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[a.Key()] = a
}

// Remove deletes an entity.
func (d *MemDirectory) Remove(kind Kind, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch kind {
	case KindUser:
		delete(d.users, key)
	case KindGroup:
		delete(d.groups, key)
	case KindAnyObject:
		delete(d.objects, key)
	}
}

// Find implements Directory.
func (d *MemDirectory) Find(kind Kind, key string) (Any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch kind {
	case KindUser:
		u, ok := d.users[key]
		return u, ok
	case KindGroup:
		g, ok := d.groups[key]
		return g, ok
	case KindAnyObject:
		a, ok := d.objects[key]
		return a, ok
	}
	return nil, false
}

// GroupsOf implements Directory.
func (d *MemDirectory) GroupsOf(userKey string) []*Group {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userKey]
	if !ok {
		return nil
	}
	groups := make([]*Group, 0, len(u.Memberships))
	for _, gk := range u.Memberships {
		if g, ok := d.groups[gk]; ok {
			groups = append(groups, g)
		}
	}
	return groups
}

// MembersOnlyVia implements Directory. A user is associated with a resource
// only via a group when the resource is neither assigned to the user
// directly nor reachable through any other of the user's groups.
func (d *MemDirectory) MembersOnlyVia(userKey, resource, groupKey string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userKey]
	if !ok {
		return false
	}
	for _, r := range u.Resources() {
		if r == resource {
			return false
		}
	}
	via := false
	for _, gk := range u.Memberships {
		g, ok := d.groups[gk]
		if !ok {
			continue
		}
		for _, r := range g.Resources() {
			if r != resource {
				continue
			}
			if gk == groupKey {
				via = true
			} else {
				return false
			}
		}
	}
	return via
}
