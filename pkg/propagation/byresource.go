package propagation

import "sort"

// ByResource accumulates which operation each resource needs as a change
// works its way through the workflow layer. One resource ends up in at
// most one operation set after Purge.
type ByResource struct {
	toBeCreated map[string]struct{}
	toBeUpdated map[string]struct{}
	toBeDeleted map[string]struct{}

	// oldConnObjectKeys remembers the previous identity value per resource
	// when the key-bearing attribute changed.
	oldConnObjectKeys map[string]string
}

// NewByResource creates an empty accumulator.
func NewByResource() *ByResource {
	return &ByResource{
		toBeCreated:       make(map[string]struct{}),
		toBeUpdated:       make(map[string]struct{}),
		toBeDeleted:       make(map[string]struct{}),
		oldConnObjectKeys: make(map[string]string),
	}
}

func (p *ByResource) set(op Operation) map[string]struct{} {
	switch op {
	case OpCreate:
		return p.toBeCreated
	case OpUpdate:
		return p.toBeUpdated
	case OpDelete:
		return p.toBeDeleted
	}
	return nil
}

// Add records that a resource needs the given operation.
func (p *ByResource) Add(op Operation, resource string) {
	if s := p.set(op); s != nil {
		s[resource] = struct{}{}
	}
}

// AddAll records the given operation for several resources.
func (p *ByResource) AddAll(op Operation, resources []string) {
	for _, r := range resources {
		p.Add(op, r)
	}
}

// Remove drops a resource from every operation set.
func (p *ByResource) Remove(resource string) {
	delete(p.toBeCreated, resource)
	delete(p.toBeUpdated, resource)
	delete(p.toBeDeleted, resource)
}

// Merge folds another accumulator into this one.
func (p *ByResource) Merge(other *ByResource) {
	if other == nil {
		return
	}
	for r := range other.toBeCreated {
		p.toBeCreated[r] = struct{}{}
	}
	for r := range other.toBeUpdated {
		p.toBeUpdated[r] = struct{}{}
	}
	for r := range other.toBeDeleted {
		p.toBeDeleted[r] = struct{}{}
	}
	for r, k := range other.oldConnObjectKeys {
		p.oldConnObjectKeys[r] = k
	}
}

// Purge collapses overlaps so each resource carries one operation: a
// pending create supersedes an update, and a create followed by a delete
// cancels out entirely.
func (p *ByResource) Purge() {
	for r := range p.toBeCreated {
		delete(p.toBeUpdated, r)
	}
	for r := range p.toBeDeleted {
		if _, ok := p.toBeCreated[r]; ok {
			delete(p.toBeCreated, r)
			delete(p.toBeDeleted, r)
			continue
		}
		delete(p.toBeUpdated, r)
	}
}

// Get returns the resources recorded for an operation, sorted.
func (p *ByResource) Get(op Operation) []string {
	s := p.set(op)
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether a resource is recorded for an operation.
func (p *ByResource) Contains(op Operation, resource string) bool {
	s := p.set(op)
	_, ok := s[resource]
	return ok
}

// Empty reports whether nothing was recorded.
func (p *ByResource) Empty() bool {
	return len(p.toBeCreated) == 0 && len(p.toBeUpdated) == 0 && len(p.toBeDeleted) == 0
}

// SetOldConnObjectKey remembers the previous identity value for a resource.
func (p *ByResource) SetOldConnObjectKey(resource, key string) {
	p.oldConnObjectKeys[resource] = key
}

// OldConnObjectKey returns the remembered previous identity value, if any.
func (p *ByResource) OldConnObjectKey(resource string) (string, bool) {
	k, ok := p.oldConnObjectKeys[resource]
	return k, ok
}
