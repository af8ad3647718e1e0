package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemConnector is an in-memory Connector used by tests and local runs.
// Objects are stored per object class, keyed by native identifier.
type MemConnector struct {
	mu      sync.RWMutex
	objects map[string]map[string][]Attr
}

// NewMemConnector creates an empty in-memory connector.
func NewMemConnector() *MemConnector {
	return &MemConnector{objects: make(map[string]map[string][]Attr)}
}

// Create implements Connector. The native identifier is taken from
// __NAME__ when present, otherwise generated.
func (m *MemConnector) Create(ctx context.Context, objectClass string, attrs []Attr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	uid := uuid.New().String()
	if name, ok := Find(NameAttr, attrs); ok && name.FirstValue() != "" {
		uid = name.FirstValue()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	class := m.objects[objectClass]
	if class == nil {
		class = make(map[string][]Attr)
		m.objects[objectClass] = class
	}
	if _, exists := class[uid]; exists {
		return "", fmt.Errorf("object %q already exists in class %q", uid, objectClass)
	}
	class[uid] = append([]Attr(nil), attrs...)
	return uid, nil
}

// Update implements Connector as create-or-update: an unknown identifier
// materializes the object, the way a user first reaches a resource through
// a group. A __NAME__ differing from the current identifier renames the
// object, mirroring a rename/move on a directory.
func (m *MemConnector) Update(ctx context.Context, objectClass, uid string, attrs []Attr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	class := m.objects[objectClass]
	if class == nil {
		class = make(map[string][]Attr)
		m.objects[objectClass] = class
	}
	existing, ok := class[uid]
	if !ok {
		newUID := uid
		if name, ok := Find(NameAttr, attrs); ok && name.FirstValue() != "" {
			newUID = name.FirstValue()
		}
		class[newUID] = append([]Attr(nil), attrs...)
		return newUID, nil
	}

	merged := append([]Attr(nil), existing...)
	for _, a := range attrs {
		replaced := false
		for i := range merged {
			if merged[i].Name == a.Name {
				merged[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, a)
		}
	}

	newUID := uid
	if name, ok := Find(NameAttr, attrs); ok && name.FirstValue() != "" && name.FirstValue() != uid {
		newUID = name.FirstValue()
		delete(class, uid)
	}
	class[newUID] = merged
	return newUID, nil
}

// Delete implements Connector.
func (m *MemConnector) Delete(ctx context.Context, objectClass, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	class := m.objects[objectClass]
	if class == nil {
		return fmt.Errorf("object %q not found in class %q", uid, objectClass)
	}
	if _, ok := class[uid]; !ok {
		return fmt.Errorf("object %q not found in class %q", uid, objectClass)
	}
	delete(class, uid)
	return nil
}

// Object returns a stored object's attributes, for inspection.
func (m *MemConnector) Object(objectClass, uid string) ([]Attr, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	class := m.objects[objectClass]
	if class == nil {
		return nil, false
	}
	attrs, ok := class[uid]
	return attrs, ok
}

// Count returns the number of objects stored in a class.
func (m *MemConnector) Count(objectClass string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[objectClass])
}
