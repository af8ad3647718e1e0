package mapping

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/idforge/idforge/pkg/telemetry"
)

// Transformer is one named value transform applied to a mapping item's
// values before propagation or synchronization.
type Transformer interface {
	// BeforePropagation transforms values flowing outward to a resource.
	BeforePropagation(values []string) []string

	// BeforeSync transforms values flowing inward from a resource.
	BeforeSync(values []string) []string
}

// TransformerRegistry resolves transformer identifiers to constructed
// instances. Instances are registered once at configuration-load time;
// configuration validation rejects unknown identifiers, so a miss at apply
// time is downgraded to a logged warning and the transform is skipped.
type TransformerRegistry struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
}

// NewTransformerRegistry creates a registry preloaded with the built-in
// transformers.
func NewTransformerRegistry() *TransformerRegistry {
	r := &TransformerRegistry{transformers: make(map[string]Transformer)}
	r.Register("trim", trimTransformer{})
	r.Register("lowercase", caseTransformer{upper: false})
	r.Register("uppercase", caseTransformer{upper: true})
	r.Register("dropEmpty", dropEmptyTransformer{})
	return r
}

// Register adds or replaces a transformer under the given identifier.
func (r *TransformerRegistry) Register(name string, t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[name] = t
}

// Resolve returns the transformer registered under the given identifier.
func (r *TransformerRegistry) Resolve(name string) (Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transformers[name]
	return t, ok
}

// Has reports whether an identifier is registered.
func (r *TransformerRegistry) Has(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Names returns the registered identifiers, sorted.
func (r *TransformerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transformers))
	for name := range r.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every identifier resolves.
func (r *TransformerRegistry) Validate(names []string) error {
	for _, name := range names {
		if !r.Has(name) {
			return fmt.Errorf("unknown transformer %q", name)
		}
	}
	return nil
}

// BeforePropagation applies the item's transformer chain in order.
// Unresolvable identifiers are skipped with a warning; propagation stays
// best-effort per attribute.
func (r *TransformerRegistry) BeforePropagation(item Item, values []string, log *telemetry.Logger) []string {
	for _, name := range item.Transformers {
		t, ok := r.Resolve(name)
		if !ok {
			log.Warnf("transformer %q not registered, skipping for item %s", name, item.IntAttrName)
			continue
		}
		values = t.BeforePropagation(values)
	}
	return values
}

// BeforeSync applies the item's transformer chain in order for the inbound
// direction.
func (r *TransformerRegistry) BeforeSync(item Item, values []string, log *telemetry.Logger) []string {
	for _, name := range item.Transformers {
		t, ok := r.Resolve(name)
		if !ok {
			log.Warnf("transformer %q not registered, skipping for item %s", name, item.IntAttrName)
			continue
		}
		values = t.BeforeSync(values)
	}
	return values
}

// trimTransformer strips surrounding whitespace.
type trimTransformer struct{}

func (trimTransformer) BeforePropagation(values []string) []string { return trimAll(values) }
func (trimTransformer) BeforeSync(values []string) []string        { return trimAll(values) }

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

// caseTransformer folds values to a single case.
type caseTransformer struct {
	upper bool
}

func (t caseTransformer) BeforePropagation(values []string) []string { return t.fold(values) }
func (t caseTransformer) BeforeSync(values []string) []string        { return t.fold(values) }

func (t caseTransformer) fold(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if t.upper {
			out[i] = strings.ToUpper(v)
		} else {
			out[i] = strings.ToLower(v)
		}
	}
	return out
}

// dropEmptyTransformer removes empty values.
type dropEmptyTransformer struct{}

func (dropEmptyTransformer) BeforePropagation(values []string) []string { return dropEmpty(values) }
func (dropEmptyTransformer) BeforeSync(values []string) []string        { return dropEmpty(values) }

func dropEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
