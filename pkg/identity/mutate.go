package identity

// Mutators used by the workflow layer when applying patches. The mapping
// and propagation layers only ever see the read-only Any view.

// Rename changes the entity's name field.
func (b *base) Rename(name string) {
	b.name = name
}

// SetPlainAttr adds or replaces a stored attribute.
func (b *base) SetPlainAttr(schema string, values []string) {
	for i := range b.plainAttrs {
		if b.plainAttrs[i].Schema == schema {
			b.plainAttrs[i] = PlainAttr{Schema: schema, Values: values}
			return
		}
	}
	b.plainAttrs = append(b.plainAttrs, PlainAttr{Schema: schema, Values: values})
}

// SetUniquePlainAttr adds or replaces a unique-valued stored attribute.
func (b *base) SetUniquePlainAttr(schema, value string) {
	v := value
	for i := range b.plainAttrs {
		if b.plainAttrs[i].Schema == schema {
			b.plainAttrs[i] = PlainAttr{Schema: schema, Unique: &v}
			return
		}
	}
	b.plainAttrs = append(b.plainAttrs, PlainAttr{Schema: schema, Unique: &v})
}

// RemovePlainAttr drops a stored attribute.
func (b *base) RemovePlainAttr(schema string) {
	for i := range b.plainAttrs {
		if b.plainAttrs[i].Schema == schema {
			b.plainAttrs = append(b.plainAttrs[:i], b.plainAttrs[i+1:]...)
			return
		}
	}
}

// SetVirAttr adds or replaces a virtual attribute.
func (b *base) SetVirAttr(schema string, values []string) {
	for i := range b.virAttrs {
		if b.virAttrs[i].Schema == schema {
			b.virAttrs[i] = VirAttr{Schema: schema, Values: values}
			return
		}
	}
	b.virAttrs = append(b.virAttrs, VirAttr{Schema: schema, Values: values})
}

// AssignResource adds a resource assignment, once.
func (b *base) AssignResource(name string) {
	for _, r := range b.resources {
		if r == name {
			return
		}
	}
	b.resources = append(b.resources, name)
}

// UnassignResource drops a resource assignment.
func (b *base) UnassignResource(name string) {
	for i, r := range b.resources {
		if r == name {
			b.resources = append(b.resources[:i], b.resources[i+1:]...)
			return
		}
	}
}

// HasResource reports whether a resource is assigned.
func (b *base) HasResource(name string) bool {
	for _, r := range b.resources {
		if r == name {
			return true
		}
	}
	return false
}
