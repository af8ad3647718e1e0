package mapping

import (
	"fmt"
	"strconv"

	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/identity"
)

// InboundTemplate collects the canonical values decoded from one external
// object during synchronization. The workflow layer turns a filled template
// into an entity create or update.
type InboundTemplate struct {
	// Kind is the entity kind being synchronized.
	Kind identity.Kind

	// Name is the username or group name, when mapped.
	Name string

	// Key is the canonical key, when the mapping carries one.
	Key string

	// Password is the inbound clear-text password, when mapped.
	Password string

	// Enabled mirrors the enable operational attribute, when present.
	Enabled *bool

	// PlainAttrs are the decoded plain attributes.
	PlainAttrs []identity.PlainAttr

	// VirAttrs are the decoded virtual attributes.
	VirAttrs []identity.VirAttr
}

// ApplyInbound decodes one native attribute into the template according to
// a synchronization mapping item. Values pass through the item's
// transformer chain unless the item is virtual.
func (a *Assembler) ApplyInbound(item Item, attr connector.Attr, tpl *InboundTemplate) error {
	if !item.Purpose.ForSync() {
		return nil
	}

	values := append([]string(nil), attr.Values...)
	if item.Kind != KindVirtual {
		values = a.resolver.transformers.BeforeSync(item, values, a.log)
	}

	switch item.Kind {
	case KindUsername, KindGroupName:
		if len(values) > 0 {
			tpl.Name = values[0]
		}

	case KindKey:
		if len(values) > 0 {
			tpl.Key = values[0]
		}

	case KindPassword:
		if len(values) > 0 {
			tpl.Password = values[0]
		}

	case KindPlain:
		tpl.PlainAttrs = append(tpl.PlainAttrs, identity.PlainAttr{
			Schema: item.IntAttrName,
			Values: values,
		})

	case KindVirtual:
		tpl.VirAttrs = append(tpl.VirAttrs, identity.VirAttr{
			Schema: item.IntAttrName,
			Values: values,
		})

	case KindDerived, KindGroupOwner:
		// Computed on the canonical side, never written from a resource.

	default:
		return fmt.Errorf("unknown mapping item kind %q", item.Kind)
	}

	if item.IsPassword() && item.Kind != KindPassword && len(values) > 0 {
		tpl.Password = values[0]
	}

	return nil
}

// ApplyInboundObject decodes a full native attribute set through every
// synchronization item of the provision. The enable operational attribute
// is honored regardless of mapping items.
func (a *Assembler) ApplyInboundObject(prov *Provision, attrs []connector.Attr, tpl *InboundTemplate) error {
	tpl.Kind = prov.AnyKind

	byName := make(map[string]connector.Attr, len(attrs))
	for _, attr := range attrs {
		byName[attr.Name] = attr
	}

	if enable, ok := byName[connector.EnableAttr]; ok && len(enable.Values) > 0 {
		parsed, err := strconv.ParseBool(enable.Values[0])
		if err == nil {
			tpl.Enabled = &parsed
		}
	}
	if pwd, ok := byName[connector.PasswordAttr]; ok && len(pwd.Values) > 0 {
		tpl.Password = pwd.Values[0]
	}

	for _, item := range prov.Mapping.SyncItems() {
		attr, ok := byName[item.ExtAttrName]
		if !ok {
			if item.ConnObjectKey {
				if name, present := byName[connector.NameAttr]; present {
					attr, ok = name, true
				}
			}
			if !ok {
				continue
			}
		}
		if err := a.ApplyInbound(item, attr, tpl); err != nil {
			return err
		}
	}
	return nil
}
