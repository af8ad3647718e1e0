package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
	"github.com/idforge/idforge/pkg/telemetry"
)

// Load reads, parses and validates a configuration file. Unknown YAML
// fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.validateStructure(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := telemetry.DefaultLoggingConfig()
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = def.Output
	}
	if c.Executor.MaxParallel == 0 {
		c.Executor.MaxParallel = 10
	}
	if c.Executor.Timeout == 0 {
		c.Executor.Timeout = 30 * time.Second
	}
	if c.Password.Cipher == "" {
		c.Password.Cipher = "SHA256"
	}
	if c.Password.Policy.MinLength == 0 {
		c.Password.Policy.MinLength = 12
		c.Password.Policy.Digits = true
		c.Password.Policy.Uppercase = true
	}
}

// validateStructure enforces the mapping constraints a tag-based validator
// cannot express: one connObjectKey item per provision, at most one
// password item, at most one provision per any-type, unique names.
func (c *Config) validateStructure() error {
	resourceNames := make(map[string]struct{}, len(c.Resources))
	for _, res := range c.Resources {
		if _, dup := resourceNames[res.Name]; dup {
			return fmt.Errorf("resource %q: duplicate name", res.Name)
		}
		resourceNames[res.Name] = struct{}{}

		kinds := make(map[string]struct{}, len(res.Provisions))
		for _, prov := range res.Provisions {
			if _, dup := kinds[prov.AnyKind]; dup {
				return fmt.Errorf("resource %q: more than one provision for kind %s", res.Name, prov.AnyKind)
			}
			kinds[prov.AnyKind] = struct{}{}

			connObjectKeys := 0
			passwords := 0
			for _, item := range prov.Items {
				if item.ConnObjectKey {
					connObjectKeys++
				}
				if item.Password || item.Kind == string(mapping.KindPassword) {
					passwords++
				}
				if needsIntAttrName(item.Kind) && item.IntAttrName == "" {
					return fmt.Errorf("resource %q: %s item without int_attr_name", res.Name, item.Kind)
				}
				if !item.ConnObjectKey && item.ExtAttrName == "" && !item.Password && item.Kind != string(mapping.KindPassword) {
					return fmt.Errorf("resource %q: item %q without ext_attr_name", res.Name, item.IntAttrName)
				}
			}
			if connObjectKeys != 1 {
				return fmt.Errorf("resource %q: provision for kind %s must have exactly one conn_object_key item, found %d",
					res.Name, prov.AnyKind, connObjectKeys)
			}
			if passwords > 1 {
				return fmt.Errorf("resource %q: provision for kind %s has %d password items",
					res.Name, prov.AnyKind, passwords)
			}
		}
	}
	return nil
}

func needsIntAttrName(kind string) bool {
	switch mapping.ItemKind(kind) {
	case mapping.KindPlain, mapping.KindDerived, mapping.KindVirtual:
		return true
	}
	return false
}

// CheckTransformers verifies every referenced transformer identifier is
// registered.
func (c *Config) CheckTransformers(registry *mapping.TransformerRegistry) error {
	for _, res := range c.Resources {
		for _, prov := range res.Provisions {
			for _, item := range prov.Items {
				if err := registry.Validate(item.Transformers); err != nil {
					return fmt.Errorf("resource %q, item %q: %w", res.Name, item.IntAttrName, err)
				}
			}
		}
	}
	return nil
}

// BuildSchemas materializes the schema registry.
func (c *Config) BuildSchemas() *identity.SchemaRegistry {
	registry := identity.NewSchemaRegistry()
	for _, s := range c.Schemas.Plain {
		registry.RegisterPlain(identity.PlainSchema{
			Name:               s.Name,
			Type:               identity.AttrType(s.Type),
			Multivalued:        s.Multivalued,
			Unique:             s.Unique,
			MandatoryCondition: s.MandatoryCondition,
		})
	}
	for _, s := range c.Schemas.Derived {
		registry.RegisterDer(identity.DerSchema{Name: s.Name, Expression: s.Expression})
	}
	for _, s := range c.Schemas.Virtual {
		registry.RegisterVir(identity.VirSchema{Name: s.Name, ReadOnly: s.ReadOnly})
	}
	return registry
}

// BuildCatalog materializes the resource catalog.
func (c *Config) BuildCatalog() (*mapping.Catalog, error) {
	resources := make([]*mapping.Resource, 0, len(c.Resources))
	for _, rc := range c.Resources {
		res := &mapping.Resource{
			Name:                      rc.Name,
			Connector:                 rc.Connector,
			RandomPwdIfNotProvided:    rc.RandomPwdIfNotProvided,
			EnforceMandatoryCondition: rc.EnforceMandatoryCondition,
			TraceLevel:                mapping.TraceLevel(rc.TraceLevel),
			PropagationPriority:       rc.PropagationPriority,
			PropagationPrimary:        rc.PropagationPrimary,
		}
		if res.TraceLevel == "" {
			res.TraceLevel = mapping.TraceFailures
		}
		for _, pc := range rc.Provisions {
			prov := mapping.Provision{
				AnyKind:     identity.Kind(pc.AnyKind),
				ObjectClass: pc.ObjectClass,
				Mapping:     mapping.Mapping{ConnObjectLink: pc.ConnObjectLink},
			}
			for _, ic := range pc.Items {
				item := mapping.Item{
					IntAttrName:        ic.IntAttrName,
					Kind:               mapping.ItemKind(ic.Kind),
					SourceKind:         identity.Kind(ic.SourceKind),
					ExtAttrName:        ic.ExtAttrName,
					Purpose:            mapping.Purpose(ic.Purpose),
					ConnObjectKey:      ic.ConnObjectKey,
					Password:           ic.Password,
					MandatoryCondition: ic.MandatoryCondition,
					Transformers:       ic.Transformers,
				}
				if item.SourceKind == "" {
					item.SourceKind = prov.AnyKind
				}
				if item.Purpose == "" {
					item.Purpose = mapping.PurposeBoth
				}
				prov.Mapping.Items = append(prov.Mapping.Items, item)
			}
			res.Provisions = append(res.Provisions, prov)
		}
		resources = append(resources, res)
	}
	return mapping.NewCatalog(resources...)
}

// RefreshOnMembershipChange resolves the policy flag, defaulting to true.
func (c *Config) RefreshOnMembershipChange() bool {
	if c.Policy.RefreshOnMembershipChange == nil {
		return true
	}
	return *c.Policy.RefreshOnMembershipChange
}
