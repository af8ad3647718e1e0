package config

import (
	"time"

	"github.com/idforge/idforge/pkg/telemetry"
)

// Config is the root configuration document.
type Config struct {
	// Logging configures structured logging.
	Logging telemetry.LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus registry.
	Metrics telemetry.MetricsConfig `yaml:"metrics"`

	// Executor tunes propagation task execution.
	Executor ExecutorConfig `yaml:"executor"`

	// Audit configures the SQLite audit trail. An empty path disables it.
	Audit AuditConfig `yaml:"audit"`

	// Password configures ciphers and the random password policy.
	Password PasswordConfig `yaml:"password"`

	// Policy tunes task derivation.
	Policy PolicyConfig `yaml:"policy"`

	// Schemas declares the attribute schemas.
	Schemas SchemasConfig `yaml:"schemas"`

	// Resources declares the external resources and their mappings.
	Resources []ResourceConfig `yaml:"resources" validate:"dive"`
}

// ExecutorConfig tunes the propagation executor.
type ExecutorConfig struct {
	MaxParallel int           `yaml:"max_parallel" validate:"gte=0,lte=256"`
	MaxRetries  int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AuditConfig configures the audit trail store.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// PasswordConfig configures password handling.
type PasswordConfig struct {
	// Cipher is the algorithm new passwords are stored with.
	Cipher string `yaml:"cipher" validate:"omitempty,oneof=AES BCRYPT SHA256"`

	// Secret derives the AES key for reversible storage.
	Secret string `yaml:"secret"`

	// Policy shapes generated random passwords.
	Policy PasswordPolicyConfig `yaml:"policy"`
}

// PasswordPolicyConfig shapes generated random passwords.
type PasswordPolicyConfig struct {
	MinLength    int    `yaml:"min_length" validate:"gte=0,lte=128"`
	Digits       bool   `yaml:"digits"`
	Uppercase    bool   `yaml:"uppercase"`
	Special      bool   `yaml:"special"`
	SpecialChars string `yaml:"special_chars"`
}

// PolicyConfig tunes task derivation.
type PolicyConfig struct {
	RefreshOnMembershipChange *bool `yaml:"refresh_on_membership_change"`
}

// SchemasConfig declares the attribute schemas.
type SchemasConfig struct {
	Plain   []PlainSchemaConfig `yaml:"plain" validate:"dive"`
	Derived []DerSchemaConfig   `yaml:"derived" validate:"dive"`
	Virtual []VirSchemaConfig   `yaml:"virtual" validate:"dive"`
}

// PlainSchemaConfig declares one stored attribute schema.
type PlainSchemaConfig struct {
	Name               string `yaml:"name" validate:"required"`
	Type               string `yaml:"type" validate:"omitempty,oneof=String Long Boolean Date Binary"`
	Multivalued        bool   `yaml:"multivalued"`
	Unique             bool   `yaml:"unique"`
	MandatoryCondition string `yaml:"mandatory_condition"`
}

// DerSchemaConfig declares one derived attribute schema.
type DerSchemaConfig struct {
	Name       string `yaml:"name" validate:"required"`
	Expression string `yaml:"expression" validate:"required"`
}

// VirSchemaConfig declares one virtual attribute schema.
type VirSchemaConfig struct {
	Name     string `yaml:"name" validate:"required"`
	ReadOnly bool   `yaml:"read_only"`
}

// ResourceConfig declares one external resource.
type ResourceConfig struct {
	Name                      string            `yaml:"name" validate:"required"`
	Connector                 string            `yaml:"connector" validate:"required"`
	RandomPwdIfNotProvided    bool              `yaml:"random_pwd_if_not_provided"`
	EnforceMandatoryCondition bool              `yaml:"enforce_mandatory_condition"`
	TraceLevel                string            `yaml:"trace_level" validate:"omitempty,oneof=NONE FAILURES SUMMARY ALL"`
	PropagationPriority       *int              `yaml:"propagation_priority"`
	PropagationPrimary        bool              `yaml:"propagation_primary"`
	Provisions                []ProvisionConfig `yaml:"provisions" validate:"required,dive"`
}

// ProvisionConfig declares one any-type mapping on a resource.
type ProvisionConfig struct {
	AnyKind        string       `yaml:"any_kind" validate:"required,oneof=USER GROUP ANY_OBJECT"`
	ObjectClass    string       `yaml:"object_class" validate:"required"`
	ConnObjectLink string       `yaml:"conn_object_link"`
	Items          []ItemConfig `yaml:"items" validate:"required,dive"`
}

// ItemConfig declares one mapping item.
type ItemConfig struct {
	IntAttrName        string   `yaml:"int_attr_name"`
	Kind               string   `yaml:"kind" validate:"required,oneof=PlainSchema DerivedSchema VirtualSchema Key Username GroupName GroupOwnerSchema Password"`
	SourceKind         string   `yaml:"source_kind" validate:"omitempty,oneof=USER GROUP ANY_OBJECT"`
	ExtAttrName        string   `yaml:"ext_attr_name"`
	Purpose            string   `yaml:"purpose" validate:"omitempty,oneof=PROPAGATION SYNCHRONIZATION BOTH NONE"`
	ConnObjectKey      bool     `yaml:"conn_object_key"`
	Password           bool     `yaml:"password"`
	MandatoryCondition string   `yaml:"mandatory_condition"`
	Transformers       []string `yaml:"transformers"`
}
