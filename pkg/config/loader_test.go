package config

import (
	"strings"
	"testing"
	"time"

	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
)

const validConfig = `
logging:
  level: debug
executor:
  max_parallel: 4
password:
  cipher: AES
  secret: s3cret
schemas:
  plain:
    - name: email
      unique: true
    - name: phone
      multivalued: true
  derived:
    - name: displayName
      expression: 'attr("firstname") + " " + fields["username"]'
  virtual:
    - name: badge
resources:
  - name: ldap
    connector: mem
    propagation_priority: 1
    propagation_primary: true
    provisions:
      - any_kind: USER
        object_class: __ACCOUNT__
        conn_object_link: '"uid=" + fields["username"] + ",ou=people"'
        items:
          - kind: Username
            ext_attr_name: uid
            conn_object_key: true
          - kind: PlainSchema
            int_attr_name: email
            ext_attr_name: mail
            transformers: [lowercase]
          - kind: Password
            password: true
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
	if cfg.Executor.MaxParallel != 4 {
		t.Errorf("max_parallel = %d", cfg.Executor.MaxParallel)
	}
	// Unset values receive defaults.
	if cfg.Executor.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want default 30s", cfg.Executor.Timeout)
	}
	if cfg.Password.Policy.MinLength != 12 || !cfg.Password.Policy.Digits {
		t.Errorf("password policy defaults not applied: %+v", cfg.Password.Policy)
	}
	if len(cfg.Resources) != 1 || cfg.Resources[0].Name != "ldap" {
		t.Fatalf("resources = %+v", cfg.Resources)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("loging:\n  level: debug\n"))
	if err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestParseRejectsInvalidEnums(t *testing.T) {
	bad := strings.Replace(validConfig, "cipher: AES", "cipher: ROT13", 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Error("expected error for unknown cipher")
	}

	bad = strings.Replace(validConfig, "any_kind: USER", "any_kind: ROBOT", 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Error("expected error for unknown any_kind")
	}
}

func TestParseRejectsMissingConnObjectKey(t *testing.T) {
	bad := strings.Replace(validConfig, "conn_object_key: true", "conn_object_key: false", 1)
	_, err := Parse([]byte(bad))
	if err == nil || !strings.Contains(err.Error(), "conn_object_key") {
		t.Errorf("err = %v, want conn_object_key complaint", err)
	}
}

func TestParseRejectsDuplicateResources(t *testing.T) {
	const dup = `
resources:
  - name: ldap
    connector: mem
    provisions:
      - any_kind: USER
        object_class: __ACCOUNT__
        items:
          - kind: Username
            ext_attr_name: uid
            conn_object_key: true
  - name: ldap
    connector: mem
    provisions:
      - any_kind: USER
        object_class: __ACCOUNT__
        items:
          - kind: Username
            ext_attr_name: uid
            conn_object_key: true
`
	_, err := Parse([]byte(dup))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("err = %v, want duplicate resource complaint", err)
	}
}

func TestParseRejectsItemWithoutIntAttrName(t *testing.T) {
	bad := strings.Replace(validConfig, "int_attr_name: email", `int_attr_name: ""`, 1)
	_, err := Parse([]byte(bad))
	if err == nil || !strings.Contains(err.Error(), "int_attr_name") {
		t.Errorf("err = %v, want int_attr_name complaint", err)
	}
}

func TestCheckTransformers(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.CheckTransformers(mapping.NewTransformerRegistry()); err != nil {
		t.Errorf("CheckTransformers: %v", err)
	}

	bad := strings.Replace(validConfig, "[lowercase]", "[nope]", 1)
	cfg, err = Parse([]byte(bad))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.CheckTransformers(mapping.NewTransformerRegistry()); err == nil {
		t.Error("expected error for unknown transformer")
	}
}

func TestBuildSchemas(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	schemas := cfg.BuildSchemas()

	if s, ok := schemas.Plain("email"); !ok || !s.Unique {
		t.Errorf("email schema = %+v, %v", s, ok)
	}
	if s, ok := schemas.Plain("phone"); !ok || !s.Multivalued {
		t.Errorf("phone schema = %+v, %v", s, ok)
	}
	if _, ok := schemas.Der("displayName"); !ok {
		t.Error("derived schema missing")
	}
	if _, ok := schemas.Vir("badge"); !ok {
		t.Error("virtual schema missing")
	}
}

func TestBuildCatalogAppliesItemDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	catalog, err := cfg.BuildCatalog()
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}

	res, ok := catalog.Resource("ldap")
	if !ok {
		t.Fatal("ldap not in catalog")
	}
	if res.TraceLevel != mapping.TraceFailures {
		t.Errorf("trace level = %q, want default FAILURES", res.TraceLevel)
	}
	if res.PropagationPriority == nil || *res.PropagationPriority != 1 {
		t.Errorf("priority = %v", res.PropagationPriority)
	}

	prov, ok := res.Provision(identity.KindUser)
	if !ok {
		t.Fatal("no user provision")
	}
	if prov.Mapping.ConnObjectLink == "" {
		t.Error("conn_object_link not carried over")
	}
	for _, item := range prov.Mapping.Items {
		if item.SourceKind != identity.KindUser {
			t.Errorf("item %q source kind = %q, want default USER", item.IntAttrName, item.SourceKind)
		}
		if item.Purpose != mapping.PurposeBoth {
			t.Errorf("item %q purpose = %q, want default BOTH", item.IntAttrName, item.Purpose)
		}
	}
}

func TestRefreshOnMembershipChangeDefault(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.RefreshOnMembershipChange() {
		t.Error("default must be true")
	}

	off := validConfig + "policy:\n  refresh_on_membership_change: false\n"
	cfg, err = Parse([]byte(off))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.RefreshOnMembershipChange() {
		t.Error("explicit false not honored")
	}
}
