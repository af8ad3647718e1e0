package provisioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/expr"
	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
	"github.com/idforge/idforge/pkg/password"
	"github.com/idforge/idforge/pkg/propagation"
	"github.com/idforge/idforge/pkg/telemetry"
)

// failingConnector rejects every call.
type failingConnector struct{}

func (failingConnector) Create(ctx context.Context, objectClass string, attrs []connector.Attr) (string, error) {
	return "", errors.New("connector down")
}

func (failingConnector) Update(ctx context.Context, objectClass, uid string, attrs []connector.Attr) (string, error) {
	return "", errors.New("connector down")
}

func (failingConnector) Delete(ctx context.Context, objectClass, uid string) error {
	return errors.New("connector down")
}

type env struct {
	dir      *identity.MemDirectory
	conn     *connector.MemConnector
	registry *connector.Registry
	mgr      *Manager
}

func userResource(name string) *mapping.Resource {
	return &mapping.Resource{
		Name:      name,
		Connector: "mem",
		Provisions: []mapping.Provision{{
			AnyKind:     identity.KindUser,
			ObjectClass: "__ACCOUNT__",
			Mapping: mapping.Mapping{Items: []mapping.Item{
				{Kind: mapping.KindUsername, ExtAttrName: "uid", Purpose: mapping.PurposeBoth, ConnObjectKey: true, SourceKind: identity.KindUser},
				{Kind: mapping.KindPlain, IntAttrName: "email", ExtAttrName: "mail", Purpose: mapping.PurposeBoth, SourceKind: identity.KindUser},
				{Kind: mapping.KindPassword, ExtAttrName: connector.PasswordAttr, Purpose: mapping.PurposePropagation, Password: true, SourceKind: identity.KindUser},
			}},
		}},
	}
}

func newEnv(t *testing.T, resources ...*mapping.Resource) *env {
	t.Helper()

	schemas := identity.NewSchemaRegistry()
	schemas.RegisterPlain(identity.PlainSchema{Name: "email", Unique: true})

	encryptor, err := password.NewEncryptor([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	dir := identity.NewMemDirectory()
	eval := expr.NewEvaluator(time.Second)
	virCache := mapping.NewVirAttrCache()
	resolver := mapping.NewResolver(schemas, mapping.NewTransformerRegistry(), eval, virCache, telemetry.Nop())
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	assembler := mapping.NewAssembler(dir, schemas, resolver, eval, encryptor,
		password.NewGenerator(password.DefaultPolicy()), virCache, metrics, telemetry.Nop())

	catalog, err := mapping.NewCatalog(resources...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	factory := propagation.NewFactory(catalog, assembler, propagation.DefaultPolicy(), telemetry.Nop())

	conn := connector.NewMemConnector()
	registry := connector.NewRegistry()
	if err := registry.Register("mem", conn); err != nil {
		t.Fatalf("Register: %v", err)
	}
	executor := propagation.NewExecutor(registry, propagation.ExecutorOptions{MaxParallel: 4}, nil, metrics, telemetry.Nop())

	workflow := NewMemWorkflow(dir, encryptor, password.CipherSHA256)
	workflow.SetLinkResolver(factory)
	mgr := NewManager(dir, workflow, factory, executor, metrics, telemetry.Nop())

	return &env{dir: dir, conn: conn, registry: registry, mgr: mgr}
}

func successOn(t *testing.T, statuses []propagation.Status, resource string) {
	t.Helper()
	for _, s := range statuses {
		if s.Resource == resource {
			if s.Status != propagation.StatusSuccess {
				t.Fatalf("%s = %s (%s), want SUCCESS", resource, s.Status, s.FailureReason)
			}
			return
		}
	}
	t.Fatalf("no status for %s in %v", resource, statuses)
}

func TestCreatePropagatesAndStoresPassword(t *testing.T) {
	e := newEnv(t, userResource("ldap"))
	user := identity.NewUser("u1", "jdoe",
		identity.WithUniquePlainAttr("email", "jdoe@example.com"),
		identity.WithResources("ldap"),
	)

	key, statuses, err := e.mgr.Create(context.Background(), user, "s3cret-pass", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key != "u1" {
		t.Errorf("key = %q, want u1", key)
	}
	successOn(t, statuses, "ldap")

	attrs, ok := e.conn.Object("__ACCOUNT__", "jdoe")
	if !ok {
		t.Fatal("external object not created")
	}
	if mail, ok := connector.Find("mail", attrs); !ok || mail.FirstValue() != "jdoe@example.com" {
		t.Errorf("mail = %v", attrs)
	}
	if pwd, ok := connector.Find(connector.PasswordAttr, attrs); !ok || pwd.FirstValue() != "s3cret-pass" {
		t.Error("clear-text password not propagated on create")
	}

	stored, _ := e.dir.Find(identity.KindUser, "u1")
	su := stored.(*identity.User)
	if su.Password == "" || su.Password == "s3cret-pass" {
		t.Error("canonical password not encoded")
	}
	if su.CipherAlgorithm != string(password.CipherSHA256) {
		t.Errorf("cipher = %q", su.CipherAlgorithm)
	}
}

func TestCreatePrimaryFailureStillReturnsStatuses(t *testing.T) {
	primary := userResource("primary")
	primary.Connector = "bad"
	primary.PropagationPriority = intPtr(1)
	primary.PropagationPrimary = true
	secondary := userResource("ldap")
	secondary.PropagationPriority = intPtr(2)

	e := newEnv(t, primary, secondary)
	if err := e.registry.Register("bad", failingConnector{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	user := identity.NewUser("u1", "jdoe", identity.WithResources("primary", "ldap"))
	key, statuses, err := e.mgr.Create(context.Background(), user, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key != "u1" {
		t.Errorf("key = %q, want u1", key)
	}

	byResource := make(map[string]propagation.ExecStatus)
	for _, s := range statuses {
		byResource[s.Resource] = s.Status
	}
	if byResource["primary"] != propagation.StatusFailure {
		t.Errorf("primary = %s, want FAILURE", byResource["primary"])
	}
	if byResource["ldap"] != propagation.StatusNotAttempted {
		t.Errorf("ldap = %s, want NOT_ATTEMPTED", byResource["ldap"])
	}
	if _, ok := e.conn.Object("__ACCOUNT__", "jdoe"); ok {
		t.Error("secondary resource was dispatched after primary failure")
	}
}

func TestUpdateRenameRenamesExternalObject(t *testing.T) {
	e := newEnv(t, userResource("ldap"))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	name := "jsmith"
	_, statuses, err := e.mgr.Update(context.Background(), &identity.AnyPatch{
		Key:  "u1",
		Kind: identity.KindUser,
		Name: &name,
	}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	successOn(t, statuses, "ldap")

	if _, ok := e.conn.Object("__ACCOUNT__", "jdoe"); ok {
		t.Error("old external object still present after rename")
	}
	if _, ok := e.conn.Object("__ACCOUNT__", "jsmith"); !ok {
		t.Error("renamed external object not found")
	}
}

func TestUpdateUnassignDeletesExternalObject(t *testing.T) {
	e := newEnv(t, userResource("ldap"))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, statuses, err := e.mgr.Update(context.Background(), &identity.AnyPatch{
		Key:  "u1",
		Kind: identity.KindUser,
		Resources: []identity.ResourcePatch{
			{Operation: identity.PatchDelete, Resource: "ldap"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	successOn(t, statuses, "ldap")

	if _, ok := e.conn.Object("__ACCOUNT__", "jdoe"); ok {
		t.Error("external object survived the unassignment")
	}
	stored, _ := e.dir.Find(identity.KindUser, "u1")
	if stored.(*identity.User).HasResource("ldap") {
		t.Error("resource still assigned canonically")
	}
}

func TestDeleteRemovesExternalThenCanonical(t *testing.T) {
	e := newEnv(t, userResource("ldap"))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	statuses, err := e.mgr.Delete(context.Background(), identity.KindUser, "u1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	successOn(t, statuses, "ldap")

	if _, ok := e.conn.Object("__ACCOUNT__", "jdoe"); ok {
		t.Error("external object survived deletion")
	}
	if _, ok := e.dir.Find(identity.KindUser, "u1"); ok {
		t.Error("user survived canonical deletion")
	}
}

func TestStatusSuspendPropagatesEnableFalse(t *testing.T) {
	e := newEnv(t, userResource("ldap"))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, statuses, err := e.mgr.Status(context.Background(), &identity.StatusPatch{
		Key:         "u1",
		Type:        identity.StatusSuspend,
		OnCanonical: true,
	})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	successOn(t, statuses, "ldap")

	stored, _ := e.dir.Find(identity.KindUser, "u1")
	su := stored.(*identity.User)
	if su.Suspended == nil || !*su.Suspended {
		t.Error("canonical suspension not recorded")
	}

	attrs, ok := e.conn.Object("__ACCOUNT__", "jdoe")
	if !ok {
		t.Fatal("external object missing")
	}
	if enable, ok := connector.Find(connector.EnableAttr, attrs); !ok || enable.FirstValue() != "false" {
		t.Errorf("enable attr = %v, want false", attrs)
	}
}

func linkedUserResource(name string) *mapping.Resource {
	res := userResource(name)
	res.Provisions[0].Mapping.ConnObjectLink = `"uid=" + fields["username"]`
	return res
}

func TestUpdateAddressesObjectByIdentityLink(t *testing.T) {
	e := newEnv(t, linkedUserResource("ldap"))
	user := identity.NewUser("u1", "jdoe",
		identity.WithUniquePlainAttr("email", "jdoe@example.com"),
		identity.WithResources("ldap"),
	)
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := e.conn.Object("__ACCOUNT__", "uid=jdoe"); !ok {
		t.Fatal("object not created under the evaluated identity link")
	}

	_, statuses, err := e.mgr.Update(context.Background(), &identity.AnyPatch{
		Key:  "u1",
		Kind: identity.KindUser,
		PlainAttrs: []identity.AttrPatch{
			{Operation: identity.PatchAddReplace, Schema: "email", Values: []string{"new@example.com"}},
		},
	}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	successOn(t, statuses, "ldap")

	if got := e.conn.Count("__ACCOUNT__"); got != 1 {
		t.Fatalf("objects = %d, update must address the linked object, not spawn another", got)
	}
	attrs, ok := e.conn.Object("__ACCOUNT__", "uid=jdoe")
	if !ok {
		t.Fatal("linked object missing after update")
	}
	if mail, ok := connector.Find("mail", attrs); !ok || mail.FirstValue() != "new@example.com" {
		t.Errorf("mail = %v, want new@example.com", attrs)
	}
}

func TestUpdateRenameWithIdentityLink(t *testing.T) {
	e := newEnv(t, linkedUserResource("ldap"))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	name := "jsmith"
	_, statuses, err := e.mgr.Update(context.Background(), &identity.AnyPatch{
		Key:  "u1",
		Kind: identity.KindUser,
		Name: &name,
	}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	successOn(t, statuses, "ldap")

	if _, ok := e.conn.Object("__ACCOUNT__", "uid=jdoe"); ok {
		t.Error("old linked object still present after rename")
	}
	if _, ok := e.conn.Object("__ACCOUNT__", "uid=jsmith"); !ok {
		t.Error("renamed linked object not found")
	}
	if got := e.conn.Count("__ACCOUNT__"); got != 1 {
		t.Errorf("objects = %d, want 1", got)
	}
	for _, s := range statuses {
		if s.Resource == "ldap" && s.OldConnObjectKey != "uid=jdoe" {
			t.Errorf("old key = %q, want uid=jdoe", s.OldConnObjectKey)
		}
	}
}

func TestUpdateMembershipAddProvisionsGroupResource(t *testing.T) {
	scim := userResource("scim")
	scim.Connector = "mem2"
	e := newEnv(t, userResource("ldap"), scim)
	conn2 := connector.NewMemConnector()
	if err := e.registry.Register("mem2", conn2); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e.dir.PutGroup(identity.NewGroup("g1", "staff", identity.WithResources("scim")))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, statuses, err := e.mgr.Update(context.Background(), &identity.AnyPatch{
		Key:  "u1",
		Kind: identity.KindUser,
		Memberships: []identity.MembershipPatch{
			{Operation: identity.PatchAddReplace, GroupKey: "g1"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	successOn(t, statuses, "scim")

	// The newly reachable resource was reached through an update and the
	// connector materialized the object.
	if _, ok := conn2.Object("__ACCOUNT__", "jdoe"); !ok {
		t.Error("object not provisioned on the group's resource")
	}
}

func TestCreateUnknownResourceStillRunsDerivedTasks(t *testing.T) {
	e := newEnv(t, userResource("ldap"))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap", "zz-ghost"))

	_, statuses, err := e.mgr.Create(context.Background(), user, "", nil)
	if err == nil {
		t.Fatal("expected error for unconfigured resource")
	}
	var perr *propagation.Error
	if !errors.As(err, &perr) || perr.Code != propagation.ErrCodeUnknownResource {
		t.Errorf("error = %v, want code %s", err, propagation.ErrCodeUnknownResource)
	}

	// The task derived before the failure still ran.
	successOn(t, statuses, "ldap")
	if _, ok := e.conn.Object("__ACCOUNT__", "jdoe"); !ok {
		t.Error("object missing on the configured resource")
	}
}

func TestProvisionAndDeprovisionLeaveAssignmentsAlone(t *testing.T) {
	e := newEnv(t, userResource("ldap"))
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	if _, _, err := e.mgr.Create(context.Background(), user, "", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	statuses, err := e.mgr.Provision(context.Background(), identity.KindUser, "u1", []string{"ldap"}, "")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	successOn(t, statuses, "ldap")

	statuses, err = e.mgr.Deprovision(context.Background(), identity.KindUser, "u1", []string{"ldap"})
	if err != nil {
		t.Fatalf("Deprovision: %v", err)
	}
	successOn(t, statuses, "ldap")

	if _, ok := e.conn.Object("__ACCOUNT__", "jdoe"); ok {
		t.Error("external object survived deprovisioning")
	}
	stored, _ := e.dir.Find(identity.KindUser, "u1")
	if !stored.(*identity.User).HasResource("ldap") {
		t.Error("deprovision must not unassign the resource")
	}
}

func intPtr(i int) *int { return &i }
