package propagation

import (
	"errors"
	"testing"
	"time"

	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/expr"
	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
	"github.com/idforge/idforge/pkg/password"
	"github.com/idforge/idforge/pkg/telemetry"
)

func userProvision(extra ...mapping.Item) []mapping.Provision {
	items := append([]mapping.Item{{
		Kind:          mapping.KindUsername,
		ExtAttrName:   "uid",
		Purpose:       mapping.PurposeBoth,
		ConnObjectKey: true,
		SourceKind:    identity.KindUser,
	}}, extra...)
	return []mapping.Provision{{
		AnyKind:     identity.KindUser,
		ObjectClass: "__ACCOUNT__",
		Mapping:     mapping.Mapping{Items: items},
	}}
}

func testFactory(t *testing.T, resources ...*mapping.Resource) *Factory {
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
	return NewFactory(catalog, assembler, DefaultPolicy(), telemetry.Nop())
}

func TestCreateTasksCoversAssignedResources(t *testing.T) {
	f := testFactory(t,
		&mapping.Resource{Name: "ldap", Connector: "mem", Provisions: userProvision(
			mapping.Item{Kind: mapping.KindPlain, IntAttrName: "email", ExtAttrName: "mail", Purpose: mapping.PurposeBoth, SourceKind: identity.KindUser},
		)},
		&mapping.Resource{Name: "scim", Connector: "mem", Provisions: userProvision()},
	)

	user := identity.NewUser("u1", "jdoe",
		identity.WithUniquePlainAttr("email", "jdoe@example.com"),
		identity.WithResources("ldap", "scim"),
	)

	tasks, err := f.CreateTasks(CreateRequest{Entity: user})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	byResource := make(map[string]*Task)
	for _, task := range tasks {
		byResource[task.Resource] = task
	}
	ldap := byResource["ldap"]
	if ldap == nil {
		t.Fatal("no task for ldap")
	}
	if ldap.Operation != OpCreate || ldap.ConnObjectKey != "jdoe" {
		t.Errorf("ldap task = %s %q", ldap.Operation, ldap.ConnObjectKey)
	}
	found := false
	for _, a := range ldap.Attributes {
		if a.Name == "mail" && len(a.Values) == 1 && a.Values[0] == "jdoe@example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("mail attribute missing from %v", ldap.Attributes)
	}
}

func TestCreateTasksEvaluateIdentityLink(t *testing.T) {
	provisions := userProvision()
	provisions[0].Mapping.ConnObjectLink = `"uid=" + fields["username"]`
	f := testFactory(t, &mapping.Resource{Name: "ldap", Connector: "mem", Provisions: provisions})

	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	tasks, err := f.CreateTasks(CreateRequest{Entity: user})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}

	// The evaluated link is the locator, matching the __NAME__ the object
	// is created under.
	if tasks[0].ConnObjectKey != "uid=jdoe" {
		t.Errorf("connObjectKey = %q, want uid=jdoe", tasks[0].ConnObjectKey)
	}
	if name, ok := connector.Find(connector.NameAttr, tasks[0].Attributes); !ok || name.FirstValue() != "uid=jdoe" {
		t.Errorf("__NAME__ = %v, want uid=jdoe", tasks[0].Attributes)
	}
}

func TestCreateTasksSkipsExcludedResources(t *testing.T) {
	f := testFactory(t,
		&mapping.Resource{Name: "ldap", Connector: "mem", Provisions: userProvision()},
		&mapping.Resource{Name: "scim", Connector: "mem", Provisions: userProvision()},
	)
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap", "scim"))

	tasks, err := f.CreateTasks(CreateRequest{Entity: user, ExcludedResources: []string{"scim"}})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Resource != "ldap" {
		t.Errorf("tasks = %v, want only ldap", tasks)
	}
}

func TestCreateTasksSkipsResourceWithoutProvision(t *testing.T) {
	f := testFactory(t,
		&mapping.Resource{Name: "groups-only", Connector: "mem", Provisions: []mapping.Provision{{
			AnyKind:     identity.KindGroup,
			ObjectClass: "__GROUP__",
			Mapping: mapping.Mapping{Items: []mapping.Item{{
				Kind:          mapping.KindGroupName,
				ExtAttrName:   "cn",
				Purpose:       mapping.PurposeBoth,
				ConnObjectKey: true,
				SourceKind:    identity.KindGroup,
			}}},
		}}},
	)
	user := identity.NewUser("u1", "jdoe", identity.WithResources("groups-only"))

	tasks, err := f.CreateTasks(CreateRequest{Entity: user})
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %v, want none", tasks)
	}
}

func TestCreateTasksUnknownResource(t *testing.T) {
	f := testFactory(t)
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ghost"))

	_, err := f.CreateTasks(CreateRequest{Entity: user})
	if err == nil {
		t.Fatal("expected error for unconfigured resource")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != ErrCodeUnknownResource {
		t.Errorf("error = %v, want code %s", err, ErrCodeUnknownResource)
	}
}

func TestUpdateTasksMembershipRefresh(t *testing.T) {
	f := testFactory(t,
		&mapping.Resource{Name: "ldap", Connector: "mem", Provisions: userProvision()},
		&mapping.Resource{Name: "scim", Connector: "mem", Provisions: userProvision()},
	)
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap", "scim"))

	byRes := NewByResource()
	byRes.Add(OpUpdate, "ldap")

	tasks, err := f.UpdateTasks(UpdateRequest{
		Entity:             user,
		PropByRes:          byRes,
		MembershipsChanged: true,
	})
	if err != nil {
		t.Fatalf("UpdateTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want refresh on both resources", len(tasks))
	}
	for _, task := range tasks {
		if task.Operation != OpUpdate {
			t.Errorf("%s = %s, want UPDATE", task.Resource, task.Operation)
		}
	}
}

func TestUpdateTasksCarriesOldConnObjectKey(t *testing.T) {
	f := testFactory(t,
		&mapping.Resource{Name: "ldap", Connector: "mem", Provisions: userProvision()},
		&mapping.Resource{Name: "scim", Connector: "mem", Provisions: userProvision()},
	)
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap", "scim"))

	byRes := NewByResource()
	byRes.Add(OpUpdate, "ldap")
	byRes.SetOldConnObjectKey("ldap", "jsmith")
	byRes.Add(OpUpdate, "scim")
	// Same value as the resolved key: no rename on this resource.
	byRes.SetOldConnObjectKey("scim", "jdoe")

	tasks, err := f.UpdateTasks(UpdateRequest{Entity: user, PropByRes: byRes})
	if err != nil {
		t.Fatalf("UpdateTasks: %v", err)
	}
	byResource := make(map[string]*Task)
	for _, task := range tasks {
		byResource[task.Resource] = task
	}
	if got := byResource["ldap"].OldConnObjectKey; got != "jsmith" {
		t.Errorf("ldap old key = %q, want jsmith", got)
	}
	if got := byResource["scim"].OldConnObjectKey; got != "" {
		t.Errorf("scim old key = %q, want empty", got)
	}
}

func TestDeleteTasksResolveIdentityOnly(t *testing.T) {
	f := testFactory(t,
		&mapping.Resource{Name: "ldap", Connector: "mem", Provisions: userProvision(
			mapping.Item{Kind: mapping.KindPlain, IntAttrName: "email", ExtAttrName: "mail", Purpose: mapping.PurposeBoth, SourceKind: identity.KindUser},
		)},
	)
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))

	tasks, err := f.DeleteTasks(DeleteRequest{Entity: user})
	if err != nil {
		t.Fatalf("DeleteTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	task := tasks[0]
	if task.Operation != OpDelete || task.ConnObjectKey != "jdoe" {
		t.Errorf("task = %s %q", task.Operation, task.ConnObjectKey)
	}
	if len(task.Attributes) != 0 {
		t.Errorf("delete task carries attributes: %v", task.Attributes)
	}
}

func TestStatusTasksCarryEnableOnly(t *testing.T) {
	f := testFactory(t,
		&mapping.Resource{Name: "ldap", Connector: "mem", Provisions: userProvision()},
	)
	user := identity.NewUser("u1", "jdoe", identity.WithResources("ldap"))
	user.Password = "stored"

	tasks, err := f.StatusTasks(StatusRequest{User: user, Enable: false})
	if err != nil {
		t.Fatalf("StatusTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	var enable *connector.Attr
	for i, a := range tasks[0].Attributes {
		if a.Name == connector.PasswordAttr {
			t.Error("status task carries a password attribute")
		}
		if a.Name == connector.EnableAttr {
			enable = &tasks[0].Attributes[i]
		}
	}
	if enable == nil || enable.FirstValue() != "false" {
		t.Errorf("enable attr = %v, want [false]", enable)
	}
}
