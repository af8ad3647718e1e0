package stores

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
	"github.com/idforge/idforge/pkg/propagation"
)

func newTestStore(t *testing.T) *SQLiteAuditStore {
	t.Helper()
	store, err := NewSQLiteAuditStore(Config{Path: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("NewSQLiteAuditStore: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func auditTask(resource, key string) *propagation.Task {
	res := &mapping.Resource{Name: resource, Connector: "mem"}
	prov := &mapping.Provision{AnyKind: identity.KindUser, ObjectClass: "__ACCOUNT__"}
	task := propagation.NewTask(propagation.OpCreate, res, prov, identity.KindUser, key)
	task.ConnObjectKey = key
	task.Attributes = []connector.Attr{{Name: "mail", Values: []string{key + "@example.com"}}}
	return task
}

func TestRecordAndQueryByTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := auditTask("ldap", "jdoe")
	task.Diagnostics = []mapping.Diagnostic{{
		IntAttrName: "badge",
		ExtAttrName: "badgeNumber",
		Err:         errors.New("no such schema"),
	}}

	err := store.Record(ctx, task, propagation.Status{
		Resource:      "ldap",
		Status:        propagation.StatusSuccess,
		ConnObjectKey: "jdoe",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := store.ByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	r := records[0]
	if r.Resource != "ldap" || r.Status != "SUCCESS" || r.ConnObjectKey != "jdoe" {
		t.Errorf("record = %+v", r)
	}
	if r.Operation != "CREATE" || r.AnyKind != "USER" || r.AnyKey != "jdoe" {
		t.Errorf("record = %+v", r)
	}
	if !strings.Contains(r.Attributes, "jdoe@example.com") {
		t.Errorf("attributes = %s", r.Attributes)
	}
	if !strings.Contains(r.Diagnostics, "no such schema") {
		t.Errorf("diagnostics = %s", r.Diagnostics)
	}
}

func TestQueryByEntityNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, resource := range []string{"ldap", "scim", "db"} {
		task := auditTask(resource, "u1")
		task.AnyKey = "u1"
		err := store.Record(ctx, task, propagation.Status{
			Resource: resource,
			Status:   propagation.StatusSuccess,
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	records, err := store.ByEntity(ctx, "USER", "u1", 0)
	if err != nil {
		t.Fatalf("ByEntity: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}

	records, err = store.ByEntity(ctx, "USER", "u1", 2)
	if err != nil {
		t.Fatalf("ByEntity: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("limited records = %d, want 2", len(records))
	}
}

func TestQueryFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok := auditTask("ldap", "u1")
	if err := store.Record(ctx, ok, propagation.Status{Resource: "ldap", Status: propagation.StatusSuccess}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	bad := auditTask("ldap", "u2")
	if err := store.Record(ctx, bad, propagation.Status{
		Resource:      "ldap",
		Status:        propagation.StatusFailure,
		FailureReason: "connector down",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := store.Failures(ctx, "ldap", 0)
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].AnyKey != "u2" || records[0].FailureReason != "connector down" {
		t.Errorf("record = %+v", records[0])
	}
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteAuditStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}
