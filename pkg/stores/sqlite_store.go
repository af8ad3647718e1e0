package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/idforge/idforge/pkg/propagation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteAuditStore is the SQLite-backed audit trail for propagation task
// outcomes. It implements propagation.AuditSink.
type SQLiteAuditStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite audit store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteAuditStore creates an audit store instance. Init must be called
// before use.
func NewSQLiteAuditStore(cfg Config) (*SQLiteAuditStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteAuditStore{path: cfg.Path}, nil
}

// Init opens the database in WAL mode and runs migrations.
func (s *SQLiteAuditStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *SQLiteAuditStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteAuditStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Record implements propagation.AuditSink.
func (s *SQLiteAuditStore) Record(ctx context.Context, task *propagation.Task, status propagation.Status) error {
	attrs, err := json.Marshal(task.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	diags, err := json.Marshal(diagnosticsOf(task))
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}

	query := `
		INSERT INTO propagation_audit (
			id, task_id, operation, resource, any_kind, any_key,
			object_class, conn_object_key, old_conn_object_key,
			status, failure_reason, attributes, diagnostics, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.NewString(),
		task.ID,
		string(task.Operation),
		task.Resource,
		string(task.AnyKind),
		task.AnyKey,
		task.ObjectClass,
		status.ConnObjectKey,
		task.OldConnObjectKey,
		string(status.Status),
		status.FailureReason,
		string(attrs),
		string(diags),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ByTask returns the audit records for one task, oldest first.
func (s *SQLiteAuditStore) ByTask(ctx context.Context, taskID string) ([]AuditRecord, error) {
	query := `
		SELECT id, task_id, operation, resource, any_kind, any_key,
		       object_class, conn_object_key, old_conn_object_key,
		       status, failure_reason, attributes, diagnostics, created_at
		FROM propagation_audit
		WHERE task_id = ?
		ORDER BY created_at ASC
	`
	return s.query(ctx, query, taskID)
}

// ByEntity returns the audit records for one entity, newest first.
func (s *SQLiteAuditStore) ByEntity(ctx context.Context, anyKind, anyKey string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, task_id, operation, resource, any_kind, any_key,
		       object_class, conn_object_key, old_conn_object_key,
		       status, failure_reason, attributes, diagnostics, created_at
		FROM propagation_audit
		WHERE any_kind = ? AND any_key = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return s.query(ctx, query, anyKind, anyKey, limit)
}

// Failures returns the failed records for one resource, newest first.
func (s *SQLiteAuditStore) Failures(ctx context.Context, resource string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, task_id, operation, resource, any_kind, any_key,
		       object_class, conn_object_key, old_conn_object_key,
		       status, failure_reason, attributes, diagnostics, created_at
		FROM propagation_audit
		WHERE resource = ? AND status = 'FAILURE'
		ORDER BY created_at DESC
		LIMIT ?
	`
	return s.query(ctx, query, resource, limit)
}

func (s *SQLiteAuditStore) query(ctx context.Context, query string, args ...interface{}) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(
			&r.ID, &r.TaskID, &r.Operation, &r.Resource, &r.AnyKind, &r.AnyKey,
			&r.ObjectClass, &r.ConnObjectKey, &r.OldConnObjectKey,
			&r.Status, &r.FailureReason, &r.Attributes, &r.Diagnostics, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// diagnosticsOf flattens task diagnostics into a serializable shape.
func diagnosticsOf(task *propagation.Task) []map[string]string {
	out := make([]map[string]string, 0, len(task.Diagnostics))
	for _, d := range task.Diagnostics {
		entry := map[string]string{
			"intAttrName": d.IntAttrName,
			"extAttrName": d.ExtAttrName,
		}
		if d.Err != nil {
			entry["error"] = d.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}
