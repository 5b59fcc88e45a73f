// Package audit provides an append-only, HMAC-signed trail of governance
// events: task creation, approval decisions, execution attempts and
// failures. Entries are never mutated or deleted; detail payloads are
// redacted before persistence so secrets cannot leak into the trail.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	truaiotel "github.com/demewebsolutions/truai/internal/otel"
)

var tracer = truaiotel.Tracer("github.com/demewebsolutions/truai/internal/audit")

// ErrEntryNotFound is returned when an audit entry ID does not exist.
var ErrEntryNotFound = errors.New("audit entry not found")

// Event names written by the engine.
const (
	EventTaskCreated     = "task_created"
	EventTaskApproved    = "task_approved"
	EventTaskRejected    = "task_rejected"
	EventTaskSaved       = "task_saved"
	EventTaskLocked      = "task_locked"
	EventTaskOverridden  = "task_overridden"
	EventExecutionDone   = "execution_completed"
	EventExecutionFailed = "execution_failed"
)

// Entry is one governance event. Actor is empty for system-initiated
// events (e.g. silent auto-execution failures).
type Entry struct {
	ID        string          `json:"id"`
	Actor     string          `json:"actor,omitempty"`
	Event     string          `json:"event"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Signature string          `json:"signature"`
}

// Store persists signed audit entries in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore creates an audit store with HMAC signing.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		actor TEXT,
		event TEXT NOT NULL,
		detail_json TEXT,
		timestamp TIMESTAMP NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_entries(actor);
	CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_entries(event);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records a governance event. detail must marshal to JSON; pass nil
// for events without structured detail.
func (s *Store) Append(ctx context.Context, actor, event string, detail any) (*Entry, error) {
	ctx, span := tracer.Start(ctx, "audit.append",
		trace.WithAttributes(
			attribute.String("audit.event", event),
			attribute.String("audit.actor", actor),
		))
	defer span.End()

	entry := &Entry{
		ID:        "aud_" + uuid.New().String()[:12],
		Actor:     actor,
		Event:     event,
		Timestamp: time.Now().UTC(),
	}
	if detail != nil {
		detailJSON, err := json.Marshal(detail)
		if err != nil {
			return nil, fmt.Errorf("marshaling audit detail: %w", err)
		}
		entry.Detail = detailJSON
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshaling audit entry: %w", err)
	}
	signature, err := s.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("signing audit entry: %w", err)
	}
	entry.Signature = signature

	query := `INSERT INTO audit_entries (id, actor, event, detail_json, timestamp, signature)
	          VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.Actor, entry.Event, nullableJSON(entry.Detail), entry.Timestamp, entry.Signature,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storing audit entry: %w", err)
	}
	return entry, nil
}

// Get retrieves an audit entry by ID.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	ctx, span := tracer.Start(ctx, "audit.get",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor, event, detail_json, timestamp, signature FROM audit_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit entry %s: %w", id, ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit entry: %w", err)
	}
	return entry, nil
}

// List returns audit entries matching the filters, newest first.
func (s *Store) List(ctx context.Context, actor, event string, from, to time.Time, limit int) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "audit.list",
		trace.WithAttributes(
			attribute.String("audit.actor", actor),
			attribute.String("audit.event", event),
		))
	defer span.End()

	query := `SELECT id, actor, event, detail_json, timestamp, signature FROM audit_entries WHERE 1=1`
	args := []any{}
	if actor != "" {
		query += ` AND actor = ?`
		args = append(args, actor)
	}
	if event != "" {
		query += ` AND event = ?`
		args = append(args, event)
	}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		results = append(results, *entry)
	}
	span.SetAttributes(attribute.Int("audit.count", len(results)))
	return results, rows.Err()
}

// Verify checks the HMAC signature integrity of an audit entry.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "audit.verify",
		trace.WithAttributes(attribute.String("audit.id", id)))
	defer span.End()

	entry, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	signature := entry.Signature
	entry.Signature = ""
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}
	return s.signer.Verify(payload, signature), nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var actor, detailJSON sql.NullString
	if err := row.Scan(&entry.ID, &actor, &entry.Event, &detailJSON, &entry.Timestamp, &entry.Signature); err != nil {
		return nil, err
	}
	entry.Actor = actor.String
	if detailJSON.Valid && detailJSON.String != "" {
		entry.Detail = json.RawMessage(detailJSON.String)
	}
	return &entry, nil
}
