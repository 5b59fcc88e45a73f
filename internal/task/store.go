package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/demewebsolutions/truai/internal/classifier"
	"github.com/demewebsolutions/truai/internal/llm"
	truaiotel "github.com/demewebsolutions/truai/internal/otel"
)

var tracer = truaiotel.Tracer("github.com/demewebsolutions/truai/internal/task")

var (
	// ErrNotFound is returned when a task ID does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrConflict is returned when a guarded status transition finds the
	// task no longer in an eligible state (e.g. a racing execute call).
	ErrConflict = errors.New("task status conflict")
)

// Store persists tasks, executions, and artifacts in SQLite.
//
// Status transitions use a guard-then-write pattern: the UPDATE carries the
// set of eligible source states in its WHERE clause and the store checks
// RowsAffected, so concurrent transitions of the same task resolve to one
// winner without cross-statement locking.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the task database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening task database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		context_json TEXT,
		risk_level TEXT NOT NULL,
		tier TEXT NOT NULL,
		status TEXT NOT NULL,
		strategic_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		model TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		checksum TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
	CREATE INDEX IF NOT EXISTS idx_executions_task ON executions(task_id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_task ON artifacts(task_id);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating task schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTask persists a new task record.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	ctx, span := tracer.Start(ctx, "task.create",
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.String("risk.level", string(t.Risk)),
			attribute.String("task.tier", string(t.Tier)),
		))
	defer span.End()

	strategicJSON, err := json.Marshal(t.Strategic)
	if err != nil {
		return fmt.Errorf("marshaling strategic context: %w", err)
	}

	var contextJSON any
	if len(t.Context) > 0 {
		contextJSON = string(t.Context)
	}

	query := `INSERT INTO tasks (id, user_id, prompt, context_json, risk_level, tier, status, strategic_json, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Prompt, contextJSON, string(t.Risk), string(t.Tier),
		string(t.Status), string(strategicJSON), t.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns ErrNotFound for unknown IDs.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	ctx, span := tracer.Start(ctx, "task.get",
		trace.WithAttributes(attribute.String("task.id", id)))
	defer span.End()

	query := `SELECT id, user_id, prompt, context_json, risk_level, tier, status, strategic_json, created_at
	          FROM tasks WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks filtered by user and/or status, newest first.
func (s *Store) ListTasks(ctx context.Context, userID string, status Status, limit int) ([]Task, error) {
	ctx, span := tracer.Start(ctx, "task.list",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	query := `SELECT id, user_id, prompt, context_json, risk_level, tier, status, strategic_json, created_at
	          FROM tasks WHERE 1=1`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var results []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			continue
		}
		results = append(results, *t)
	}
	span.SetAttributes(attribute.Int("task.count", len(results)))
	return results, rows.Err()
}

// Transition moves a task from any of the eligible source states to the
// target state. Returns ErrConflict when the task exists but is not in an
// eligible state, ErrNotFound when it does not exist.
func (s *Store) Transition(ctx context.Context, id string, from []Status, to Status) error {
	ctx, span := tracer.Start(ctx, "task.transition",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.String("task.to_status", string(to)),
		))
	defer span.End()

	res, err := s.db.ExecContext(ctx, transitionQuery(from), transitionArgs(id, from, to)...)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("updating task status: %w", err)
	}
	return s.checkTransitionResult(ctx, res, id)
}

// RecordExecution atomically transitions the task to EXECUTED and inserts
// the execution and artifact rows in one transaction. The status guard
// runs inside the transaction so a racing duplicate gets ErrConflict and
// leaves no dangling rows.
func (s *Store) RecordExecution(ctx context.Context, taskID string, from []Status, exec *Execution, art *Artifact) error {
	ctx, span := tracer.Start(ctx, "task.record_execution",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("execution.id", exec.ID),
		))
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, transitionQuery(from), transitionArgs(taskID, from, StatusExecuted)...)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("updating task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking transition result: %w", err)
	}
	if n == 0 {
		// Distinguish missing from ineligible outside the write path.
		if _, getErr := s.GetTask(ctx, taskID); errors.Is(getErr, ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("task %s: %w", taskID, ErrConflict)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifacts (id, task_id, type, content, checksum, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		art.ID, art.TaskID, art.Type, art.Content, art.Checksum, art.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing artifact: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (id, task_id, model, artifact_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.TaskID, exec.Model, exec.ArtifactID, string(exec.Status), exec.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing execution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing execution: %w", err)
	}
	return nil
}

// LatestExecution returns the newest execution and its artifact for a
// task, or (nil, nil, nil) when the task has never executed.
func (s *Store) LatestExecution(ctx context.Context, taskID string) (*Execution, *Artifact, error) {
	ctx, span := tracer.Start(ctx, "task.latest_execution",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	var exec Execution
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, model, artifact_id, status, created_at
		 FROM executions WHERE task_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		taskID,
	).Scan(&exec.ID, &exec.TaskID, &exec.Model, &exec.ArtifactID, &status, &exec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying execution: %w", err)
	}
	exec.Status = ExecStatus(status)

	var art Artifact
	err = s.db.QueryRowContext(ctx,
		`SELECT id, task_id, type, content, checksum, created_at FROM artifacts WHERE id = ?`,
		exec.ArtifactID,
	).Scan(&art.ID, &art.TaskID, &art.Type, &art.Content, &art.Checksum, &art.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &exec, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying artifact: %w", err)
	}
	return &exec, &art, nil
}

// CountExecutions returns the number of execution rows for a task.
func (s *Store) CountExecutions(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE task_id = ?`, taskID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting executions: %w", err)
	}
	return n, nil
}

func (s *Store) checkTransitionResult(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking transition result: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, getErr := s.GetTask(ctx, id); errors.Is(getErr, ErrNotFound) {
		return getErr
	}
	return fmt.Errorf("task %s: %w", id, ErrConflict)
}

func transitionQuery(from []Status) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	return `UPDATE tasks SET status = ? WHERE id = ? AND status IN (` + placeholders + `)`
}

func transitionArgs(id string, from []Status, to Status) []any {
	args := []any{string(to), id}
	for _, st := range from {
		args = append(args, string(st))
	}
	return args
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var contextJSON sql.NullString
	var risk, tier, status, strategicJSON string
	var createdAt time.Time

	if err := row.Scan(&t.ID, &t.UserID, &t.Prompt, &contextJSON, &risk, &tier, &status, &strategicJSON, &createdAt); err != nil {
		return nil, err
	}

	parsedRisk, err := classifier.ParseRiskLevel(risk)
	if err != nil {
		return nil, fmt.Errorf("stored task %s: %w", t.ID, err)
	}
	parsedTier, err := llm.ParseTier(tier)
	if err != nil {
		return nil, fmt.Errorf("stored task %s: %w", t.ID, err)
	}
	parsedStatus, err := ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("stored task %s: %w", t.ID, err)
	}

	t.Risk = parsedRisk
	t.Tier = parsedTier
	t.Status = parsedStatus
	t.CreatedAt = createdAt
	if contextJSON.Valid && contextJSON.String != "" {
		t.Context = json.RawMessage(contextJSON.String)
	}
	if err := json.Unmarshal([]byte(strategicJSON), &t.Strategic); err != nil {
		return nil, fmt.Errorf("unmarshaling strategic context: %w", err)
	}
	return &t, nil
}
