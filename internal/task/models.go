// Package task defines the governed work records — tasks, executions, and
// artifacts — and their SQLite store.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/demewebsolutions/truai/internal/classifier"
	"github.com/demewebsolutions/truai/internal/llm"
)

// Status is the task state machine position. EXECUTED, REJECTED, SAVED,
// and LOCKED are terminal; re-submission is a new task, never a mutation.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusApproved Status = "APPROVED"
	StatusExecuted Status = "EXECUTED"
	StatusRejected Status = "REJECTED"
	StatusSaved    Status = "SAVED"
	StatusLocked   Status = "LOCKED"
)

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusCreated, StatusApproved, StatusExecuted, StatusRejected, StatusSaved, StatusLocked:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

// Task is a unit of governed work. Risk and Tier are assigned exactly once
// at creation and never change; re-routing requires a new task.
type Task struct {
	ID        string                      `json:"id"`
	UserID    string                      `json:"user_id"`
	Prompt    string                      `json:"prompt"`
	Context   json.RawMessage             `json:"context,omitempty"`
	Risk      classifier.RiskLevel        `json:"risk_level"`
	Tier      llm.Tier                    `json:"assigned_tier"`
	Status    Status                      `json:"status"`
	Strategic classifier.StrategicContext `json:"strategic_context"`
	CreatedAt time.Time                   `json:"created_at"`
}

// ExecStatus is the execution record state.
type ExecStatus string

const (
	ExecPending   ExecStatus = "PENDING"
	ExecCompleted ExecStatus = "COMPLETED"
	ExecFailed    ExecStatus = "FAILED"
)

// Execution is one attempt to produce output for a task. Immutable once
// COMPLETED; a retry after rejection is a new execution.
type Execution struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	Model      string     `json:"model_used"`
	ArtifactID string     `json:"artifact_id"`
	Status     ExecStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Artifact is the write-once output of a successful execution.
type Artifact struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactTypeGenerated is the only artifact type currently produced.
const ArtifactTypeGenerated = "generated_text"

// NewTaskID returns a time-sortable unique task ID: millisecond timestamp
// plus a random suffix for collision avoidance.
func NewTaskID() string {
	return fmt.Sprintf("task_%d_%s", time.Now().UnixMilli(), uuid.New().String()[:12])
}

// NewExecutionID returns a unique execution ID.
func NewExecutionID() string {
	return "exec_" + uuid.New().String()[:12]
}

// NewArtifact builds a generated-text artifact with its SHA-256 checksum.
func NewArtifact(taskID, content string) *Artifact {
	sum := sha256.Sum256([]byte(content))
	return &Artifact{
		ID:        "art_" + uuid.New().String()[:12],
		TaskID:    taskID,
		Type:      ArtifactTypeGenerated,
		Content:   content,
		Checksum:  hex.EncodeToString(sum[:]),
		CreatedAt: time.Now().UTC(),
	}
}
