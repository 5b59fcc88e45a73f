// Package orchestrator implements the task governance state machine.
//
// Every submission runs the same pipeline: classify risk → route tier →
// derive strategic metadata → persist the task → apply the per-tier
// execution policy. LOW risk executes silently in-line, MEDIUM is held for
// a single approval, HIGH is locked until an admin override. Every
// governance-relevant event is written to the signed audit trail.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/demewebsolutions/truai/internal/audit"
	"github.com/demewebsolutions/truai/internal/classifier"
	"github.com/demewebsolutions/truai/internal/llm"
	truaiotel "github.com/demewebsolutions/truai/internal/otel"
	"github.com/demewebsolutions/truai/internal/redact"
	"github.com/demewebsolutions/truai/internal/task"
)

var tracer = truaiotel.Tracer("github.com/demewebsolutions/truai/internal/orchestrator")

// Domain errors surfaced to the transport layer.
var (
	// ErrEmptyPrompt is returned when a submission carries no prompt text.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrInvalidAction is returned for approval actions outside the
	// recognized set; there is no silent default.
	ErrInvalidAction = errors.New("unknown approval action")
	// ErrInvalidOverride is returned for unknown admin override actions.
	ErrInvalidOverride = errors.New("unknown override action")
	// ErrInvalidTier is returned when a submission forces an unknown tier.
	ErrInvalidTier = errors.New("unknown preferred tier")
	// ErrTaskLocked is returned when the ordinary approval gate is called
	// on a LOCKED task. Locked tasks are only reachable via Override.
	ErrTaskLocked = errors.New("task is locked and requires admin override")
)

// Action drives the approval gate.
type Action string

const (
	ActionApprove  Action = "APPROVE"
	ActionReject   Action = "REJECT"
	ActionSaveOnly Action = "SAVE_ONLY"
)

// ParseAction validates an approval action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject, ActionSaveOnly:
		return Action(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// OverrideAction drives the admin-only unlock path for LOCKED tasks.
type OverrideAction string

const (
	// OverrideRelease moves a LOCKED task back to CREATED so the ordinary
	// approval gate can handle it.
	OverrideRelease OverrideAction = "RELEASE"
	// OverrideExecute approves and executes a LOCKED task in one step.
	OverrideExecute OverrideAction = "EXECUTE"
)

// ParseOverrideAction validates an admin override action string.
func ParseOverrideAction(s string) (OverrideAction, error) {
	switch OverrideAction(s) {
	case OverrideRelease, OverrideExecute:
		return OverrideAction(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOverride, s)
	}
}

// UI interruption hints surfaced with held and locked tasks.
const (
	interruptSidePanel = "side_panel"
	interruptModal     = "modal_blocking"
)

// Orchestrator coordinates the classifier, router, invoker, and stores.
type Orchestrator struct {
	classifier *classifier.Classifier
	models     llm.ModelMap
	invoker    *llm.Invoker
	tasks      *task.Store
	audit      *audit.Store
}

// Config holds the dependencies for constructing an Orchestrator.
type Config struct {
	Classifier *classifier.Classifier
	Models     llm.ModelMap
	Invoker    *llm.Invoker
	Tasks      *task.Store
	Audit      *audit.Store
}

// New creates an orchestrator with the given dependencies.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		classifier: cfg.Classifier,
		models:     cfg.Models,
		invoker:    cfg.Invoker,
		tasks:      cfg.Tasks,
		audit:      cfg.Audit,
	}
}

// SubmitRequest is the input for creating a governed task.
type SubmitRequest struct {
	UserID        string
	Prompt        string
	Context       json.RawMessage
	PreferredTier string // "auto" (default) or an explicit tier name
}

// SubmitResult is the branch-shaped outcome of a submission. Only the
// fields relevant to the policy branch taken are populated.
type SubmitResult struct {
	TaskID       string               `json:"task_id"`
	RiskLevel    classifier.RiskLevel `json:"risk_level"`
	AssignedTier llm.Tier             `json:"assigned_tier"`
	Status       task.Status          `json:"status"`

	// Silent branch (LOW).
	Output      string `json:"output,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`

	// Elevated branch (MEDIUM).
	UIInterruption   string `json:"ui_interruption,omitempty"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
	Explanation      string `json:"explanation,omitempty"`
	ApprovalPrompt   string `json:"approval_prompt,omitempty"`

	// Locked branch (HIGH).
	HaltReason        string `json:"halt_reason,omitempty"`
	RequiresAdmin     bool   `json:"requires_admin,omitempty"`
	KillSwitchVisible bool   `json:"kill_switch_visible,omitempty"`
}

// DecisionResult is the outcome of an approval or override call.
type DecisionResult struct {
	TaskID string      `json:"task_id"`
	Action string      `json:"action"`
	Status task.Status `json:"status"`
	Target string      `json:"target,omitempty"`
}

// TaskView is a task with its latest execution and artifact, if any.
type TaskView struct {
	Task      task.Task       `json:"task"`
	Execution *task.Execution `json:"execution,omitempty"`
	Artifact  *task.Artifact  `json:"artifact,omitempty"`
}

// Submit creates a task, classifies its risk, routes its tier, and applies
// the per-tier execution policy. A manual PreferredTier overrides routing
// but never the computed risk or the policy branch.
func (o *Orchestrator) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.submit",
		trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer span.End()

	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}

	risk := o.classifier.Classify(ctx, req.Prompt)
	tier := llm.RouteRisk(risk)
	if req.PreferredTier != "" && req.PreferredTier != "auto" {
		forced, err := llm.ParseTier(req.PreferredTier)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTier, req.PreferredTier)
		}
		tier = forced
	}
	strategic := classifier.EvaluateStrategic(ctx, req.Prompt, risk)

	status := task.StatusCreated
	if risk == classifier.RiskHigh {
		status = task.StatusLocked
	}

	t := &task.Task{
		ID:        task.NewTaskID(),
		UserID:    req.UserID,
		Prompt:    req.Prompt,
		Context:   req.Context,
		Risk:      risk,
		Tier:      tier,
		Status:    status,
		Strategic: strategic,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.tasks.CreateTask(ctx, t); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("risk.level", string(risk)),
		attribute.String("task.tier", string(tier)),
	)
	log.Info().
		Str("task_id", t.ID).
		Str("user_id", req.UserID).
		Str("risk_level", string(risk)).
		Str("tier", string(tier)).
		Msg("task_created")

	o.auditEvent(ctx, req.UserID, audit.EventTaskCreated, map[string]any{
		"task_id":        t.ID,
		"risk_level":     risk,
		"assigned_tier":  tier,
		"preferred_tier": req.PreferredTier,
	})

	result := &SubmitResult{
		TaskID:       t.ID,
		RiskLevel:    risk,
		AssignedTier: tier,
		Status:       t.Status,
	}

	switch risk {
	case classifier.RiskLow:
		// Silent policy: execute immediately; a failure must never
		// interrupt the user, so it degrades to a held CREATED task.
		output, execID, err := o.execute(ctx, t, "", []task.Status{task.StatusCreated})
		if err != nil {
			log.Warn().
				Str("task_id", t.ID).
				Str("error", redact.Error(err)).
				Msg("silent_execution_failed")
			return result, nil
		}
		result.Status = task.StatusExecuted
		result.Output = output
		result.ExecutionID = execID

	case classifier.RiskMedium:
		result.UIInterruption = interruptSidePanel
		result.RequiresApproval = true
		result.Explanation = "This task changes existing code or configuration and is held for approval."
		result.ApprovalPrompt = "Approve, reject, or save this task for later."

	case classifier.RiskHigh:
		result.UIInterruption = interruptModal
		result.HaltReason = "Prompt matched a high-severity governance marker; execution is locked."
		result.RequiresAdmin = true
		result.KillSwitchVisible = true
		o.auditEvent(ctx, req.UserID, audit.EventTaskLocked, map[string]any{
			"task_id":    t.ID,
			"risk_level": risk,
		})
	}

	return result, nil
}

// Decide drives the approval gate for held tasks. LOCKED tasks are not
// reachable from here; callers get ErrTaskLocked and must use Override.
// A repeated APPROVE on an already-executed task is an idempotent no-op.
func (o *Orchestrator) Decide(ctx context.Context, userID, taskID string, action Action, target string) (*DecisionResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.decide",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("decision.action", string(action)),
		))
	defer span.End()

	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}
	if target == "" {
		target = "production"
	}

	t, err := o.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == task.StatusLocked {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskLocked)
	}

	result := &DecisionResult{TaskID: taskID, Action: string(action), Target: target}

	switch action {
	case ActionApprove:
		return o.approveAndExecute(ctx, t, userID, result)

	case ActionReject:
		if err := o.tasks.Transition(ctx, taskID, []task.Status{task.StatusCreated}, task.StatusRejected); err != nil {
			return nil, err
		}
		o.auditEvent(ctx, userID, audit.EventTaskRejected, decisionDetail(taskID, action, target))
		result.Status = task.StatusRejected

	case ActionSaveOnly:
		if err := o.tasks.Transition(ctx, taskID, []task.Status{task.StatusCreated}, task.StatusSaved); err != nil {
			return nil, err
		}
		o.auditEvent(ctx, userID, audit.EventTaskSaved, decisionDetail(taskID, action, target))
		result.Status = task.StatusSaved
	}

	log.Info().
		Str("task_id", taskID).
		Str("action", string(action)).
		Str("status", string(result.Status)).
		Msg("task_decided")
	return result, nil
}

// approveAndExecute transitions CREATED→APPROVED, runs the invoker, and on
// success lands at EXECUTED. On invocation failure the task is returned to
// CREATED so it stays approvable, and the error propagates to the caller.
func (o *Orchestrator) approveAndExecute(ctx context.Context, t *task.Task, userID string, result *DecisionResult) (*DecisionResult, error) {
	err := o.tasks.Transition(ctx, t.ID, []task.Status{task.StatusCreated}, task.StatusApproved)
	if errors.Is(err, task.ErrConflict) {
		// A racing or repeated approve: if the task already executed,
		// report that instead of failing (no second execution row).
		current, getErr := o.tasks.GetTask(ctx, t.ID)
		if getErr == nil && current.Status == task.StatusExecuted {
			result.Status = task.StatusExecuted
			return result, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	o.auditEvent(ctx, userID, audit.EventTaskApproved, decisionDetail(t.ID, ActionApprove, result.Target))

	_, _, execErr := o.execute(ctx, t, userID, []task.Status{task.StatusApproved})
	if execErr != nil {
		if revertErr := o.tasks.Transition(ctx, t.ID, []task.Status{task.StatusApproved}, task.StatusCreated); revertErr != nil {
			log.Error().
				Str("task_id", t.ID).
				Str("error", redact.Error(revertErr)).
				Msg("approved_task_revert_failed")
		}
		return nil, execErr
	}

	result.Status = task.StatusExecuted
	return result, nil
}

// Override is the admin-only path for LOCKED tasks. RELEASE returns the
// task to CREATED for the ordinary approval gate; EXECUTE approves and
// runs it in one step. On execution failure the task returns to LOCKED.
func (o *Orchestrator) Override(ctx context.Context, adminID, taskID string, action OverrideAction) (*DecisionResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.override",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("override.action", string(action)),
		))
	defer span.End()

	if _, err := ParseOverrideAction(string(action)); err != nil {
		return nil, err
	}

	t, err := o.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	result := &DecisionResult{TaskID: taskID, Action: string(action)}

	switch action {
	case OverrideRelease:
		if err := o.tasks.Transition(ctx, taskID, []task.Status{task.StatusLocked}, task.StatusCreated); err != nil {
			return nil, err
		}
		result.Status = task.StatusCreated

	case OverrideExecute:
		if err := o.tasks.Transition(ctx, taskID, []task.Status{task.StatusLocked}, task.StatusApproved); err != nil {
			return nil, err
		}
		_, _, execErr := o.execute(ctx, t, adminID, []task.Status{task.StatusApproved})
		if execErr != nil {
			if revertErr := o.tasks.Transition(ctx, taskID, []task.Status{task.StatusApproved}, task.StatusLocked); revertErr != nil {
				log.Error().
					Str("task_id", taskID).
					Str("error", redact.Error(revertErr)).
					Msg("override_task_revert_failed")
			}
			return nil, execErr
		}
		result.Status = task.StatusExecuted
	}

	o.auditEvent(ctx, adminID, audit.EventTaskOverridden, map[string]any{
		"task_id": taskID,
		"action":  action,
		"status":  result.Status,
	})
	log.Info().
		Str("task_id", taskID).
		Str("admin_id", adminID).
		Str("action", string(action)).
		Msg("task_overridden")
	return result, nil
}

// Get returns a task with its latest execution and artifact.
func (o *Orchestrator) Get(ctx context.Context, taskID string) (*TaskView, error) {
	t, err := o.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	exec, art, err := o.tasks.LatestExecution(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskView{Task: *t, Execution: exec, Artifact: art}, nil
}

// List returns tasks filtered by user and status.
func (o *Orchestrator) List(ctx context.Context, userID string, status task.Status, limit int) ([]task.Task, error) {
	return o.tasks.ListTasks(ctx, userID, status, limit)
}

// execute runs the invoker for a task and persists the execution and
// artifact under the guarded status transition. actor is empty for
// system-initiated (silent) runs. No rows are written on failure.
func (o *Orchestrator) execute(ctx context.Context, t *task.Task, actor string, eligible []task.Status) (output, execID string, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.execute",
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.String("task.tier", string(t.Tier)),
		))
	defer span.End()

	model := o.models.ModelFor(t.Tier)
	resp, err := o.invoker.Generate(ctx, t.Prompt, model)
	if err != nil {
		span.RecordError(err)
		o.auditEvent(ctx, actor, audit.EventExecutionFailed, map[string]any{
			"task_id": t.ID,
			"model":   model,
			"error":   redact.Error(err),
		})
		return "", "", err
	}

	art := task.NewArtifact(t.ID, resp.Content)
	exec := &task.Execution{
		ID:         task.NewExecutionID(),
		TaskID:     t.ID,
		Model:      model,
		ArtifactID: art.ID,
		Status:     task.ExecCompleted,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.tasks.RecordExecution(ctx, t.ID, eligible, exec, art); err != nil {
		span.RecordError(err)
		return "", "", err
	}

	o.auditEvent(ctx, actor, audit.EventExecutionDone, map[string]any{
		"task_id":      t.ID,
		"execution_id": exec.ID,
		"artifact_id":  art.ID,
		"model":        model,
	})
	log.Info().
		Str("task_id", t.ID).
		Str("execution_id", exec.ID).
		Str("model", model).
		Msg("execution_completed")
	return resp.Content, exec.ID, nil
}

// auditEvent appends to the audit trail; audit failures are logged, never
// propagated, so a broken trail cannot block the governance pipeline.
func (o *Orchestrator) auditEvent(ctx context.Context, actor, event string, detail map[string]any) {
	if o.audit == nil {
		return
	}
	if _, err := o.audit.Append(ctx, actor, event, detail); err != nil {
		log.Error().
			Str("event", event).
			Str("error", redact.Error(err)).
			Msg("audit_append_failed")
	}
}

func decisionDetail(taskID string, action Action, target string) map[string]any {
	return map[string]any{
		"task_id": taskID,
		"action":  action,
		"target":  target,
	}
}
