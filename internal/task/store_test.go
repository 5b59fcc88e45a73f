package task

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demewebsolutions/truai/internal/classifier"
	"github.com/demewebsolutions/truai/internal/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestTask(userID string, risk classifier.RiskLevel, status Status) *Task {
	return &Task{
		ID:        NewTaskID(),
		UserID:    userID,
		Prompt:    "test prompt",
		Risk:      risk,
		Tier:      llm.RouteRisk(risk),
		Status:    status,
		Strategic: classifier.StrategicContext{ExecutionBias: "autonomous", ROI: "medium", ScopeCreep: "LOW", LongTermCost: "minimal"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGetTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := newTestTask("alice", classifier.RiskMedium, StatusCreated)
	created.Context = []byte(`{"repo":"truai"}`)
	require.NoError(t, store.CreateTask(ctx, created))

	got, err := store.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, classifier.RiskMedium, got.Risk)
	assert.Equal(t, llm.TierMid, got.Tier)
	assert.Equal(t, StatusCreated, got.Status)
	assert.JSONEq(t, `{"repo":"truai"}`, string(got.Context))
	assert.Equal(t, "medium", got.Strategic.ROI)
}

func TestGetTaskNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTask(context.Background(), "task_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTasksFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestTask("alice", classifier.RiskLow, StatusCreated)
	b := newTestTask("alice", classifier.RiskHigh, StatusLocked)
	c := newTestTask("bob", classifier.RiskLow, StatusCreated)
	for _, task := range []*Task{a, b, c} {
		require.NoError(t, store.CreateTask(ctx, task))
	}

	all, err := store.ListTasks(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alices, err := store.ListTasks(ctx, "alice", "", 0)
	require.NoError(t, err)
	assert.Len(t, alices, 2)

	locked, err := store.ListTasks(ctx, "", StatusLocked, 0)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, b.ID, locked[0].ID)

	limited, err := store.ListTasks(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTestTask("alice", classifier.RiskMedium, StatusCreated)
	require.NoError(t, store.CreateTask(ctx, task))

	require.NoError(t, store.Transition(ctx, task.ID, []Status{StatusCreated}, StatusApproved))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestTransitionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTestTask("alice", classifier.RiskMedium, StatusRejected)
	require.NoError(t, store.CreateTask(ctx, task))

	err := store.Transition(ctx, task.ID, []Status{StatusCreated}, StatusApproved)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	// Terminal status untouched.
	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
}

func TestTransitionNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Transition(context.Background(), "task_missing", []Status{StatusCreated}, StatusApproved)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionMultipleSources(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTestTask("alice", classifier.RiskHigh, StatusLocked)
	require.NoError(t, store.CreateTask(ctx, task))

	require.NoError(t, store.Transition(ctx, task.ID, []Status{StatusCreated, StatusLocked}, StatusCreated))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, got.Status)
}

func TestRecordExecution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTestTask("alice", classifier.RiskLow, StatusCreated)
	require.NoError(t, store.CreateTask(ctx, task))

	art := NewArtifact(task.ID, "generated output")
	exec := &Execution{
		ID:         NewExecutionID(),
		TaskID:     task.ID,
		Model:      "gpt-3.5-turbo",
		ArtifactID: art.ID,
		Status:     ExecCompleted,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.RecordExecution(ctx, task.ID, []Status{StatusCreated}, exec, art))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)

	gotExec, gotArt, err := store.LatestExecution(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, gotExec)
	require.NotNil(t, gotArt)
	assert.Equal(t, exec.ID, gotExec.ID)
	assert.Equal(t, ExecCompleted, gotExec.Status)
	assert.Equal(t, "gpt-3.5-turbo", gotExec.Model)
	assert.Equal(t, "generated output", gotArt.Content)

	sum := sha256.Sum256([]byte("generated output"))
	assert.Equal(t, hex.EncodeToString(sum[:]), gotArt.Checksum)
}

func TestRecordExecutionConflictLeavesNoRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTestTask("alice", classifier.RiskLow, StatusCreated)
	require.NoError(t, store.CreateTask(ctx, task))

	record := func() error {
		art := NewArtifact(task.ID, "output")
		exec := &Execution{
			ID: NewExecutionID(), TaskID: task.ID, Model: "gpt-3.5-turbo",
			ArtifactID: art.ID, Status: ExecCompleted, CreatedAt: time.Now().UTC(),
		}
		return store.RecordExecution(ctx, task.ID, []Status{StatusCreated}, exec, art)
	}

	require.NoError(t, record())
	err := record()
	require.Error(t, err, "second execution of the same task must lose the guard")
	assert.ErrorIs(t, err, ErrConflict)

	// Exactly one execution row survives; the loser wrote nothing.
	n, err := store.CountExecutions(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordExecutionConcurrentRace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tsk := newTestTask("alice", classifier.RiskLow, StatusCreated)
	require.NoError(t, store.CreateTask(ctx, tsk))

	// Two goroutines race the guarded transition; exactly one may win.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art := NewArtifact(tsk.ID, "output")
			exec := &Execution{
				ID: NewExecutionID(), TaskID: tsk.ID, Model: "gpt-3.5-turbo",
				ArtifactID: art.ID, Status: ExecCompleted, CreatedAt: time.Now().UTC(),
			}
			errs <- store.RecordExecution(ctx, tsk.ID, []Status{StatusCreated}, exec, art)
		}()
	}
	wg.Wait()
	close(errs)

	var successes, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one racer may reach EXECUTED")
	assert.Equal(t, 1, conflicts, "the loser must get a conflict")

	got, err := store.GetTask(ctx, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)

	n, err := store.CountExecutions(ctx, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the losing racer must write no rows")

	exec, art, err := store.LatestExecution(ctx, tsk.ID)
	require.NoError(t, err)
	require.NotNil(t, exec)
	require.NotNil(t, art, "the winner's artifact must be the only one")
	assert.Equal(t, exec.ArtifactID, art.ID)
}

func TestRecordExecutionNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	art := NewArtifact("task_missing", "output")
	exec := &Execution{
		ID: NewExecutionID(), TaskID: "task_missing", Model: "gpt-3.5-turbo",
		ArtifactID: art.ID, Status: ExecCompleted, CreatedAt: time.Now().UTC(),
	}
	err := store.RecordExecution(ctx, "task_missing", []Status{StatusCreated}, exec, art)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestExecutionNone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := newTestTask("alice", classifier.RiskLow, StatusCreated)
	require.NoError(t, store.CreateTask(ctx, task))

	exec, art, err := store.LatestExecution(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, exec)
	assert.Nil(t, art)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusCreated, StatusApproved, StatusExecuted, StatusRejected, StatusSaved, StatusLocked} {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("PENDING")
	require.Error(t, err)
}

func TestNewTaskIDShape(t *testing.T) {
	id := NewTaskID()
	assert.Regexp(t, `^task_\d+_[0-9a-f-]{12}$`, id)
	assert.NotEqual(t, id, NewTaskID())
}

func TestNewArtifactChecksum(t *testing.T) {
	art := NewArtifact("task_1", "hello")
	sum := sha256.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(sum[:]), art.Checksum)
	assert.Equal(t, ArtifactTypeGenerated, art.Type)
	assert.Regexp(t, `^art_`, art.ID)
}
