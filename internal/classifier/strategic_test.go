package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateStrategicDependencies(t *testing.T) {
	ctx := context.Background()

	sc := EvaluateStrategic(ctx, "Create a users table and migrate the data", RiskMedium)
	assert.Contains(t, sc.Dependencies, "may require schema/model definition")
	assert.Contains(t, sc.Dependencies, "requires data backup and rollback plan")

	sc = EvaluateStrategic(ctx, "Deploy the API and add integration tests", RiskMedium)
	assert.Contains(t, sc.Dependencies, "requires build/test/staging validation")
	assert.Contains(t, sc.Dependencies, "may require external service credentials")
	assert.Contains(t, sc.Dependencies, "may require fixtures or test data")

	sc = EvaluateStrategic(ctx, "Format this code", RiskLow)
	assert.Empty(t, sc.Dependencies)
}

func TestEvaluateStrategicExecutionBias(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "autonomous", EvaluateStrategic(ctx, "x", RiskLow).ExecutionBias)
	assert.Equal(t, "supervised", EvaluateStrategic(ctx, "x", RiskMedium).ExecutionBias)
	assert.Equal(t, "manual", EvaluateStrategic(ctx, "x", RiskHigh).ExecutionBias)
}

func TestEvaluateStrategicLongTermCost(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "minimal", EvaluateStrategic(ctx, "x", RiskLow).LongTermCost)
	assert.Equal(t, "moderate", EvaluateStrategic(ctx, "x", RiskMedium).LongTermCost)
	assert.Equal(t, "significant", EvaluateStrategic(ctx, "x", RiskHigh).LongTermCost)
}

func TestEvaluateStrategicScopeCreep(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "HIGH", EvaluateStrategic(ctx, "Rewrite the billing service", RiskMedium).ScopeCreep)
	assert.Equal(t, "HIGH", EvaluateStrategic(ctx, "Complete redesign of the UI", RiskMedium).ScopeCreep)
	assert.Equal(t, "LOW", EvaluateStrategic(ctx, "Fix the typo", RiskLow).ScopeCreep)
}

func TestEvaluateStrategicROIShape(t *testing.T) {
	sc := EvaluateStrategic(context.Background(), "anything", RiskLow)
	assert.Equal(t, "medium", sc.ROI)
}
