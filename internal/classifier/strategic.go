package classifier

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// StrategicContext is advisory governance metadata attached to a task for
// audit and explanation. It is pure data: no formatting, and it must never
// influence the orchestrator's control flow.
type StrategicContext struct {
	Dependencies  []string `json:"dependencies,omitempty"`
	ExecutionBias string   `json:"execution_bias"`
	ROI           string   `json:"roi"`
	ScopeCreep    string   `json:"scope_creep"`
	LongTermCost  string   `json:"long_term_cost"`
}

// dependencyRule pairs a prompt pattern with the dependency it implies.
type dependencyRule struct {
	pattern *regexp.Regexp
	implies string
}

var dependencyRules = []dependencyRule{
	{regexp.MustCompile(`(?i)\bcreate\b`), "may require schema/model definition"},
	{regexp.MustCompile(`(?i)\bdeploy\b`), "requires build/test/staging validation"},
	{regexp.MustCompile(`(?i)\bmigrat`), "requires data backup and rollback plan"},
	{regexp.MustCompile(`(?i)\bintegrat|\bapi\b`), "may require external service credentials"},
	{regexp.MustCompile(`(?i)\btest`), "may require fixtures or test data"},
}

// EvaluateStrategic derives the strategic context for a prompt. Pure and
// deterministic; returns empty dependency lists rather than nil errors.
func EvaluateStrategic(ctx context.Context, prompt string, risk RiskLevel) StrategicContext {
	_, span := tracer.Start(ctx, "classifier.strategic")
	defer span.End()

	sc := StrategicContext{
		Dependencies:  inferDependencies(prompt),
		ExecutionBias: executionBias(risk),
		ROI:           "medium", // placeholder classification; contract shape is a string tag
		ScopeCreep:    scopeCreep(prompt),
		LongTermCost:  longTermCost(risk),
	}
	span.SetAttributes(
		attribute.Int("strategic.dependency_count", len(sc.Dependencies)),
		attribute.String("strategic.scope_creep", sc.ScopeCreep),
	)
	return sc
}

func inferDependencies(prompt string) []string {
	var deps []string
	for _, rule := range dependencyRules {
		if rule.pattern.MatchString(prompt) {
			deps = append(deps, rule.implies)
		}
	}
	return deps
}

func scopeCreep(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, marker := range defaultScopeCreepMarkers {
		if strings.Contains(lower, marker) {
			return "HIGH"
		}
	}
	return "LOW"
}

func longTermCost(risk RiskLevel) string {
	switch risk {
	case RiskHigh:
		return "significant"
	case RiskMedium:
		return "moderate"
	default:
		return "minimal"
	}
}

func executionBias(risk RiskLevel) string {
	switch risk {
	case RiskHigh:
		return "manual"
	case RiskMedium:
		return "supervised"
	default:
		return "autonomous"
	}
}
