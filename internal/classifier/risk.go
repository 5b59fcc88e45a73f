// Package classifier maps free-text prompts to governance risk levels.
//
// Classification is ordered and first-match-wins: high-severity markers are
// checked first, then change-scope markers, and anything else falls through
// to RiskLow. Matching is case-insensitive substring matching on the prompt.
// The marker tables ship with built-in defaults (patterns.go) and can be
// overridden or extended by a YAML marker file (registry.go).
package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	truaiotel "github.com/demewebsolutions/truai/internal/otel"
)

var tracer = truaiotel.Tracer("github.com/demewebsolutions/truai/internal/classifier")

// RiskLevel is the governance classification of a prompt's potential impact.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRiskLevel converts a string into a RiskLevel, rejecting anything
// outside the closed enum so raw strings never leak into the state machine.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToUpper(s)) {
	case RiskLow:
		return RiskLow, nil
	case RiskMedium:
		return RiskMedium, nil
	case RiskHigh:
		return RiskHigh, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// Classifier evaluates prompts against the marker tables.
type Classifier struct {
	highMarkers     []string
	mediumMarkers   []string
	productionVerbs []string
}

// New creates a classifier with the built-in default marker tables.
func New() *Classifier {
	return &Classifier{
		highMarkers:     defaultHighMarkers,
		mediumMarkers:   defaultMediumMarkers,
		productionVerbs: defaultProductionVerbs,
	}
}

// NewFromMarkers creates a classifier from an explicit marker set, typically
// the result of merging defaults with a YAML override file.
func NewFromMarkers(m Markers) *Classifier {
	return &Classifier{
		highMarkers:     m.High,
		mediumMarkers:   m.Medium,
		productionVerbs: m.ProductionVerbs,
	}
}

// Classify maps a prompt to a risk level. Deterministic and side-effect
// free given the same prompt and marker tables. An empty prompt classifies
// LOW; rejecting empty prompts is the caller's contract.
func (c *Classifier) Classify(ctx context.Context, prompt string) RiskLevel {
	_, span := tracer.Start(ctx, "classifier.classify")
	defer span.End()

	risk := c.classify(strings.ToLower(prompt))
	span.SetAttributes(attribute.String("risk.level", string(risk)))
	return risk
}

func (c *Classifier) classify(lower string) RiskLevel {
	for _, marker := range c.highMarkers {
		if strings.Contains(lower, marker) {
			return RiskHigh
		}
	}
	// Production-destructive verbs count as HIGH only together with
	// "production". "deploy" alone stays below HIGH; see the marker table
	// documentation before changing this.
	if strings.Contains(lower, "production") {
		for _, verb := range c.productionVerbs {
			if strings.Contains(lower, verb) {
				return RiskHigh
			}
		}
	}
	for _, marker := range c.mediumMarkers {
		if strings.Contains(lower, marker) {
			return RiskMedium
		}
	}
	return RiskLow
}
