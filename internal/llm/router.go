package llm

import (
	"github.com/demewebsolutions/truai/internal/classifier"
)

// RouteRisk maps a risk level to an execution tier. Total over the closed
// risk enum: LOW→CHEAP, MEDIUM→MID, HIGH→HIGH. The default arm is
// unreachable given ParseRiskLevel but falls back to CHEAP rather than
// panicking at the boundary.
func RouteRisk(risk classifier.RiskLevel) Tier {
	switch risk {
	case classifier.RiskHigh:
		return TierHigh
	case classifier.RiskMedium:
		return TierMid
	case classifier.RiskLow:
		return TierCheap
	default:
		return TierCheap
	}
}

// ModelMap resolves a tier to a concrete backend model identifier. This is
// configuration, not logic: operators override it via truai.config.yaml
// (models.cheap / models.mid / models.high).
type ModelMap struct {
	Cheap string `yaml:"cheap" mapstructure:"cheap"`
	Mid   string `yaml:"mid" mapstructure:"mid"`
	High  string `yaml:"high" mapstructure:"high"`
}

// DefaultModelMap returns the built-in tier→model mapping.
func DefaultModelMap() ModelMap {
	return ModelMap{
		Cheap: "gpt-3.5-turbo",
		Mid:   "gpt-4",
		High:  "gpt-4-turbo",
	}
}

// ModelFor returns the model identifier for the given tier. Empty override
// entries fall back to the defaults so a partial config stays usable.
func (m ModelMap) ModelFor(tier Tier) string {
	defaults := DefaultModelMap()
	switch tier {
	case TierHigh:
		return orDefault(m.High, defaults.High)
	case TierMid:
		return orDefault(m.Mid, defaults.Mid)
	default:
		return orDefault(m.Cheap, defaults.Cheap)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
