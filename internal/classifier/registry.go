package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Markers is a complete marker set for a Classifier.
type Markers struct {
	High            []string `yaml:"high" json:"high"`
	Medium          []string `yaml:"medium" json:"medium"`
	ProductionVerbs []string `yaml:"production_verbs" json:"production_verbs"`
}

// MarkerFile is the top-level YAML structure for a marker override file.
// Mode "extend" (the default) appends entries to the built-in tables;
// mode "replace" substitutes any non-empty list wholesale.
type MarkerFile struct {
	Mode    string  `yaml:"mode"`
	Markers Markers `yaml:"risk_markers"`
}

// DefaultMarkers returns a copy of the built-in marker tables.
func DefaultMarkers() Markers {
	return Markers{
		High:            append([]string(nil), defaultHighMarkers...),
		Medium:          append([]string(nil), defaultMediumMarkers...),
		ProductionVerbs: append([]string(nil), defaultProductionVerbs...),
	}
}

// ParseMarkerFile parses marker YAML bytes into a MarkerFile.
func ParseMarkerFile(data []byte) (*MarkerFile, error) {
	var mf MarkerFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing marker YAML: %w", err)
	}
	switch mf.Mode {
	case "", "extend", "replace":
	default:
		return nil, fmt.Errorf("unknown marker file mode %q", mf.Mode)
	}
	return &mf, nil
}

// LoadMarkerFile reads and parses a marker YAML file from disk. Returns
// nil (not an error) if the file does not exist, so callers can treat a
// missing override file as a no-op.
func LoadMarkerFile(path string) (*MarkerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading marker file %s: %w", path, err)
	}
	return ParseMarkerFile(data)
}

// Merge applies the override file to a base marker set and returns the
// merged result. A nil file returns the base unchanged.
func (mf *MarkerFile) Merge(base Markers) Markers {
	if mf == nil {
		return base
	}
	if mf.Mode == "replace" {
		return Markers{
			High:            replaceIfSet(base.High, mf.Markers.High),
			Medium:          replaceIfSet(base.Medium, mf.Markers.Medium),
			ProductionVerbs: replaceIfSet(base.ProductionVerbs, mf.Markers.ProductionVerbs),
		}
	}
	return Markers{
		High:            appendUnique(base.High, mf.Markers.High),
		Medium:          appendUnique(base.Medium, mf.Markers.Medium),
		ProductionVerbs: appendUnique(base.ProductionVerbs, mf.Markers.ProductionVerbs),
	}
}

func replaceIfSet(base, override []string) []string {
	if len(override) > 0 {
		return override
	}
	return base
}

func appendUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, m := range base {
		seen[m] = true
	}
	merged := append([]string(nil), base...)
	for _, m := range extra {
		if !seen[m] {
			merged = append(merged, m)
			seen[m] = true
		}
	}
	return merged
}
