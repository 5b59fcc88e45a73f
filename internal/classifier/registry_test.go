package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkerFile(t *testing.T) {
	yaml := `
mode: extend
risk_markers:
  high:
    - "wire transfer"
  medium:
    - "rename"
  production_verbs:
    - "truncate"
`
	mf, err := ParseMarkerFile([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "extend", mf.Mode)
	assert.Equal(t, []string{"wire transfer"}, mf.Markers.High)
	assert.Equal(t, []string{"rename"}, mf.Markers.Medium)
	assert.Equal(t, []string{"truncate"}, mf.Markers.ProductionVerbs)
}

func TestParseMarkerFileInvalidYAML(t *testing.T) {
	_, err := ParseMarkerFile([]byte(`{{{invalid`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing marker YAML")
}

func TestParseMarkerFileUnknownMode(t *testing.T) {
	_, err := ParseMarkerFile([]byte("mode: merge\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown marker file mode")
}

func TestLoadMarkerFileMissing(t *testing.T) {
	mf, err := LoadMarkerFile("/nonexistent/markers.yaml")
	require.NoError(t, err, "missing file should not return error")
	assert.Nil(t, mf, "missing file should return nil")
}

func TestLoadMarkerFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markers.yaml")
	yaml := `
risk_markers:
  high:
    - "customer data"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	mf, err := LoadMarkerFile(path)
	require.NoError(t, err)
	require.NotNil(t, mf)
	assert.Equal(t, []string{"customer data"}, mf.Markers.High)
}

func TestMergeExtend(t *testing.T) {
	base := Markers{
		High:            []string{"password"},
		Medium:          []string{"refactor"},
		ProductionVerbs: []string{"delete"},
	}
	mf := &MarkerFile{
		Mode: "extend",
		Markers: Markers{
			High:   []string{"wire transfer", "password"}, // duplicate ignored
			Medium: []string{"rename"},
		},
	}

	merged := mf.Merge(base)
	assert.Equal(t, []string{"password", "wire transfer"}, merged.High)
	assert.Equal(t, []string{"refactor", "rename"}, merged.Medium)
	assert.Equal(t, []string{"delete"}, merged.ProductionVerbs)
}

func TestMergeReplace(t *testing.T) {
	base := DefaultMarkers()
	mf := &MarkerFile{
		Mode: "replace",
		Markers: Markers{
			High: []string{"only this"},
		},
	}

	merged := mf.Merge(base)
	assert.Equal(t, []string{"only this"}, merged.High)
	// Empty lists in a replace file keep the base tables.
	assert.Equal(t, base.Medium, merged.Medium)
	assert.Equal(t, base.ProductionVerbs, merged.ProductionVerbs)
}

func TestMergeNilFile(t *testing.T) {
	base := DefaultMarkers()
	var mf *MarkerFile
	assert.Equal(t, base, mf.Merge(base))
}

func TestDefaultMarkersIsACopy(t *testing.T) {
	m := DefaultMarkers()
	m.High[0] = "mutated"
	assert.NotEqual(t, "mutated", DefaultMarkers().High[0])
}
