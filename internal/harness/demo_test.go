package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDemoScenarios runs the scenarios shipped under testdata/scenarios and
// checks their traces against the golden files.
func TestDemoScenarios(t *testing.T) {
	tests := []struct {
		name         string
		scenarioPath string
	}{
		{
			name:         "trash_and_restore",
			scenarioPath: "../../testdata/scenarios/trash_and_restore.yaml",
		},
		{
			name:         "category_lifecycle",
			scenarioPath: "../../testdata/scenarios/category_lifecycle.yaml",
		},
		{
			name:         "live_updates_and_capture",
			scenarioPath: "../../testdata/scenarios/live_updates_and_capture.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := LoadScenario(tt.scenarioPath)
			require.NoError(t, err, "failed to load scenario from %s", tt.scenarioPath)

			assert.Equal(t, tt.name, scenario.Name, "scenario name mismatch")
			assert.NotEmpty(t, scenario.Description)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}
