package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir holds the scenarios shipped with the repository. Tests run
// from the package directory.
const scenarioDir = "../../testdata/scenarios"

// TestDemoScenarios runs every shipped scenario and compares its condensed
// trace with testdata/golden.
func TestDemoScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			assert.NotEmpty(t, scenario.Description, "scenario should have description")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			require.NotNil(t, result)

			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
			assert.NotEmpty(t, result.Trace, "trace should not be empty")
		})
	}
}

func TestDemoScenarios_Names(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)

	var names []string
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"cancel_download",
		"complete_download",
		"double_start",
		"restart_after_cancel",
		"restart_after_complete",
	}, names)
}
