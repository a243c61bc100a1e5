package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../../testdata/scenarios"

// copyScenario copies a scenario from testdata into dir so golden files can
// be written next to it.
func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(scenariosDir, name))
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandRunsScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir})

	err := cmd.Execute()
	require.NoError(t, err, buf.String())

	output := buf.String()
	assert.Contains(t, output, "✓ trash_and_restore")
	assert.Contains(t, output, "✓ category_lifecycle")
	assert.Contains(t, output, "✓ live_updates_and_capture")
	assert.Contains(t, output, "3 passed, 0 failed, 3 total")
}

func TestTestCommandFilterJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir, "--filter", "trash_*"})

	err := cmd.Execute()
	require.NoError(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, 1, response.Data.Total)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Equal(t, "trash_and_restore", response.Data.Scenarios[0].Name)
	assert.True(t, response.Data.Scenarios[0].Pass)
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	tmpDir := t.TempDir()
	scenario := copyScenario(t, tmpDir, "trash_and_restore.yaml")
	goldenPath := goldenFilePath(scenario)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir, "--update"})
	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "golden updated")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"ImageTrashed"`)

	// A second run compares against the file just written.
	buf.Reset()
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})
	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "✓ trash_and_restore")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	scenario := copyScenario(t, tmpDir, "trash_and_restore.yaml")
	require.NoError(t, writeGoldenFile(goldenFilePath(scenario), []byte("{}\n")))

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ trash_and_restore")
	assert.Contains(t, buf.String(), "Golden file mismatch")
}

func TestTestCommandFailingScenario(t *testing.T) {
	tmpDir := t.TempDir()
	bad := `name: wrong_expectation
description: "Expects more trash than there is"
setup:
  categories: [Art]
  images:
    - { id: "1", category: Art }
flow:
  - op: trash
    id: "1"
assertions:
  - type: final_state
    table: session
    expect: { trash: 5 }
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.yaml"), []byte(bad), 0644))

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, "E_TEST_FAILED", response.Error.Code)
}

func TestTestHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "in-memory store")
	assert.Contains(t, output, "--update")
	assert.Contains(t, output, "--filter")
	assert.Contains(t, output, "scenarios-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "trash-empty.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "trash-restore.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "category-rename.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "trash-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	for _, f := range files {
		assert.Contains(t, filepath.Base(f), "trash-")
	}
}

func TestFindScenarioFilesSkipsGoldenDir(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	goldenDir := filepath.Join(tmpDir, "golden")
	require.NoError(t, os.MkdirAll(subDir, 0755))
	require.NoError(t, os.MkdirAll(goldenDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "stray.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		result := goldenFilePath(tc.input)
		assert.Equal(t, tc.expected, result)
	}
}
