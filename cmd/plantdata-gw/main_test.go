package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/storage"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	outCh := make(chan []byte)
	errCh := make(chan []byte)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes := <-outCh
	stderrBytes := <-errCh
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return run(args) })
}

// writeTestConfig writes a valid config whose state database lives in the
// same temp directory.
func writeTestConfig(t *testing.T) (configPath, statePath string) {
	t.Helper()
	dir := t.TempDir()
	statePath = filepath.Join(dir, "state.db")
	configPath = filepath.Join(dir, "config.yaml")
	body := `
state:
  path: ` + statePath + `
workflow:
  base_url: http://workflows.local
  token: workflow-secret
timeseries:
  dsn: postgres://ts@localhost/plant
analysis:
  rules:
    - tag: 313-LI-1234
      analyses: [constant_level_oiler]
`
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0644))
	return configPath, statePath
}

func TestVersionAndHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "plantdata-gw version "+version)

	code, stdout, _ = runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "inspection show <id>")

	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")

	code, _, _ = runCLI(t)
	assert.Equal(t, 1, code)
}

func TestNounHelpAndUnknownAction(t *testing.T) {
	code, stdout, _ := runCLI(t, "config", "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Actions: check, lock, get")

	code, stdout, _ = runCLI(t, "inspection", "show", "--help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "inspection show <inspection_id>")

	code, _, stderr := runCLI(t, "mapping", "drop")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown mapping action: drop")

	code, _, stderr = runCLI(t, "system")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Actions: start")
}

func TestConfigLockDryRunThenWrite(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	checksums := filepath.Join(filepath.Dir(configPath), ".checksums")

	code, stdout, stderr := runCLI(t, "config", "lock", "--config", configPath, "-v", "--dry-run")
	require.Equal(t, 0, code, stderr)
	assert.Regexp(t, regexp.MustCompile(`HASH .*config\.yaml: [a-f0-9]{64}`), stdout)
	assert.Contains(t, stdout, "DRY-RUN .checksums:")
	assert.Contains(t, stdout, "Dry run completed (changed: true)")
	_, err := os.Stat(checksums)
	assert.True(t, os.IsNotExist(err), ".checksums should not be written in dry-run mode")

	code, stdout, stderr = runCLI(t, "config", "lock", "--config", configPath, "--verbose")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "WROTE .checksums:")
	assert.Contains(t, stdout, "Successfully locked configuration")
	_, err = os.Stat(checksums)
	assert.NoError(t, err)

	code, stdout, _ = runCLI(t, "config", "lock", "--config", configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Configuration already locked")
}

func TestConfigCheck(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	code, stdout, stderr := runCLI(t, "config", "check", "--config", configPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Configuration OK")
	assert.Contains(t, stdout, "locked:        false")
	assert.Contains(t, stdout, "mapping rules: 1")

	code, _, _ = runCLI(t, "config", "lock", "--config", configPath)
	require.Equal(t, 0, code)

	code, stdout, _ = runCLI(t, "config", "check", "--config", configPath, "--json")
	require.Equal(t, 0, code)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, true, result["valid"])
	assert.Equal(t, true, result["locked"])
}

func TestConfigCheckInvalid(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("timeseries:\n  dsn: x\n"), 0644))

	code, _, stderr := runCLI(t, "config", "check", "--config", configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "workflow.base_url is required")
}

func TestConfigGet(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	code, stdout, stderr := runCLI(t, "config", "get", "workflow.base_url", "--config", configPath)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "http://workflows.local\n", stdout)

	code, stdout, _ = runCLI(t, "config", "get", "workflow.token", "--config", configPath)
	require.Equal(t, 0, code)
	assert.Equal(t, "<redacted>\n", stdout)

	code, stdout, _ = runCLI(t, "config", "get", "analysis.rules", "--config", configPath, "--json")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `"313-LI-1234"`)

	code, _, stderr = runCLI(t, "config", "get", "--config", configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage:")
}

func TestInspectionShowAndList(t *testing.T) {
	configPath, statePath := writeTestConfig(t)

	db, err := storage.OpenSQLite(context.Background(), statePath)
	require.NoError(t, err)
	_, err = inspection.NewStore(db).Create(context.Background(), inspection.ResultEvent{
		InspectionID: "I1",
		TagID:        "313-LI-1234",
		Description:  "oil level",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	code, stdout, stderr := runCLI(t, "inspection", "show", "I1", "--config", configPath, "--json")
	require.Equal(t, 0, code, stderr)
	var rec inspection.Record
	require.NoError(t, json.Unmarshal([]byte(stdout), &rec))
	assert.Equal(t, "I1", rec.InspectionID)
	assert.Equal(t, "313-LI-1234", rec.TagID)

	code, stdout, _ = runCLI(t, "inspection", "show", "I1", "--config", configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Inspection Record")
	assert.Contains(t, stdout, "oil level")

	code, _, stderr = runCLI(t, "inspection", "show", "missing", "--config", configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "No record for inspection missing")

	code, stdout, _ = runCLI(t, "inspection", "list", "--config", configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "I1")
	assert.True(t, strings.Contains(stdout, "313-LI-1234"))
}

func TestMappingList(t *testing.T) {
	configPath, statePath := writeTestConfig(t)

	code, stdout, _ := runCLI(t, "mapping", "list", "--config", configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No mapping rules stored")

	db, err := storage.OpenSQLite(context.Background(), statePath)
	require.NoError(t, err)
	require.NoError(t, analysis.NewStore(db).Seed(context.Background(), []analysis.Rule{
		{Tag: "313-LI-1234", Description: "oil", Analyses: []analysis.Type{analysis.ConstantLevelOiler}},
	}))
	require.NoError(t, db.Close())

	code, stdout, _ = runCLI(t, "mapping", "list", "--config", configPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "constant_level_oiler")

	code, stdout, _ = runCLI(t, "mapping", "list", "--config", configPath, "--json")
	require.Equal(t, 0, code)
	var rules []analysis.Rule
	require.NoError(t, json.Unmarshal([]byte(stdout), &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, "oil", rules[0].Description)
}
