package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/pkg/version"
)

// isolate points config, data and Azure env vars at a fresh temp tree.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("PAGEMIND_DATA_DIR", filepath.Join(root, "data"))
	for _, key := range []string{
		"PAGEMIND_AZURE_ENDPOINT", "PAGEMIND_AZURE_API_KEY", "PAGEMIND_CHAT_DEPLOYMENT",
		"PAGEMIND_EMBEDDING_DEPLOYMENT", "PAGEMIND_SOCKET_PATH", "PAGEMIND_DB_PATH",
		"PAGEMIND_CACHE_BACKEND",
	} {
		t.Setenv(key, "")
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	out, err := run(t, "--help")

	// Then: every top-level command is listed
	require.NoError(t, err)
	for _, name := range []string{"scan", "analyze", "ask", "search", "export", "settings", "serve", "daemon", "mcp", "doctor", "logs"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	// When
	_, err := run(t, "frobnicate")

	// Then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestVersionCmd(t *testing.T) {
	// When
	out, err := run(t, "version")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "pagemind")
	assert.Contains(t, out, version.Version)
}

func TestVersionCmd_JSON(t *testing.T) {
	// When
	out, err := run(t, "version", "--json")

	// Then
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestConfigPath_FollowsXDG(t *testing.T) {
	// Given
	root := isolate(t)

	// When
	out, err := run(t, "config", "path")

	// Then
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "config", "pagemind", "config.yaml"), strings.TrimSpace(out))
}

func TestConfigInit_WritesTemplateOnce(t *testing.T) {
	// Given
	root := isolate(t)
	path := filepath.Join(root, "config", "pagemind", "config.yaml")

	// When: init runs twice without --force
	first, err := run(t, "config", "init")
	require.NoError(t, err)
	second, err := run(t, "config", "init")
	require.NoError(t, err)

	// Then: the file exists and the second run leaves it alone
	assert.Contains(t, first, "Created user configuration")
	assert.FileExists(t, path)
	assert.Contains(t, second, "already exists")
}

func TestConfigInit_ForceKeepsBackup(t *testing.T) {
	// Given: an existing user config
	root := isolate(t)
	dir := filepath.Join(root, "config", "pagemind")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("data_dir: /old\n"), 0o600))

	// When
	out, err := run(t, "config", "init", "--force")

	// Then: the old file is renamed next to the new one
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	matches, err := filepath.Glob(filepath.Join(dir, "config.yaml.*.bak"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	// Given: an API key from the environment
	isolate(t)
	t.Setenv("PAGEMIND_AZURE_API_KEY", "sk-very-secret")

	// When
	out, err := run(t, "config", "show")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "# source: merged")
	assert.NotContains(t, out, "sk-very-secret")
}

func TestConfigShow_UnknownSource(t *testing.T) {
	isolate(t)

	_, err := run(t, "config", "show", "--source", "remote")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestSettings_SetThenShow(t *testing.T) {
	// Given
	isolate(t)

	// When: settings are saved in-process, then read back
	_, err := run(t, "settings", "set",
		"--endpoint", "https://me.openai.azure.com",
		"--api-key", "sk-very-secret",
		"--chat-deployment", "gpt-4o-mini")
	require.NoError(t, err)
	out, err := run(t, "settings", "show")

	// Then: values persist, the key stays hidden and the gap is reported
	require.NoError(t, err)
	assert.Contains(t, out, "https://me.openai.azure.com")
	assert.Contains(t, out, "gpt-4o-mini")
	assert.Contains(t, out, "****")
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, "Missing:")
}

func TestSettings_SetNothing(t *testing.T) {
	isolate(t)

	_, err := run(t, "settings", "set")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no settings given")
}

func TestSettings_KeyFlagsExclusive(t *testing.T) {
	isolate(t)

	_, err := run(t, "settings", "set", "--api-key", "a", "--api-key-stdin")

	require.Error(t, err)
}

func TestScan_NoAnalyzeInsertsOnce(t *testing.T) {
	// Given: a tab snapshot with two pages
	root := isolate(t)
	tabs := filepath.Join(root, "tabs.json")
	require.NoError(t, os.WriteFile(tabs, []byte(`[
		{"id": 1, "url": "https://go.dev/doc", "title": "Go"},
		{"id": 2, "url": "https://sqlite.org", "title": "SQLite"}
	]`), 0o600))

	// When: the same file is scanned twice
	first, err := run(t, "scan", "--tabs", tabs, "--no-analyze")
	require.NoError(t, err)
	second, err := run(t, "scan", "--tabs", tabs, "--no-analyze")
	require.NoError(t, err)

	// Then: the second scan finds nothing new
	assert.Contains(t, first, "2 found, 2 new, 0 already known")
	assert.Contains(t, first, "Analysis skipped")
	assert.Contains(t, second, "2 found, 0 new, 2 already known")

	out, err := run(t, "stats", "--json")
	require.NoError(t, err)
	var st struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 2, st.Pending)
}

func TestScan_SourceFlagsExclusive(t *testing.T) {
	isolate(t)

	_, err := run(t, "scan", "--tabs", "a.json", "--chrome", "b.json")

	require.Error(t, err)
}

func TestAnalyze_WaitsForConfiguration(t *testing.T) {
	// Given: pending records and no Azure settings
	root := isolate(t)
	tabs := filepath.Join(root, "tabs.json")
	require.NoError(t, os.WriteFile(tabs, []byte(`[{"id": 1, "url": "https://go.dev/doc", "title": "Go"}]`), 0o600))
	_, err := run(t, "scan", "--tabs", tabs, "--no-analyze")
	require.NoError(t, err)

	// When
	out, err := run(t, "analyze", "--plain")

	// Then: the run does not fail, it asks for settings
	require.NoError(t, err)
	assert.Contains(t, out, "settings are incomplete")
}

func TestExport_UnknownFormat(t *testing.T) {
	isolate(t)

	_, err := run(t, "export", "--format", "csv")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown export format")
}

func TestExport_EmptyStoreToDir(t *testing.T) {
	// Given
	root := isolate(t)
	dir := filepath.Join(root, "out")

	// When
	out, err := run(t, "export", "--format", "txt", "--dir", dir)

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 0 pages to "+dir)
}

func TestReset_RestrictedNeedsRequeue(t *testing.T) {
	isolate(t)

	_, err := run(t, "reset", "--restricted")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--requeue-failed")
}

func TestReset_DeclinedPromptKeepsRecords(t *testing.T) {
	// Given: one pending record
	root := isolate(t)
	tabs := filepath.Join(root, "tabs.json")
	require.NoError(t, os.WriteFile(tabs, []byte(`[{"id": 1, "url": "https://go.dev/doc", "title": "Go"}]`), 0o600))
	_, err := run(t, "scan", "--tabs", tabs, "--no-analyze")
	require.NoError(t, err)

	// When: the prompt reads an empty answer
	out, err := run(t, "reset")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	// When: --yes skips the prompt
	out, err = run(t, "reset", "--yes")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge base cleared")
}

func TestDoctor_JSONReportsChecks(t *testing.T) {
	// Given: no Azure settings
	isolate(t)

	// When
	out, err := run(t, "doctor", "--json")

	// Then: the settings check fails the command and the report is still printed
	require.Error(t, err)
	var rep struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	names := make([]string, 0, len(rep.Checks))
	for _, c := range rep.Checks {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "settings")
	assert.Contains(t, names, "data_dir")
}

func TestProfileFlags_WriteFiles(t *testing.T) {
	// Given
	root := isolate(t)
	cpu := filepath.Join(root, "cpu.pprof")
	heap := filepath.Join(root, "heap.pprof")

	// When
	_, err := run(t, "--profile-cpu", cpu, "--profile-mem", heap, "version")

	// Then
	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "daemon error with details",
			err: &daemon.Error{Message: "settings incomplete", Details: &daemon.ErrorDetails{
				Code: apperrors.ErrCodeSettingsMissing, Suggestion: "run settings set",
			}},
			want: []string{"Error: settings incomplete", "Hint: run settings set", "Code: " + apperrors.ErrCodeSettingsMissing},
		},
		{
			name: "application error",
			err:  apperrors.New(apperrors.ErrCodeQueryEmpty, "question is empty", nil),
			want: []string{"question is empty"},
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: []string{"Error: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When
			var buf bytes.Buffer
			printError(&buf, tt.err)

			// Then
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}
